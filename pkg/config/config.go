package config

import "time"

// Server defaults
const (
	DefaultListen       = ":8080"
	DefaultDataDir      = "./data"
	DefaultMaxStorageGB = 1
	DefaultMaxMemoryMB  = 48
)

// Compression defaults
const (
	DefaultEffectivenessThreshold = 0.7
	DefaultHistoryLimit           = 100
	DefaultQueueSize              = 256
)

// Archive defaults
const (
	DefaultMaxRetentionDays = 1095
	DefaultActiveDays       = 90
	DefaultArchiveThreshold = 30000
	DefaultBatchSize        = 500
	DefaultMaxActiveSize    = 10 * 1024 * 1024
)

// Scheduler intervals
const (
	DefaultArchiveInterval     = 24 * time.Hour
	DefaultMaintenanceInterval = 7 * 24 * time.Hour
	DefaultMaxRetries          = 3
	DefaultRetryBaseDelay      = 30 * time.Second
	BadgerGCInterval           = 10 * time.Minute
	BadgerGCDiscardRatio       = 0.5
)

// Request timeouts and limits
const (
	ArchiveTimeout    = 30 * time.Second
	RestoreTimeout    = 30 * time.Second
	SearchTimeout     = 5 * time.Second
	StatsTimeout      = 5 * time.Second
	MaxRequestBytes   = 64 << 20
	DefaultSearchSize = 100
)

// Export limits
const (
	MaxExportRecords = 100000
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Shutdown
const (
	ShutdownTimeout = 30 * time.Second
)
