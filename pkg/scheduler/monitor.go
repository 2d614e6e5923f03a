package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// maxConsecutiveErrors marks a job unhealthy once exceeded.
const maxConsecutiveErrors = 3

// JobMonitor tracks the health of one scheduled job.
type JobMonitor struct {
	clock      clockwork.Clock
	staleAfter time.Duration

	mu                sync.RWMutex
	since             time.Time
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
}

// NewJobMonitor reports a job unhealthy when it has not succeeded within
// staleAfter. A job that has not run yet gets staleAfter from now.
func NewJobMonitor(clock clockwork.Clock, staleAfter time.Duration) *JobMonitor {
	return &JobMonitor{clock: clock, staleAfter: staleAfter, since: clock.Now()}
}

// RecordSuccess records a successful run.
func (m *JobMonitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.lastSuccess = now
	m.lastAttempt = now
	m.consecutiveErrors = 0
	m.lastError = ""
}

// RecordFailure records a failed attempt.
func (m *JobMonitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAttempt = m.clock.Now()
	m.consecutiveErrors++
	if err != nil {
		m.lastError = err.Error()
	}
}

// IsHealthy returns false when the job failed without ever succeeding, its
// last success is stale, or it failed more than three times in a row.
func (m *JobMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy()
}

func (m *JobMonitor) healthy() bool {
	last := m.lastSuccess
	if last.IsZero() {
		if m.consecutiveErrors > 0 {
			return false
		}
		last = m.since
	}
	if m.staleAfter > 0 && m.clock.Since(last) > m.staleAfter {
		return false
	}
	return m.consecutiveErrors <= maxConsecutiveErrors
}

// JobStatus is the health-check view of a job.
type JobStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns the current job status.
func (m *JobMonitor) Status() JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := JobStatus{Healthy: m.healthy()}
	if !m.lastSuccess.IsZero() {
		status.LastSuccess = m.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = m.clock.Since(m.lastSuccess).String()
	}
	if !m.lastAttempt.IsZero() {
		status.LastAttempt = m.lastAttempt.Format(time.RFC3339)
	}
	if m.consecutiveErrors > 0 {
		status.ConsecutiveErrors = m.consecutiveErrors
		status.LastError = m.lastError
	}
	return status
}
