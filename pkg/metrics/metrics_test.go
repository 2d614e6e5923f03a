package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCompression("sessions", "compressed", 0.2, 10*time.Millisecond)
	m.ObserveCompression("sessions", "ineffective", 0.9, time.Millisecond)
	m.StageFailed("delta")
	m.BytesSaved(800)
	m.BytesSaved(-1)
	m.QueueDepth(QueueArchive, 3)
	m.ObserveOperation("archive", nil, time.Millisecond)
	m.ObserveOperation("restore", errors.New("missing"), time.Millisecond)
	m.ChecksumMismatch()
	m.SetArchives(4, 2048)
	m.RetentionDeleted(2)
	m.ObserveSchedulerRun("maintenance", nil, time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(m.compressions.WithLabelValues("sessions", "compressed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("delta")))
	require.Equal(t, 800.0, testutil.ToFloat64(m.bytesSaved))
	require.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth.WithLabelValues(QueueArchive)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("restore", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.checksumMismatch))
	require.Equal(t, 4.0, testutil.ToFloat64(m.archives))
	require.Equal(t, 2048.0, testutil.ToFloat64(m.archivedBytes))
	require.Equal(t, 2.0, testutil.ToFloat64(m.retentionDeleted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.schedulerRuns.WithLabelValues("maintenance", "success")))
}

func TestCollectors_NilSafe(t *testing.T) {
	var m *Collectors
	require.NotPanics(t, func() {
		m.ObserveCompression("x", "failed", 1, 0)
		m.StageFailed("x")
		m.QueueDepth(QueueCompression, 1)
		m.ObserveOperation("archive", nil, 0)
		m.ChecksumMismatch()
		m.SetArchives(0, 0)
		m.ObserveSchedulerRun("x", nil, 0)
	})
}
