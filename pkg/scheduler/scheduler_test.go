package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nicktill/statvault/pkg/archive"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func TestScheduler_RetriesWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := New(Config{MaxRetries: 3, RetryBaseDelay: time.Second}, WithClock(clock))

	var runs atomic.Int32
	s.Add(Job{
		Name:       "flaky",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(context.Context) error {
			if runs.Add(1) < 3 {
				return errors.New("not yet")
			}
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	// Ticker plus the first backoff timer.
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool {
		return s.Status()["flaky"].Healthy
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(3), runs.Load())
	require.Zero(t, s.Status()["flaky"].ConsecutiveErrors)
}

func TestScheduler_RunsOnTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := New(DefaultConfig(), WithClock(clock))

	var runs atomic.Int32
	s.Add(Job{Name: "tick", Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Zero(t, runs.Load())
	require.Empty(t, s.Status()["tick"].LastSuccess)

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	require.True(t, s.Healthy())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(DefaultConfig())
	s.Add(Job{Name: "panics", Interval: time.Hour, Run: func(context.Context) error {
		panic("boom")
	}})

	err := s.RunNow(context.Background(), "panics")
	require.ErrorContains(t, err, "boom")
	require.Equal(t, 1, s.Status()["panics"].ConsecutiveErrors)

	require.Error(t, s.RunNow(context.Background(), "missing"))
	require.Equal(t, []string{"panics"}, s.Jobs())
}

type memorySource struct {
	mu         sync.Mutex
	candidates []Candidate
	kept       map[string]any
	listErr    error
}

func (m *memorySource) Candidates(context.Context) ([]Candidate, error) {
	return m.candidates, m.listErr
}

func (m *memorySource) Archived(_ context.Context, c Candidate, keep any, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kept == nil {
		m.kept = make(map[string]any)
	}
	m.kept[c.Name] = keep
	return nil
}

func records(n int, at time.Time) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{
			"id":        fmt.Sprintf("record-%d", i),
			"timestamp": float64(at.UnixMilli()),
		}
	}
	return out
}

func openStore(t *testing.T, clock clockwork.Clock) *archive.Store {
	t.Helper()
	cfg := archive.DefaultConfig()
	cfg.ArchiveThreshold = 5
	store, err := archive.Open(context.Background(), memory.New(), nil, cfg, archive.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestSweep(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	store := openStore(t, clock)

	mixed := append(records(6, epoch.Add(-100*day)), records(4, epoch.Add(-day))...)
	src := &memorySource{candidates: []Candidate{
		{Name: "sessions", DataType: "sessions", Data: mixed},
		{Name: "small", DataType: "statistics", Data: records(3, epoch.Add(-100*day))},
		{Name: "fresh", DataType: "sessions", Data: records(8, epoch)},
	}}

	report, err := Sweep(context.Background(), src, store, clock.Now())
	require.NoError(t, err)
	require.Equal(t, 3, report.Candidates)
	require.Len(t, report.Archived, 1)
	require.Equal(t, 2, report.Skipped)

	rec, ok := store.Get(report.Archived[0])
	require.True(t, ok)
	require.Equal(t, 6, rec.RecordCount)
	require.Contains(t, rec.Tags, ScheduledTag)
	require.Contains(t, rec.Tags, "ancient")

	require.Len(t, src.kept["sessions"], 4)
	require.NotContains(t, src.kept, "small")
}

func TestSweep_SourceFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	store := openStore(t, clock)

	_, err := Sweep(context.Background(), &memorySource{listErr: errors.New("unreachable")}, store, clock.Now())
	require.True(t, archerr.HasCode(err, archerr.CodeSchedulerSourceFailure))
}

type fakeArchiver struct {
	maintained int
	err        error
}

func (f *fakeArchiver) Archive(context.Context, any, string, archive.Options) (*archive.Result, error) {
	return nil, errors.New("not used")
}

func (f *fakeArchiver) Maintenance(context.Context) (archive.MaintenanceReport, error) {
	f.maintained++
	return archive.MaintenanceReport{Deleted: 2}, f.err
}

func (f *fakeArchiver) Config() archive.Config { return archive.DefaultConfig() }

type fakePruner struct{ calls int }

func (f *fakePruner) Maintenance(context.Context) (int, error) {
	f.calls++
	return 1, nil
}

func TestMaintenanceJob(t *testing.T) {
	store := &fakeArchiver{}
	pruner := &fakePruner{}
	job := MaintenanceJob(store, pruner, nil, 7*day)

	require.Equal(t, JobMaintenance, job.Name)
	require.True(t, job.RunOnStart)
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, store.maintained)
	require.Equal(t, 1, pruner.calls)

	store.err = errors.New("disk full")
	require.Error(t, job.Run(context.Background()))
	require.Equal(t, 1, pruner.calls)
}

type fakeGC struct{ ratio float64 }

func (f *fakeGC) RunGC(ratio float64) error {
	f.ratio = ratio
	return nil
}

func TestGCJob(t *testing.T) {
	gc := &fakeGC{}
	job := GCJob(gc, 0.5, 10*time.Minute)
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 0.5, gc.ratio)
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sessions"), 0o755))

	path := filepath.Join(root, "sessions", "week1.json")
	raw, err := json.Marshal(records(3, epoch))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	src := DirSource{Root: root}
	ctx := context.Background()

	candidates, err := src.Candidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "sessions", candidates[0].DataType)
	require.Len(t, candidates[0].Data, 3)

	require.NoError(t, src.Archived(ctx, candidates[0], []any{"kept"}, "id"))
	again, err := src.Candidates(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"kept"}, again[0].Data)

	require.NoError(t, src.Archived(ctx, candidates[0], nil, "id"))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
