// Package scheduler runs the periodic archive sweep, maintenance and storage
// garbage collection jobs with retry and health tracking.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/metrics"
)

// Job is a named task run every Interval.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Config controls retries of failed runs.
type Config struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryBaseDelay: 30 * time.Second}
}

type entry struct {
	Job
	monitor *JobMonitor
}

// Scheduler owns one goroutine per job.
type Scheduler struct {
	cfg     Config
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Collectors

	mu      sync.Mutex
	jobs    []*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. Jobs added after Start are not scheduled.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &entry{
		Job:     job,
		monitor: NewJobMonitor(s.clock, 2*job.Interval),
	})
}

// Start launches every registered job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, e := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels all jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(e.Interval)
	defer ticker.Stop()

	if e.RunOnStart {
		s.runWithRetry(ctx, e)
	}
	for {
		select {
		case <-ticker.Chan():
			s.runWithRetry(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

// runWithRetry retries a failed run with exponential backoff: base, 2x base,
// 4x base and so on.
func (s *Scheduler) runWithRetry(ctx context.Context, e *entry) {
	log := s.logger.With(zap.String("job", e.Name))

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
			log.Info("retrying job",
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", s.cfg.MaxRetries+1),
			)
			select {
			case <-s.clock.After(delay):
			case <-ctx.Done():
				return
			}
		}

		err := s.runOnce(ctx, e)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		log.Warn("job failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if status := e.monitor.Status(); status.ConsecutiveErrors > maxConsecutiveErrors {
			log.Error("job keeps failing", zap.Int("consecutive_errors", status.ConsecutiveErrors))
		}
	}
	log.Warn("job failed after all attempts, waiting for next schedule",
		zap.Int("attempts", s.cfg.MaxRetries+1))
}

func (s *Scheduler) runOnce(ctx context.Context, e *entry) (err error) {
	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.Name, r)
		}
		s.metrics.ObserveSchedulerRun(e.Name, err, s.clock.Since(start))
		if err != nil {
			e.monitor.RecordFailure(err)
			return
		}
		e.monitor.RecordSuccess()
		s.logger.Info("job completed",
			zap.String("job", e.Name),
			zap.Duration("duration", s.clock.Since(start)),
		)
	}()
	return e.Run(ctx)
}

// RunNow runs a registered job once, without retries, and records the outcome.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *entry
	for _, e := range s.jobs {
		if e.Name == name {
			found = e
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runOnce(ctx, found)
}

// Status returns the health of every job by name.
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStatus, len(s.jobs))
	for _, e := range s.jobs {
		out[e.Name] = e.monitor.Status()
	}
	return out
}

// Healthy reports whether every job is healthy.
func (s *Scheduler) Healthy() bool {
	for _, st := range s.Status() {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// Jobs returns registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, e := range s.jobs {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
