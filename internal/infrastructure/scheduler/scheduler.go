// Package scheduler runs the gateway's periodic maintenance jobs: retention
// purges for link tokens, webhook dedup rows, and abandoned bot sessions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB & SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// Job is one unit of periodic work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler
	// stops and carries the per-run timeout.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the next run time strictly after t.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

type intervalSchedule struct {
	interval time.Duration
}

// Every returns a schedule firing at a fixed interval.
func Every(interval time.Duration) Schedule {
	return intervalSchedule{interval: interval}
}

func (s intervalSchedule) Next(t time.Time) time.Time { return t.Add(s.interval) }
func (s intervalSchedule) String() string             { return fmt.Sprintf("@every %s", s.interval) }

type dailySchedule struct {
	hour, minute int
}

// DailyAt returns a schedule firing once a day at hh:mm UTC.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

func (s dailySchedule) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string { return fmt.Sprintf("@daily %02d:%02d UTC", s.hour, s.minute) }

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains scheduler configuration.
type Config struct {
	// Logger for structured logging.
	Logger *logger.Logger

	// JobTimeout bounds a single job run.
	JobTimeout time.Duration

	// TickInterval is how often due jobs are checked.
	TickInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		JobTimeout:   5 * time.Minute,
		TickInterval: 30 * time.Second,
	}
}

type entry struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	runs     int64
	failures int64
}

// Scheduler executes registered jobs on their schedules. One job runs at
// most once concurrently; distinct jobs may overlap.
type Scheduler struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Scheduler{
		cfg:     cfg,
		log:     cfg.Logger,
		entries: make(map[string]*entry),
	}
}

// Register adds a job. The first run happens at schedule.Next(now), not
// immediately.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}

	e := &entry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().UTC()),
	}
	s.entries[name] = e

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.String("next_run", e.nextRun.Format(time.RFC3339)),
	)
	return nil
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.log.Info("scheduler started", logger.Int("jobs", len(s.entries)))

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for in-flight job runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(ctx, now.UTC())
		}
	}
}

// runDue fires every entry whose nextRun has passed. The next run is
// scheduled from now, so a slow job cannot queue up a backlog.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.nextRun.After(now) {
			e.nextRun = e.schedule.Next(now)
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.runOne(ctx, e)
		}(e)
	}
}

func (s *Scheduler) runOne(ctx context.Context, e *entry) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("job panic", logger.String("job", e.job.Name()), logger.Any("panic", rec))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := e.job.Run(runCtx)
	elapsed := time.Since(start)

	s.mu.Lock()
	e.runs++
	if err != nil {
		e.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed",
			logger.String("job", e.job.Name()),
			logger.Int64("duration_ms", elapsed.Milliseconds()),
			logger.Err(err),
		)
		return
	}
	s.log.Info("job completed",
		logger.String("job", e.job.Name()),
		logger.Int64("duration_ms", elapsed.Milliseconds()),
	)
}
