package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestEvery_Next(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Every(time.Hour)

	assert.Equal(t, base.Add(time.Hour), s.Next(base))
	assert.Equal(t, "@every 1h0m0s", s.String())
}

func TestDailyAt_Next(t *testing.T) {
	s := DailyAt(3, 30)

	before := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 3, 30, 0, 0, time.UTC), s.Next(before))

	// Past today's slot: roll to tomorrow.
	after := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 3, 30, 0, 0, time.UTC), s.Next(after))

	// Exactly on the slot: also tomorrow, Next is strictly after t.
	onSlot := time.Date(2026, 3, 1, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 3, 30, 0, 0, time.UTC), s.Next(onSlot))

	assert.Equal(t, "@daily 03:30 UTC", s.String())
}

func TestRegister_RejectsDuplicateName(t *testing.T) {
	sched := New(Config{Logger: logger.Default()})

	require.NoError(t, sched.Register(&countingJob{name: "purge"}, Every(time.Hour)))
	err := sched.Register(&countingJob{name: "purge"}, Every(time.Minute))

	assert.ErrorContains(t, err, "already registered")
}

func TestStart_RejectsSecondStart(t *testing.T) {
	sched := New(Config{Logger: logger.Default(), TickInterval: time.Hour})
	defer sched.Stop()

	require.NoError(t, sched.Start(context.Background()))
	assert.Error(t, sched.Start(context.Background()))
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	sched := New(Config{Logger: logger.Default(), TickInterval: 10 * time.Millisecond})
	job := &countingJob{name: "tick"}
	require.NoError(t, sched.Register(job, Every(time.Millisecond)))

	require.NoError(t, sched.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	sched.Stop()
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	sched := New(Config{Logger: logger.Default(), TickInterval: 10 * time.Millisecond})
	job := &countingJob{name: "flaky", err: errors.New("boom")}
	require.NoError(t, sched.Register(job, Every(time.Millisecond)))

	require.NoError(t, sched.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	sched.Stop()
}

func TestStop_Idempotent(t *testing.T) {
	sched := New(Config{Logger: logger.Default(), TickInterval: time.Hour})
	require.NoError(t, sched.Start(context.Background()))

	sched.Stop()
	sched.Stop()
}
