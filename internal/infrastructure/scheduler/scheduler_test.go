package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func testScheduler() *Scheduler {
	return New(Config{
		Logger: logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError}),
	})
}

func TestIntervalScheduleNext(t *testing.T) {
	s := NewIntervalSchedule(5 * time.Minute)
	at := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(5*time.Minute), s.Next(at))

	// Sub-second intervals are rounded up.
	fast := NewIntervalSchedule(time.Millisecond)
	assert.Equal(t, at.Add(time.Second), fast.Next(at))
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	s := testScheduler()
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrDuplicateJob)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)
}

func TestSchedulerRunsJobAndRecordsResult(t *testing.T) {
	s := testScheduler()
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		result, ok := s.LastRun("tick")
		return ok && result.Success
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRecordsFailure(t *testing.T) {
	s := testScheduler()
	job := &countingJob{name: "broken", err: errors.New("boom")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	assert.Eventually(t, func() bool {
		result, ok := s.LastRun("broken")
		return ok && !result.Success && result.Error != nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestStartStopLifecycle(t *testing.T) {
	s := testScheduler()
	require.NoError(t, s.Register(&countingJob{name: "x"}, NewIntervalSchedule(time.Hour)))

	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
	require.NoError(t, s.Stop())
}
