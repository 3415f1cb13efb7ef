// Package scheduler implements background job scheduling for Comportamento
// Hub: the score reconciliation sweep and the cache expiry sweep run here.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// Scheduler errors.
var (
	ErrNilJob           = errors.New("scheduler: job cannot be nil")
	ErrNilSchedule      = errors.New("scheduler: schedule cannot be nil")
	ErrDuplicateJob     = errors.New("scheduler: job already registered")
	ErrAlreadyRunning   = errors.New("scheduler: already running")
	ErrNotRunning       = errors.New("scheduler: not running")
	ErrJobNotRegistered = errors.New("scheduler: job not registered")
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler is
	// stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	interval time.Duration
}

// NewIntervalSchedule creates an interval schedule. Intervals under a second
// are rounded up to a second.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval < time.Second {
		interval = time.Second
	}
	return &IntervalSchedule{interval: interval}
}

// Next implements Schedule.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

// String implements Schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("every %s", s.interval)
}

// JobResult contains the result of one job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs, one goroutine per job.
type Scheduler struct {
	mu sync.RWMutex

	log      *logger.Logger
	timezone *time.Location

	jobs    map[string]*scheduledJob
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	lastRuns map[string]JobResult
}

// scheduledJob wraps a Job with scheduling state.
type scheduledJob struct {
	job       Job
	schedule  Schedule
	runCount  int64
	failCount int64
}

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger for structured logging.
	Logger *logger.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location
}

// New creates a Scheduler.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}

	return &Scheduler{
		log:      config.Logger.With(logger.Component("scheduler")),
		timezone: config.Timezone,
		jobs:     make(map[string]*scheduledJob),
		lastRuns: make(map[string]JobResult),
	}
}

// Register adds a job with its schedule. Must be called before Start.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if _, exists := s.jobs[job.Name()]; exists {
		return ErrDuplicateJob
	}

	s.jobs[job.Name()] = &scheduledJob{job: job, schedule: schedule}
	s.log.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("schedule", schedule.String()),
	)
	return nil
}

// Start launches the job loops. It returns immediately; jobs run until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for name, sj := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, name, sj)
	}
	s.mu.Unlock()

	s.log.Info("scheduler started", logger.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// LastRun returns the most recent result for a job.
func (s *Scheduler) LastRun(jobName string) (JobResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lastRuns[jobName]
	return r, ok
}

func (s *Scheduler) runLoop(ctx context.Context, name string, sj *scheduledJob) {
	defer s.wg.Done()

	next := sj.schedule.Next(time.Now().In(s.timezone))
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.execute(ctx, name, sj)
			next = sj.schedule.Next(time.Now().In(s.timezone))
			timer.Reset(time.Until(next))
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, name string, sj *scheduledJob) {
	start := time.Now()
	result := JobResult{JobName: name, StartedAt: start}

	defer func() {
		if p := recover(); p != nil {
			result.Error = fmt.Errorf("job panicked: %v", p)
			result.Success = false
			s.record(name, sj, result, start)
		}
	}()

	err := sj.job.Run(ctx)
	result.Error = err
	result.Success = err == nil
	s.record(name, sj, result, start)
}

func (s *Scheduler) record(name string, sj *scheduledJob, result JobResult, start time.Time) {
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(start)

	s.mu.Lock()
	sj.runCount++
	if !result.Success {
		sj.failCount++
	}
	s.lastRuns[name] = result
	s.mu.Unlock()

	if result.Success {
		s.log.Debug("job finished",
			logger.String("job", name), logger.Latency(result.Duration))
		return
	}
	s.log.Error("job failed",
		logger.String("job", name),
		logger.Latency(result.Duration),
		logger.Err(result.Error),
	)
}
