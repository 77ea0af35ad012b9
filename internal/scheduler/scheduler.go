package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// JobStatus describes the last runs of a registered job
type JobStatus struct {
	Name       string
	Schedule   string
	Running    bool
	Runs       int
	Skipped    int
	LastStart  time.Time
	LastFinish time.Time
	LastError  string
}

type entry struct {
	job      Job
	schedule string

	// running is held for the whole run; TryLock failing means a run is in flight
	running sync.Mutex

	mu     sync.Mutex
	status JobStatus
}

// Scheduler manages background jobs. A job never runs concurrently with itself:
// a trigger that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	baseCtx context.Context

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New creates a new scheduler. Schedules are evaluated in loc and accept a seconds field.
func New(baseCtx context.Context, loc *time.Location, log zerolog.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		baseCtx: baseCtx,
		jobs:    make(map[string]*entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	e := &entry{job: job, schedule: schedule, status: JobStatus{Name: job.Name(), Schedule: schedule}}

	if schedule != "" {
		_, err := s.cron.AddFunc(schedule, func() {
			err := s.run(s.baseCtx, e)
			switch {
			case err == nil, errors.Is(err, domain.ErrJobRunning):
			case errors.Is(err, domain.ErrJobDeferred):
				s.log.Info().Str("job", job.Name()).Msg("Job deferred")
			default:
				s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
		}
	}

	s.jobs[job.Name()] = e
	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule).
// It returns domain.ErrJobRunning when the job is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownJob, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.run(ctx, e)
}

// RunSequence runs the named jobs one after another and returns every error encountered.
// A failing job does not prevent the following ones from running.
func (s *Scheduler) RunSequence(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if err := s.RunNow(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Jobs returns the status of every registered job, ordered by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		e.mu.Lock()
		out = append(out, e.status)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	name := e.job.Name()

	if !e.running.TryLock() {
		e.mu.Lock()
		e.status.Skipped++
		e.mu.Unlock()
		s.log.Warn().Str("job", name).Msg("Job still running, trigger skipped")
		return domain.ErrJobRunning
	}
	defer e.running.Unlock()

	start := time.Now()
	e.mu.Lock()
	e.status.Running = true
	e.status.LastStart = start
	e.mu.Unlock()

	s.log.Debug().Str("job", name).Msg("Running job")
	err := invoke(ctx, e.job)

	e.mu.Lock()
	e.status.Running = false
	e.status.Runs++
	e.status.LastFinish = time.Now()
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		return err
	}

	s.log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("Job completed")
	return nil
}

func invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// cronLogger routes cron's own messages to zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
