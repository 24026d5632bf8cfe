// Package scheduler runs the background refresh jobs of yspy on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Status is the run history of a job.
type Status struct {
	Name         string
	Schedule     string
	Runs         int
	Failures     int
	LastRun      time.Time
	LastDuration time.Duration
	LastError    string
	Next         time.Time
}

type registered struct {
	job    Job
	spec   string
	id     cron.EntryID
	status Status
	mu     sync.Mutex // serializes runs of the job
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu     sync.RWMutex
	jobs   map[string]*registered
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler whose specs have a leading seconds field.
func New(log zerolog.Logger) *Scheduler {
	cl := cronLogger{log}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:  log,
		jobs: make(map[string]*registered),
		ctx:  context.Background(),
	}
}

// Add registers job with a cron spec such as "0 0 5 * * *" or "@every 5m".
func (s *Scheduler) Add(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := job.Name()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already exists", name)
	}
	r := &registered{job: job, spec: spec, status: Status{Name: name, Schedule: spec}}
	id, err := s.cron.AddFunc(spec, func() { s.run(s.context(), r) })
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	r.id = id
	s.jobs[name] = r
	s.log.Info().Str("job", name).Str("schedule", spec).Msg("job registered")
	return nil
}

// Every returns the spec running every d.
func Every(d time.Duration) string { return "@every " + d.String() }

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// Start starts the scheduler. Jobs receive a context cancelled by Stop or by ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow runs the named job immediately and returns its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	r, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	return s.run(ctx, r)
}

func (s *Scheduler) run(ctx context.Context, r *registered) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := r.job.Name()
	start := time.Now()
	s.log.Debug().Str("job", name).Msg("running job")
	err := r.job.Run(ctx)

	s.mu.Lock()
	r.status.Runs++
	r.status.LastRun = start
	r.status.LastDuration = time.Since(start)
	r.status.LastError = ""
	if err != nil {
		r.status.Failures++
		r.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("job failed")
	} else {
		s.log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("job completed")
	}
	return err
}

// Status returns the history of the named job.
func (s *Scheduler) Status(name string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.jobs[name]
	if !ok {
		return Status{}, false
	}
	st := r.status
	st.Next = s.cron.Entry(r.id).Next
	return st, true
}

// Statuses returns the history of every job sorted by name.
func (s *Scheduler) Statuses() []Status {
	s.mu.RLock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	out := make([]Status, 0, len(names))
	for _, n := range names {
		st, _ := s.Status(n)
		out = append(out, st)
	}
	return out
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
