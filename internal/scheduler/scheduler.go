package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"galleryd/internal/config"
	"galleryd/internal/logging"
	"galleryd/internal/metrics"
)

// Result is what a job run reports back.
type Result int

const (
	Success Result = iota
	Retry
	Failure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Constraints gate every run of a job.
type Constraints struct {
	NetworkRequired bool
	StorageNotLow   bool
	StoragePath     string
	MinFreeBytes    uint64
}

// Job is a named unit of background work.
type Job struct {
	Name        string
	Run         func(ctx context.Context) Result
	Constraints Constraints
	// Repeat, when set, is consulted after Success; true runs the job again
	// right away without a new trigger.
	Repeat func() bool
	// OneShot jobs are unregistered after Success or Failure.
	OneShot bool
}

// State describes where a job is in its lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateBackoff State = "backoff"
	StateRunning State = "running"
)

// JobStatus is a point-in-time view of a registered job.
type JobStatus struct {
	Name       string
	State      State
	Attempts   int
	LastResult string
	LastRun    time.Time
	NextRun    time.Time
}

type jobState struct {
	job        Job
	state      State
	attempts   int
	lastResult string
	lastRun    time.Time
	nextRun    time.Time
	// pending records a trigger dropped while a repeating job was running.
	pending bool
}

// Options tune a Scheduler. Zero values fall back to the config.
type Options struct {
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	ConstraintPoll time.Duration
	Network        NetworkProbe
	Storage        StorageProbe
}

// Scheduler dispatches jobs on their own goroutines.
type Scheduler struct {
	logger         *slog.Logger
	backoffBase    time.Duration
	backoffMax     time.Duration
	constraintPoll time.Duration
	requireNetwork bool
	network        NetworkProbe
	storage        StorageProbe

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*jobState
	wake chan struct{}
}

// New builds a scheduler from cfg.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = cfg.BackoffBase()
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = cfg.BackoffMax()
	}
	if opts.ConstraintPoll <= 0 {
		opts.ConstraintPoll = time.Minute
	}
	if opts.Network == nil {
		address := NetworkCheckAddress(cfg)
		if address == "" {
			opts.Network = func(context.Context) bool { return true }
		} else {
			opts.Network = DialProbe(address, 5*time.Second)
		}
	}
	if opts.Storage == nil {
		opts.Storage = FreeBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:         logging.NewComponentLogger(logger, "scheduler"),
		backoffBase:    opts.BackoffBase,
		backoffMax:     opts.BackoffMax,
		constraintPoll: opts.ConstraintPoll,
		requireNetwork: cfg.Scheduler.RequireNetwork,
		network:        opts.Network,
		storage:        opts.Storage,
		ctx:            ctx,
		cancel:         cancel,
		jobs:           make(map[string]*jobState),
		wake:           make(chan struct{}),
	}
}

// Backoff returns the delay before retry attempt n (1-based): base doubled
// per attempt and capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Register adds a job without running it.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &jobState{job: job, state: StateIdle}
	return nil
}

// Trigger starts a registered job. It reports false when the job is unknown
// or already pending or running. A trigger that lands while a job with Repeat
// is running makes that run go round once more instead of going idle.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	js, ok := s.jobs[name]
	if !ok {
		return false
	}
	if js.state != StateIdle {
		if js.state == StateRunning && js.job.Repeat != nil {
			js.pending = true
		}
		return false
	}
	js.state = StateWaiting
	s.wg.Add(1)
	go s.run(js)
	return true
}

// Submit registers job when its name is free and triggers it.
func (s *Scheduler) Submit(job Job) bool {
	s.mu.Lock()
	_, exists := s.jobs[job.Name]
	s.mu.Unlock()
	if !exists {
		if err := s.Register(job); err != nil {
			return false
		}
	}
	return s.Trigger(job.Name)
}

// Kick wakes jobs waiting on constraints so they re-check immediately.
func (s *Scheduler) Kick() {
	s.mu.Lock()
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()
}

// Status lists registered jobs sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for name, js := range s.jobs {
		out = append(out, JobStatus{
			Name:       name,
			State:      js.state,
			Attempts:   js.attempts,
			LastResult: js.lastResult,
			LastRun:    js.lastRun,
			NextRun:    js.nextRun,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close cancels running jobs and waits for them to return.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(js *jobState) {
	defer s.wg.Done()
	name := js.job.Name
	logger := s.logger.With(logging.String("job", name))

	for {
		if !s.awaitConstraints(js, logger) {
			s.finish(js)
			return
		}
		s.mu.Lock()
		js.state = StateRunning
		js.nextRun = time.Time{}
		js.pending = false
		s.mu.Unlock()

		start := time.Now()
		result := s.invoke(js, logger)
		metrics.WorkerRuns.WithLabelValues(jobLabel(name), result.String()).Inc()

		s.mu.Lock()
		js.lastRun = start
		js.lastResult = result.String()
		s.mu.Unlock()

		switch result {
		case Success:
			s.resetAttempts(js)
			if js.job.Repeat != nil && js.job.Repeat() {
				continue
			}
			if s.finishUnlessTriggered(js) {
				return
			}
		case Retry:
			attempts := s.incrementAttempts(js)
			delay := Backoff(s.backoffBase, s.backoffMax, attempts)
			logger.Info("job will retry",
				logging.Int("attempt", attempts),
				logging.Duration("delay", delay),
			)
			s.setState(js, StateBackoff, time.Now().Add(delay))
			timer := time.NewTimer(delay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				s.finish(js)
				return
			case <-timer.C:
			}
			s.setState(js, StateWaiting, time.Time{})
		default:
			s.resetAttempts(js)
			logging.WarnWithContext(logger, "job failed", "job_failed",
				logging.String(logging.FieldImpact, "job stays idle until the next trigger"),
			)
			s.finish(js)
			return
		}
	}
}

func (s *Scheduler) invoke(js *jobState, logger *slog.Logger) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "job panicked", "job_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the stack in the daemon log"),
			)
			result = Failure
		}
	}()
	return js.job.Run(s.ctx)
}

// awaitConstraints blocks until the job may run. It returns false when the
// scheduler shuts down first.
func (s *Scheduler) awaitConstraints(js *jobState, logger *slog.Logger) bool {
	logged := false
	for {
		if s.ctx.Err() != nil {
			return false
		}
		reason := s.unmet(js.job.Constraints)
		if reason == "" {
			return true
		}
		if !logged {
			logger.Info("job waiting for constraint", logging.String("constraint", reason))
			logged = true
		}
		s.mu.Lock()
		wake := s.wake
		js.nextRun = time.Time{}
		s.mu.Unlock()

		timer := time.NewTimer(s.constraintPoll)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return false
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) unmet(c Constraints) string {
	if c.NetworkRequired && s.requireNetwork && !s.network(s.ctx) {
		return "network"
	}
	if c.StorageNotLow && c.MinFreeBytes > 0 {
		free, err := s.storage(c.StoragePath)
		if err != nil {
			s.logger.Warn("free space check failed", logging.String("path", c.StoragePath), logging.Error(err))
			return "storage"
		}
		if free < c.MinFreeBytes {
			return "storage"
		}
	}
	return ""
}

func (s *Scheduler) setState(js *jobState, state State, next time.Time) {
	s.mu.Lock()
	js.state = state
	js.nextRun = next
	s.mu.Unlock()
}

func (s *Scheduler) resetAttempts(js *jobState) {
	s.mu.Lock()
	js.attempts = 0
	s.mu.Unlock()
}

func (s *Scheduler) incrementAttempts(js *jobState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	js.attempts++
	return js.attempts
}

// finishUnlessTriggered goes idle unless a trigger arrived during the run.
// The check and the transition share one critical section so a concurrent
// Trigger either sees the idle state or leaves pending set.
func (s *Scheduler) finishUnlessTriggered(js *jobState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if js.pending {
		js.pending = false
		return false
	}
	s.finishLocked(js)
	return true
}

func (s *Scheduler) finish(js *jobState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(js)
}

func (s *Scheduler) finishLocked(js *jobState) {
	js.pending = false
	js.state = StateIdle
	js.nextRun = time.Time{}
	if js.job.OneShot && s.jobs[js.job.Name] == js {
		delete(s.jobs, js.job.Name)
	}
}

// jobLabel folds per-request export job names into one metrics label.
func jobLabel(name string) string {
	if strings.HasPrefix(name, "export-") {
		return "export"
	}
	return name
}
