package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jordanhubbard/inanna/internal/metrics"
)

// State is the scheduler lifecycle state
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config controls loop timing
type Config struct {
	MaxIdle      time.Duration // Upper bound on a single idle wait while jobs exist
	EmptyWait    time.Duration // Wait used when no jobs are registered
	ErrorBackoff time.Duration // Pause after a loop-level failure
	StopTimeout  time.Duration // How long Stop waits for the loop
}

// DefaultConfig returns the standard loop timing
func DefaultConfig() Config {
	return Config{
		MaxIdle:      60 * time.Second,
		EmptyWait:    5 * time.Minute,
		ErrorBackoff: 60 * time.Second,
		StopTimeout:  3 * time.Second,
	}
}

// SpecLoader returns the jobs to register on Start
type SpecLoader func() ([]Spec, error)

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics records job runs on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithSpecLoader sets where Start reads job specs from
func WithSpecLoader(loader SpecLoader) Option {
	return func(s *Scheduler) { s.loader = loader }
}

// Scheduler runs named recurring jobs on its own goroutine
type Scheduler struct {
	lifecycle sync.Mutex // serializes Start and Stop

	mu       sync.Mutex
	cfg      Config
	registry *Registry
	tasks    map[string]Func
	loader   SpecLoader
	now      func() time.Time
	metrics  *metrics.Metrics
	state    State
	stopCh   chan struct{}
	doneCh   chan struct{}
	wake     chan struct{}
}

// New creates a stopped scheduler
func New(cfg Config, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = def.MaxIdle
	}
	if cfg.EmptyWait <= 0 {
		cfg.EmptyWait = def.EmptyWait
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	s := &Scheduler{
		cfg:      cfg,
		registry: NewRegistry(),
		tasks:    make(map[string]Func),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTask binds a tag to the function jobs with that tag run
func (s *Scheduler) RegisterTask(tag string, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[tag] = fn
}

// Configure clears all jobs and registers specs. Specs with a non-positive
// interval, an unknown tag or a bad anchor are logged and skipped. It returns
// the number of jobs registered.
func (s *Scheduler) Configure(specs []Spec) int {
	s.mu.Lock()
	s.registry.Clear()
	now := s.now()
	for _, spec := range specs {
		if err := s.addLocked(spec, now); err != nil {
			log.Printf("[Scheduler] Skipping job %q: %v", spec.Tag, err)
			continue
		}
		log.Printf("[Scheduler] Registered job %q every %v%s", spec.Tag, spec.Interval, anchorSuffix(spec.Anchor))
	}
	n := s.registry.Len()
	s.mu.Unlock()

	s.metrics.SetJobsActive(n)
	s.nudge()
	return n
}

func (s *Scheduler) addLocked(spec Spec, now time.Time) error {
	if spec.Interval <= 0 {
		return ErrInvalidInterval
	}
	fn, ok := s.tasks[spec.Tag]
	if !ok {
		return ErrNoTask
	}
	anchor, err := ParseAnchor(spec.Anchor, spec.Interval)
	if err != nil {
		return err
	}
	return s.registry.Add(&Job{
		Tag:        spec.Tag,
		Interval:   spec.Interval,
		Anchor:     anchor,
		Registered: now,
		run:        fn,
	})
}

func anchorSuffix(anchor string) string {
	if anchor == "" {
		return ""
	}
	return " at " + anchor
}

// Start reads job specs, configures them and launches the loop. It is a no-op
// when the scheduler is already running. A loader error falls back to DefaultSpecs.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		log.Printf("[Scheduler] Start ignored, scheduler is %s", s.State())
		return
	}
	s.state = StateStarting
	loader := s.loader
	s.mu.Unlock()

	specs := DefaultSpecs()
	if loader != nil {
		loaded, err := loader()
		if err != nil {
			log.Printf("[Scheduler] Warning: could not read job configuration, using defaults: %v", err)
		} else {
			specs = loaded
		}
	}

	if n := s.Configure(specs); n == 0 {
		log.Printf("[Scheduler] Warning: no jobs registered; loop started for later reconfiguration")
	}

	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.state = StateRunning
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.loop(ctx, stopCh, doneCh)
	log.Printf("[Scheduler] Started")
}

// Stop signals the loop and waits up to StopTimeout for it to exit. A loop
// still busy after the timeout is left to finish on its own; the scheduler
// stays in StateStopping, refusing Start, until it does.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	log.Printf("[Scheduler] Stopping...")
	close(stopCh)

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-doneCh:
		log.Printf("[Scheduler] Stopped")
		s.markStopped(doneCh)
	case <-timer.C:
		log.Printf("[Scheduler] Warning: loop did not exit within %v", s.cfg.StopTimeout)
		go func() {
			<-doneCh
			log.Printf("[Scheduler] Stopped after the running job returned")
			s.markStopped(doneCh)
		}()
	}
}

func (s *Scheduler) markStopped(doneCh chan struct{}) {
	s.mu.Lock()
	if s.doneCh == doneCh && s.state == StateStopping {
		s.state = StateStopped
	}
	s.mu.Unlock()
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IdleDuration returns how long the loop would wait before the next due job,
// never more than MaxIdle. The boolean is false when no jobs are registered.
func (s *Scheduler) IdleDuration() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Idle(s.now(), s.cfg.MaxIdle)
}

// Jobs returns a snapshot of registered jobs
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Infos()
}

// RunPending runs every due job once and returns how many ran. Job failures
// are logged and do not affect the other jobs.
func (s *Scheduler) RunPending(ctx context.Context) int {
	s.mu.Lock()
	due := s.registry.Due(s.now())
	s.mu.Unlock()

	for _, job := range due {
		s.execute(ctx, job)
	}
	return len(due)
}

// RunNow runs the job bound to tag immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, tag string) error {
	s.mu.Lock()
	fn, ok := s.tasks[tag]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTask, tag)
	}
	return s.safeRun(ctx, tag, fn)
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	start := s.now()
	err := s.safeRun(ctx, job.Tag, job.run)

	s.mu.Lock()
	// The job may have been replaced by a reconfiguration while it ran.
	if current, ok := s.registry.Get(job.Tag); ok && current == job {
		job.LastRun = s.now()
	}
	s.mu.Unlock()

	s.metrics.RecordJobRun(job.Tag, err == nil, s.now().Sub(start).Seconds())
	if err != nil {
		log.Printf("[Scheduler] Job %q failed: %v", job.Tag, err)
	}
}

func (s *Scheduler) safeRun(ctx context.Context, tag string, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v\n%s", tag, r, debug.Stack())
		}
	}()
	log.Printf("[Scheduler] Running job %q", tag)
	return fn(ctx)
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.pass(ctx, stopCh); err != nil {
			log.Printf("[Scheduler] Error in scheduler loop, backing off %v: %v", s.cfg.ErrorBackoff, err)
			if !s.sleep(ctx, stopCh, s.cfg.ErrorBackoff, false) {
				return
			}
		}
	}
}

// pass waits for the next due job (or a bounded idle period) and runs what is due.
func (s *Scheduler) pass(ctx context.Context, stopCh <-chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	wait, ok := s.IdleDuration()
	if !ok {
		wait = s.cfg.EmptyWait
	}
	if wait > 0 && !s.sleep(ctx, stopCh, wait, true) {
		return nil
	}
	s.RunPending(ctx)
	return nil
}

// sleep waits for d, returning false if the scheduler was stopped. When
// wakeable, a reconfiguration cuts the wait short.
func (s *Scheduler) sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration, wakeable bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var wake <-chan struct{}
	if wakeable {
		wake = s.wake
	}
	select {
	case <-stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	case <-timer.C:
		return true
	}
}
