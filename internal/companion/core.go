// Package companion wires the collaborators, the periodic task scheduler and
// the inbound message dispatcher into the companion core.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jordanhubbard/inanna/internal/dispatcher"
	"github.com/jordanhubbard/inanna/internal/eventlog"
	"github.com/jordanhubbard/inanna/internal/history"
	"github.com/jordanhubbard/inanna/internal/metrics"
	"github.com/jordanhubbard/inanna/internal/scheduler"
	"github.com/jordanhubbard/inanna/internal/telemetry"
	"github.com/jordanhubbard/inanna/pkg/config"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

// ErrStopped is returned when starting a core that was stopped
var ErrStopped = errors.New("core stopped")

// Event sources
const (
	sourceCore         = "CoreSystem"
	sourceCoreInternal = "CoreSystemInternal"
	sourceScheduler    = "Scheduler"
)

// Option configures a Core
type Option func(*Core)

// WithMetrics records core activity on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Core) { c.metrics = m }
}

// WithInstruments records pipeline latency on the OpenTelemetry instruments
func WithInstruments(i *telemetry.Instruments) Option {
	return func(c *Core) { c.instruments = i }
}

// WithSchedulerOptions passes options to the scheduler, e.g. a test clock
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(c *Core) { c.schedOpts = append(c.schedOpts, opts...) }
}

// Core is the companion core
type Core struct {
	cfgMu sync.RWMutex
	cfg   *config.Config
	birth time.Time

	collab  Collaborators
	history *history.History
	state   *State
	sched   *scheduler.Scheduler
	disp    *dispatcher.Dispatcher
	listen  *listener

	metrics     *metrics.Metrics
	instruments *telemetry.Instruments
	tracer      trace.Tracer
	schedOpts   []scheduler.Option

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	loopDone  chan struct{}
	workers   sync.WaitGroup
}

// New validates cfg and builds a stopped core. Nil collaborators are
// replaced with no-op defaults.
func New(cfg *config.Config, collab Collaborators, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Core{
		cfg:     cfg,
		birth:   cfg.BirthDate(),
		collab:  collab.withDefaults(),
		history: history.New(cfg.General.MaxHistory),
		state:   NewState(),
		listen:  newListener(cfg.Speech.CaptureInterval),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	schedOpts := append([]scheduler.Option{
		scheduler.WithMetrics(c.metrics),
		scheduler.WithSpecLoader(func() ([]scheduler.Spec, error) {
			return SpecsFromConfig(c.config()), nil
		}),
	}, c.schedOpts...)
	c.sched = scheduler.New(scheduler.Config{
		MaxIdle:      cfg.Scheduler.MaxIdle,
		EmptyWait:    cfg.Scheduler.EmptyWait,
		ErrorBackoff: cfg.Scheduler.ErrorBackoff,
		StopTimeout:  cfg.Scheduler.StopTimeout,
	}, schedOpts...)
	c.registerTasks(cfg)

	c.disp = dispatcher.New(dispatcher.Config{
		QueueCapacity: cfg.Dispatcher.QueueCapacity,
		PollInterval:  cfg.Dispatcher.PollInterval,
		ErrorPause:    cfg.Dispatcher.ErrorPause,
	},
		dispatcher.WithMetrics(c.metrics),
		dispatcher.WithIdleHook(c.healthCheck),
		dispatcher.WithErrorHook(c.reportLoopError),
	)
	c.disp.Handle(messages.TypeText, c.handleText)
	c.disp.Handle(messages.TypeVoiceTranscript, c.handleVoice)
	c.disp.Handle(messages.TypeStartListening, c.handleStartListening)
	c.disp.Handle(messages.TypeCaptureFailed, c.handleCaptureFailed)

	return c, nil
}

// SpecsFromConfig turns the updates section into scheduler specs. A zero
// interval is passed through so the scheduler logs and skips it.
func SpecsFromConfig(cfg *config.Config) []scheduler.Spec {
	return []scheduler.Spec{
		{Tag: scheduler.TagExternalFact, Interval: cfg.Updates.KnowledgeInterval},
		{Tag: scheduler.TagWellbeing, Interval: cfg.Updates.WellbeingInterval, Anchor: cfg.Updates.WellbeingAnchor},
	}
}

func (c *Core) registerTasks(cfg *config.Config) {
	fetcher := scheduler.NewFactFetcher(cfg.Updates.FactSourceURL, cfg.Updates.FactTimeout)
	c.sched.RegisterTask(scheduler.TagExternalFact, scheduler.ExternalFactTask(fetcher, c.RegisterFact))
	c.sched.RegisterTask(scheduler.TagWellbeing, scheduler.WellbeingTask(c.collab.Connection, c.collab.Protection))
}

func (c *Core) config() *config.Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// Start establishes the connection, starts the scheduler and launches the
// dispatcher loop. It is idempotent; a stopped core cannot be restarted.
func (c *Core) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return nil
	}
	c.started = true

	if !c.collab.Connection.Establish() {
		log.Printf("[Core] CRITICAL: spiritual connection could not be established")
		c.collab.Events.Append(messages.EventStartupError, map[string]any{"detalle": "Fallo conexión espiritual"}, sourceCore, c.annotations())
	}

	c.sched.Start(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	go func() {
		defer close(c.loopDone)
		if err := c.disp.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Core] Dispatcher loop ended: %v", err)
		}
	}()

	c.collab.Events.Append(messages.EventCoreStarted, map[string]any{
		"creador":  c.config().General.CreatorName,
		"conexion": c.collab.Connection.State(),
	}, sourceCore, c.annotations())
	log.Printf("[Core] Started (connection %s)", c.collab.Connection.State())
	return nil
}

// Stop stops the scheduler, ends the dispatcher loop and closes the event
// log. It is a no-op before Start and after the first Stop.
func (c *Core) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if !c.started || c.stopped {
		return
	}
	c.stopped = true

	c.sched.Stop()

	if err := c.disp.Shutdown(); err != nil {
		log.Printf("[Core] Warning: could not enqueue shutdown sentinel: %v", err)
		c.cancel()
	}

	timeout := c.config().Dispatcher.StopTimeout
	if timeout <= 0 {
		timeout = config.DefaultConfig().Dispatcher.StopTimeout
	}
	select {
	case <-c.loopDone:
	case <-time.After(timeout):
		log.Printf("[Core] Warning: dispatcher loop did not stop within %v, cancelling", timeout)
		c.cancel()
		select {
		case <-c.loopDone:
		case <-time.After(timeout):
			log.Printf("[Core] Warning: dispatcher loop abandoned")
		}
	}
	c.cancel()

	if !waitTimeout(&c.workers, timeout) {
		log.Printf("[Core] Warning: background workers still running after %v", timeout)
	}

	c.collab.Events.Append(messages.EventCoreStopped, nil, sourceCore, c.annotations())
	if err := c.collab.Events.Close(); err != nil {
		log.Printf("[Core] Error: closing event log: %v", err)
	}
	log.Printf("[Core] Stopped")
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Reconfigure applies a reloaded configuration to the scheduler
func (c *Core) Reconfigure(cfg *config.Config) int {
	if cfg == nil {
		return 0
	}
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()

	c.registerTasks(cfg)
	n := c.sched.Configure(SpecsFromConfig(cfg))
	c.collab.Events.Append(messages.EventSchedulerReload, map[string]any{"trabajos": n}, sourceScheduler, c.annotations())
	log.Printf("[Core] Reconfigured scheduler with %d jobs", n)
	return n
}

// Submit enqueues an envelope
func (c *Core) Submit(env *messages.Envelope) error {
	return c.disp.Submit(env)
}

// SubmitText enqueues a typed message
func (c *Core) SubmitText(text, sessionID, origin string) error {
	return c.disp.Submit(messages.Text(text, sessionID, origin))
}

// SubmitVoice enqueues a voice transcript
func (c *Core) SubmitVoice(transcript, sessionID, origin string) error {
	return c.disp.Submit(messages.VoiceTranscript(transcript, sessionID, origin))
}

// RequestListening asks the core to capture speech for a session
func (c *Core) RequestListening(sessionID, origin string) error {
	return c.disp.Submit(messages.StartListening(sessionID, origin))
}

// RegisterFact stores a fetched fact in the knowledge base
func (c *Core) RegisterFact(source, info string) {
	if !c.collab.Knowledge.AddKnowledge(source, info) {
		log.Printf("[Core] Warning: fact from %s not stored", source)
		return
	}
	c.collab.Events.Append(messages.EventFactRegistered, map[string]any{"fuente": source, "dato": info}, sourceScheduler, c.annotations())
}

// Welcome delivers the greeting to a session
func (c *Core) Welcome(ctx context.Context, sessionID, origin string) error {
	msg := fmt.Sprintf("Inanna Sophia (Core Unificado) lista para El Principal: %s.\nConexión Espiritual: %s.",
		c.config().General.CreatorName, c.collab.Connection.State())
	return c.collab.Sink.Deliver(ctx, messages.NewResponse(msg, messages.TagSystem, sessionID, origin))
}

// History returns a copy of the conversation
func (c *Core) History() []history.Turn {
	return c.history.Turns()
}

// Snapshot returns the shared emotional state
func (c *Core) Snapshot() Snapshot {
	return c.state.Snapshot()
}

// Jobs returns the scheduled jobs
func (c *Core) Jobs() []scheduler.JobInfo {
	return c.sched.Jobs()
}

// RunTask runs a scheduled task immediately
func (c *Core) RunTask(ctx context.Context, tag string) error {
	return c.sched.RunNow(ctx, tag)
}

// Drain waits until every submitted envelope has been processed
func (c *Core) Drain(ctx context.Context) error {
	return c.disp.Drain(ctx)
}

// QueueLen returns the number of queued envelopes
func (c *Core) QueueLen() int {
	return c.disp.Len()
}

// healthCheck runs when the dispatcher is idle
func (c *Core) healthCheck(context.Context) {
	c.collab.Connection.Verify(c.config().Simulation.ConnectionCheckInterval)
}

// reportLoopError records a handler failure that escaped to the loop
func (c *Core) reportLoopError(env *messages.Envelope, err error, stack string) {
	details := map[string]any{"error": err.Error(), "traceback": stack}
	if env != nil {
		details["tipo"] = string(env.Type)
		details["sesion"] = env.SessionID
	}
	c.collab.Events.Append(messages.EventLoopError, details, sourceCoreInternal, c.annotations())
}

func (c *Core) annotations() eventlog.Annotations {
	snap := c.state.Snapshot()
	level := c.collab.Synchrony.Status().Level
	return eventlog.Annotations{
		IAEmotion:   snap.IAEmotion,
		UserEmotion: snap.UserEmotion,
		SyncLevel:   &level,
	}
}

func (c *Core) deliver(ctx context.Context, resp messages.Response) {
	if err := c.collab.Sink.Deliver(ctx, resp); err != nil {
		log.Printf("[Core] Error: delivery to %s failed: %v", resp.SessionID, err)
	}
}
