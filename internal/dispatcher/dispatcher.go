package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jordanhubbard/inanna/internal/metrics"
	"github.com/jordanhubbard/inanna/internal/telemetry"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

var (
	ErrQueueFull      = errors.New("dispatch queue is full")
	ErrNilEnvelope    = errors.New("nil envelope")
	ErrShuttingDown   = errors.New("dispatcher is shutting down")
	ErrAlreadyRunning = errors.New("dispatcher loop already running")
)

// State is the consumer loop state
type State int32

const (
	StateIdle State = iota
	StateProcessing
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler processes one envelope
type Handler func(ctx context.Context, env *messages.Envelope) error

// Config sizes the queue and the loop's waits
type Config struct {
	QueueCapacity int
	PollInterval  time.Duration
	ErrorPause    time.Duration
}

// DefaultConfig returns the standard dispatcher settings
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 100,
		PollInterval:  time.Second,
		ErrorPause:    2 * time.Second,
	}
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithIdleHook runs fn each time a receive times out with nothing queued
func WithIdleHook(fn func(ctx context.Context)) Option {
	return func(d *Dispatcher) { d.idleHook = fn }
}

// WithErrorHook reports handler failures that escaped to the loop
func WithErrorHook(fn func(env *messages.Envelope, err error, stack string)) Option {
	return func(d *Dispatcher) { d.onError = fn }
}

// WithMetrics records queue activity on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher serializes envelopes from many producers into one consumer
type Dispatcher struct {
	cfg   Config
	queue chan *messages.Envelope

	mu       sync.RWMutex
	handlers map[messages.MessageType]Handler

	// sendMu orders producer sends against the sentinel send
	sendMu   sync.Mutex
	shutting bool

	running atomic.Bool
	state   atomic.Int32
	pending atomic.Int64

	idleHook func(ctx context.Context)
	onError  func(env *messages.Envelope, err error, stack string)
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// New creates a dispatcher with an empty queue and no handlers
func New(cfg Config, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ErrorPause < 0 {
		cfg.ErrorPause = 0
	}
	d := &Dispatcher{
		cfg:      cfg,
		queue:    make(chan *messages.Envelope, cfg.QueueCapacity),
		handlers: make(map[messages.MessageType]Handler),
		tracer:   telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle registers the handler for a message type, replacing any previous one
func (d *Dispatcher) Handle(t messages.MessageType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Submit enqueues env without blocking. It fails with ErrQueueFull when the
// queue is at capacity and with ErrShuttingDown once Shutdown was called.
func (d *Dispatcher) Submit(env *messages.Envelope) error {
	if env == nil {
		return ErrNilEnvelope
	}
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if d.shutting {
		d.metrics.RecordSubmit(string(env.Type), "shutting_down")
		return ErrShuttingDown
	}

	d.pending.Add(1)
	select {
	case d.queue <- env:
		d.metrics.RecordSubmit(string(env.Type), "")
		d.metrics.SetQueueDepth(len(d.queue))
		return nil
	default:
		d.pending.Add(-1)
		d.metrics.RecordSubmit(string(env.Type), "queue_full")
		return ErrQueueFull
	}
}

// Shutdown stops accepting envelopes and queues the sentinel behind the ones
// already waiting. ErrQueueFull means the sentinel could not be queued; the
// loop then only ends through its context.
func (d *Dispatcher) Shutdown() error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if d.shutting {
		return nil
	}
	d.shutting = true
	select {
	case d.queue <- nil:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued envelopes
func (d *Dispatcher) Len() int {
	return len(d.queue)
}

// Capacity returns the queue bound
func (d *Dispatcher) Capacity() int {
	return cap(d.queue)
}

// Pending returns the number of accepted envelopes not yet processed
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// State returns the loop state
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Drain blocks until every accepted envelope has been processed or ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for d.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Run consumes the queue until the sentinel arrives or ctx is cancelled. Only
// one Run may be active at a time.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)
	defer d.state.Store(int32(StateTerminated))

	d.state.Store(int32(StateIdle))
	log.Printf("[Dispatcher] Loop started (capacity %d)", cap(d.queue))

	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.cfg.PollInterval)

		select {
		case <-ctx.Done():
			log.Printf("[Dispatcher] Loop cancelled")
			return ctx.Err()

		case env := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			if env == nil {
				d.state.Store(int32(StateShuttingDown))
				log.Printf("[Dispatcher] Shutdown sentinel received")
				return nil
			}
			d.state.Store(int32(StateProcessing))
			err := d.dispatch(ctx, env)
			d.pending.Add(-1)
			d.state.Store(int32(StateIdle))
			if err != nil {
				d.pause(ctx)
			}

		case <-timer.C:
			if d.idleHook != nil {
				d.runIdleHook(ctx)
			}
		}
	}
}

// dispatch routes env to its handler. Handler errors and panics are logged,
// reported and returned so the loop can pause.
func (d *Dispatcher) dispatch(ctx context.Context, env *messages.Envelope) (err error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch",
		trace.WithAttributes(
			attribute.String("envelope.id", env.ID),
			attribute.String("envelope.type", string(env.Type)),
			attribute.String("envelope.session", env.SessionID),
			attribute.String("envelope.origin", env.Origin),
		))
	defer span.End()

	var stack string
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Printf("[Dispatcher] Error processing %s envelope %s (session=%s origin=%s): %v\n%s",
				env.Type, env.ID, env.SessionID, env.Origin, err, stack)
			if d.onError != nil {
				d.report(env, err, stack)
			}
		}
		d.metrics.RecordProcessed(string(env.Type), err == nil)
	}()

	d.mu.RLock()
	h, ok := d.handlers[env.Type]
	d.mu.RUnlock()
	if !ok {
		log.Printf("[Dispatcher] Warning: no handler for message type %q, dropping %s", env.Type, env.ID)
		d.metrics.RecordSubmit(string(env.Type), "unknown_type")
		return nil
	}
	return h(ctx, env)
}

func (d *Dispatcher) report(env *messages.Envelope, err error, stack string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatcher] Error hook panicked: %v", r)
		}
	}()
	d.onError(env, err, stack)
}

func (d *Dispatcher) runIdleHook(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatcher] Idle hook panicked: %v", r)
		}
	}()
	d.idleHook(ctx)
}

func (d *Dispatcher) pause(ctx context.Context) {
	if d.cfg.ErrorPause <= 0 {
		return
	}
	t := time.NewTimer(d.cfg.ErrorPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
