package companion

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

// Capture replies
const (
	ReplySpeechUnavailable = "STT no disponible o no configurado."
	ReplyAlreadyListening  = "Ya estoy escuchando."
	ReplyListening         = "Escuchando..."
)

// Capture results starting with one of these are failures
var captureFailures = []string{"[Error", "[Silencio", "[STT No", "[Audio No"}

// listener allows one capture at a time, at most one per interval
type listener struct {
	inFlight atomic.Bool
	limiter  *rate.Limiter
}

func newListener(interval time.Duration) *listener {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &listener{limiter: rate.NewLimiter(limit, 1)}
}

// acquire reserves the capture slot
func (l *listener) acquire() bool {
	if !l.inFlight.CompareAndSwap(false, true) {
		return false
	}
	if !l.limiter.Allow() {
		l.inFlight.Store(false)
		return false
	}
	return true
}

func (l *listener) release() {
	l.inFlight.Store(false)
}

// IsCaptureFailure reports whether a capture result is an error marker
func IsCaptureFailure(result string) bool {
	for _, prefix := range captureFailures {
		if strings.HasPrefix(result, prefix) {
			return true
		}
	}
	return false
}

// handleStartListening launches a capture without blocking the consumer.
// The result comes back through the queue.
func (c *Core) handleStartListening(ctx context.Context, env *messages.Envelope) error {
	if !c.collab.Speech.Available() {
		c.deliver(ctx, messages.NewResponse(ReplySpeechUnavailable, messages.TagError, env.SessionID, env.Origin))
		return nil
	}
	if !c.listen.acquire() {
		c.deliver(ctx, messages.NewResponse(ReplyAlreadyListening, messages.TagSystem, env.SessionID, env.Origin))
		return nil
	}

	c.deliver(ctx, messages.NewResponse(ReplyListening, messages.TagSystem, env.SessionID, env.Origin))

	c.workers.Add(1)
	go c.capture(ctx, env.SessionID, env.Origin)
	return nil
}

func (c *Core) capture(ctx context.Context, sessionID, origin string) {
	defer c.workers.Done()
	defer c.listen.release()

	result := c.transcribe(ctx)
	var env *messages.Envelope
	if strings.TrimSpace(result) == "" {
		result = "[Silencio detectado]"
	}
	if IsCaptureFailure(result) {
		env = messages.CaptureFailed(result, sessionID, origin)
	} else {
		env = messages.VoiceTranscript(result, sessionID, origin)
	}
	if err := c.disp.Submit(env); err != nil {
		log.Printf("[Core] Warning: capture result for %s dropped: %v", sessionID, err)
	}
}

func (c *Core) transcribe(ctx context.Context) (result string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Core] Error: speech capture panic: %v", r)
			result = "[Error en captura de voz]"
		}
	}()
	return c.collab.Speech.ListenAndTranscribe(ctx)
}

func (c *Core) handleCaptureFailed(ctx context.Context, env *messages.Envelope) error {
	c.deliver(ctx, messages.NewResponse("STT: "+env.Payload, messages.TagError, env.SessionID, env.Origin))
	return nil
}
