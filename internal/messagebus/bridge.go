package messagebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

// InboundOrigin is the origin given to NATS messages that do not name one
const InboundOrigin = "nats"

// Limits on the sessions remembered for response publishing
const (
	DefaultMaxSessions = 1024
	DefaultSessionTTL  = 24 * time.Hour
)

var (
	// ErrUnsupportedType is returned for inbound messages of a type remote
	// producers may not submit.
	ErrUnsupportedType = errors.New("unsupported inbound message type")

	// ErrReservedSession is returned when a remote producer claims a session
	// that belongs to a local surface.
	ErrReservedSession = errors.New("reserved session id")
)

var reservedSessions = map[string]bool{
	messages.ConsoleSession: true,
}

// Bus is the NATS surface the bridge needs
type Bus interface {
	EventPublisher
	ResponsePublisher
	InboundSubscriber
}

// InboundMessage is the JSON accepted on the inbound subject. A payload that
// is not JSON is treated as plain text.
type InboundMessage struct {
	Type      messages.MessageType `json:"type,omitempty"`
	Text      string               `json:"text"`
	SessionID string               `json:"session_id,omitempty"`
	Origin    string               `json:"origin,omitempty"`
}

// Ack is sent back to request/reply producers
type Ack struct {
	ID       string `json:"id,omitempty"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Bridge connects the core to NATS: inbound messages are submitted to the
// dispatcher, events are mirrored, and responses for sessions that arrived
// over NATS are published back.
type Bridge struct {
	bus    Bus
	submit Submitter
	events map[string]bool

	mu          sync.RWMutex
	sessions    map[string]time.Time // last inbound message per session
	maxSessions int
	sessionTTL  time.Duration
	now         func() time.Time
	started     bool
}

// NewBridge creates a bridge. With no eventTypes every event is mirrored.
func NewBridge(bus Bus, submit Submitter, eventTypes ...string) *Bridge {
	b := &Bridge{
		bus:         bus,
		submit:      submit,
		sessions:    make(map[string]time.Time),
		maxSessions: DefaultMaxSessions,
		sessionTTL:  DefaultSessionTTL,
		now:         time.Now,
	}
	if len(eventTypes) > 0 {
		b.events = make(map[string]bool, len(eventTypes))
		for _, t := range eventTypes {
			b.events[t] = true
		}
	}
	return b
}

// LimitSessions bounds how many NATS sessions are remembered and for how
// long after their last inbound message. Non-positive values keep the default.
func (b *Bridge) LimitSessions(limit int, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit > 0 {
		b.maxSessions = limit
	}
	if ttl > 0 {
		b.sessionTTL = ttl
	}
}

// Start subscribes to inbound messages
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	if err := b.bus.SubscribeInbound(b.handleInbound); err != nil {
		b.mu.Lock()
		b.started = false
		b.mu.Unlock()
		return err
	}
	log.Printf("[Bridge] Started")
	return nil
}

// PublishEvent mirrors an event when its type is forwarded
func (b *Bridge) PublishEvent(event *messages.EventMessage) error {
	if event == nil || (b.events != nil && !b.events[event.Type]) {
		return nil
	}
	return b.bus.PublishEvent(event)
}

// Deliver publishes resp when its session reached the core through NATS
func (b *Bridge) Deliver(ctx context.Context, resp messages.Response) error {
	if !b.Knows(resp.SessionID) {
		return nil
	}
	return b.bus.Deliver(ctx, resp)
}

// Knows reports whether sessionID has sent a message over NATS within the
// session TTL
func (b *Bridge) Knows(sessionID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen, ok := b.sessions[sessionID]
	return ok && b.now().Sub(seen) < b.sessionTTL
}

// Sessions returns the number of remembered sessions
func (b *Bridge) Sessions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// remember records sessionID, dropping expired sessions and then the least
// recently seen ones to stay within maxSessions.
func (b *Bridge) remember(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.sessions[sessionID] = now
	if len(b.sessions) <= b.maxSessions {
		return
	}
	for id, seen := range b.sessions {
		if now.Sub(seen) >= b.sessionTTL {
			delete(b.sessions, id)
		}
	}
	for len(b.sessions) > b.maxSessions {
		oldest, oldestSeen := "", now
		for id, seen := range b.sessions {
			if id != sessionID && !seen.After(oldestSeen) {
				oldest, oldestSeen = id, seen
			}
		}
		if oldest == "" {
			return
		}
		delete(b.sessions, oldest)
	}
}

func (b *Bridge) handleInbound(msg *nats.Msg) {
	env, err := DecodeInbound(msg.Data)
	if err == nil && reservedSessions[env.SessionID] {
		err = fmt.Errorf("%w: %s", ErrReservedSession, env.SessionID)
	}
	if err == nil {
		b.remember(env.SessionID)
		err = b.submit.Submit(env)
	}

	ack := Ack{Accepted: err == nil}
	if env != nil {
		ack.ID = env.ID
	}
	if err != nil {
		ack.Error = err.Error()
		log.Printf("[Bridge] Warning: inbound message on %s rejected: %v", msg.Subject, err)
	}
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(ack)
	if err := msg.Respond(data); err != nil {
		log.Printf("[Bridge] Failed to acknowledge inbound message: %v", err)
	}
}

// DecodeInbound turns an inbound payload into an envelope
func DecodeInbound(data []byte) (*messages.Envelope, error) {
	var in InboundMessage
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &in); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inbound message: %w", err)
		}
	} else {
		in.Text = trimmed
	}

	if in.Type == "" {
		in.Type = messages.TypeText
	}
	if in.Origin == "" {
		in.Origin = InboundOrigin
	}

	switch in.Type {
	case messages.TypeText, messages.TypeVoiceTranscript:
		if strings.TrimSpace(in.Text) == "" {
			return nil, errors.New("inbound message has no text")
		}
	case messages.TypeStartListening:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, in.Type)
	}
	return messages.NewEnvelope(in.Type, in.Text, in.SessionID, in.Origin), nil
}

// Verify the bridge can stand in for the bus it fronts.
var (
	_ EventPublisher    = (*Bridge)(nil)
	_ ResponsePublisher = (*Bridge)(nil)
)
