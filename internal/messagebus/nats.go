package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

// NatsMessageBus publishes core events and responses on NATS and receives
// inbound messages. Events go through JetStream when a stream is configured.
type NatsMessageBus struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	mu            sync.Mutex
	subscriptions map[string]*nats.Subscription
	streamName    string
	prefix        string
	url           string
}

// Config holds NATS configuration
type Config struct {
	URL           string        // NATS server URL (e.g., "nats://localhost:4222")
	SubjectPrefix string        // Root subject token (default: "inanna")
	StreamName    string        // Optional JetStream stream for events; empty uses core NATS
	Timeout       time.Duration // Connection timeout
}

// NewNatsMessageBus connects to NATS
func NewNatsMessageBus(cfg Config) (*NatsMessageBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "inanna"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("inanna-core"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[NATS] Warning: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	mb := &NatsMessageBus{
		conn:          nc,
		subscriptions: make(map[string]*nats.Subscription),
		streamName:    cfg.StreamName,
		prefix:        cfg.SubjectPrefix,
		url:           cfg.URL,
	}

	if cfg.StreamName != "" {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		mb.js = js
		if err := mb.ensureStream(); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
	}

	log.Printf("[NATS] Connected to %s (prefix %s)", cfg.URL, cfg.SubjectPrefix)
	return mb, nil
}

// ensureStream creates or updates the events stream
func (mb *NatsMessageBus) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      mb.streamName,
		Subjects:  []string{mb.prefix + ".events.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  256 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}

	if _, err := mb.js.StreamInfo(mb.streamName); err != nil {
		if _, err := mb.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Printf("[NATS] Created JetStream stream: %s", mb.streamName)
		return nil
	}
	if _, err := mb.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	log.Printf("[NATS] Updated JetStream stream: %s", mb.streamName)
	return nil
}

// EventSubject returns the subject for an event type
func (mb *NatsMessageBus) EventSubject(eventType string) string {
	return mb.prefix + ".events." + subjectToken(eventType)
}

// ResponseSubject returns the subject for a session's responses
func (mb *NatsMessageBus) ResponseSubject(sessionID string) string {
	return mb.prefix + ".responses." + subjectToken(sessionID)
}

// InboundSubject returns the subject inbound messages are read from
func (mb *NatsMessageBus) InboundSubject() string {
	return mb.prefix + ".inbound"
}

// PublishEvent publishes an event record
func (mb *NatsMessageBus) PublishEvent(event *messages.EventMessage) error {
	subject := mb.EventSubject(event.Type)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if mb.js != nil {
		if _, err := mb.js.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish event to %s: %w", subject, err)
		}
		return nil
	}
	return mb.publish(subject, data)
}

// Deliver publishes a response to the session's subject
func (mb *NatsMessageBus) Deliver(_ context.Context, resp messages.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return mb.publish(mb.ResponseSubject(resp.SessionID), data)
}

func (mb *NatsMessageBus) publish(subject string, data []byte) error {
	if err := mb.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message to %s: %w", subject, err)
	}
	return nil
}

// SubscribeInbound delivers every message on the inbound subject and its
// children to handler. Inbound uses a queue group so several core instances
// share the load.
func (mb *NatsMessageBus) SubscribeInbound(handler nats.MsgHandler) error {
	subject := mb.InboundSubject()
	sub, err := mb.conn.QueueSubscribe(subject, mb.prefix+"-core", handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	mb.track(subject, sub)
	log.Printf("[NATS] Subscribed to %s", subject)
	return nil
}

// SubscribeResponses delivers responses for a session, for adapters and tests
func (mb *NatsMessageBus) SubscribeResponses(sessionID string, handler func(messages.Response)) error {
	subject := mb.ResponseSubject(sessionID)
	sub, err := mb.conn.Subscribe(subject, func(msg *nats.Msg) {
		var resp messages.Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			log.Printf("[NATS] Failed to unmarshal response: %v", err)
			return
		}
		handler(resp)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	mb.track(subject, sub)
	return nil
}

func (mb *NatsMessageBus) track(subject string, sub *nats.Subscription) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if old, ok := mb.subscriptions[subject]; ok {
		_ = old.Unsubscribe()
	}
	mb.subscriptions[subject] = sub
}

// Unsubscribe removes a subscription
func (mb *NatsMessageBus) Unsubscribe(subject string) error {
	mb.mu.Lock()
	sub, ok := mb.subscriptions[subject]
	delete(mb.subscriptions, subject)
	mb.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription found for %s", subject)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
	}
	log.Printf("[NATS] Unsubscribed from %s", subject)
	return nil
}

// Flush waits until the server has processed pending publishes
func (mb *NatsMessageBus) Flush(timeout time.Duration) error {
	return mb.conn.FlushTimeout(timeout)
}

// Close drains subscriptions and closes the connection
func (mb *NatsMessageBus) Close() error {
	mb.mu.Lock()
	subjects := make([]string, 0, len(mb.subscriptions))
	for subject := range mb.subscriptions {
		subjects = append(subjects, subject)
	}
	mb.mu.Unlock()
	for _, subject := range subjects {
		_ = mb.Unsubscribe(subject)
	}
	mb.conn.Close()
	log.Printf("[NATS] Closed connection")
	return nil
}

// Health reports whether the connection (and stream, if any) is usable
func (mb *NatsMessageBus) Health() error {
	if mb.conn.IsClosed() {
		return fmt.Errorf("NATS connection is closed")
	}
	if !mb.conn.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}
	if mb.js != nil {
		if _, err := mb.js.StreamInfo(mb.streamName); err != nil {
			return fmt.Errorf("JetStream stream %s is unhealthy: %w", mb.streamName, err)
		}
	}
	return nil
}

// Stats returns connection statistics
func (mb *NatsMessageBus) Stats() map[string]interface{} {
	mb.mu.Lock()
	subs := len(mb.subscriptions)
	mb.mu.Unlock()

	stats := map[string]interface{}{
		"url":           mb.url,
		"prefix":        mb.prefix,
		"connected":     mb.conn.IsConnected(),
		"subscriptions": subs,
	}
	if mb.js != nil {
		stats["stream"] = mb.streamName
		if info, err := mb.js.StreamInfo(mb.streamName); err == nil {
			stats["stream_messages"] = info.State.Msgs
			stats["stream_bytes"] = info.State.Bytes
		}
	}
	return stats
}

// subjectToken makes s usable as a single subject token
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
