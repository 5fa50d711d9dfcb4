// Package delivery hands core responses to their destinations.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

// Sink delivers one response
type Sink interface {
	Deliver(ctx context.Context, resp messages.Response) error
}

// LogSink writes responses to the standard logger
type LogSink struct{}

// Deliver implements Sink
func (LogSink) Deliver(_ context.Context, resp messages.Response) error {
	log.Printf("[Delivery] %s/%s (%s): %s", resp.SessionID, resp.Origin, resp.Tag, resp.Message)
	return nil
}

// WriterSink renders responses as console lines, e.g. for stdout
type WriterSink struct {
	mu   sync.Mutex
	w    io.Writer
	name string
}

// NewWriterSink creates a sink that prefixes assistant replies with name
func NewWriterSink(w io.Writer, name string) *WriterSink {
	if name == "" {
		name = "Inanna"
	}
	return &WriterSink{w: w, name: name}
}

// Deliver implements Sink
func (s *WriterSink) Deliver(_ context.Context, resp messages.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch resp.Tag {
	case messages.TagSystem:
		_, err = fmt.Fprintf(s.w, "--- %s ---\n", resp.Message)
	case messages.TagError:
		_, err = fmt.Fprintf(s.w, "[!] %s\n", resp.Message)
	default:
		_, err = fmt.Fprintf(s.w, "%s: %s\n", s.name, resp.Message)
	}
	return err
}

// MultiSink delivers to every sink in order. All sinks are attempted; the
// returned error joins every failure.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink skips nil sinks
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends a sink
func (m *MultiSink) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Len returns the number of sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Deliver implements Sink
func (m *MultiSink) Deliver(ctx context.Context, resp messages.Response) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SessionFilter only forwards responses addressed to sessions accepted by match
type SessionFilter struct {
	Sink  Sink
	Match func(sessionID string) bool
}

// Deliver implements Sink
func (f SessionFilter) Deliver(ctx context.Context, resp messages.Response) error {
	if f.Sink == nil || (f.Match != nil && !f.Match(resp.SessionID)) {
		return nil
	}
	return f.Sink.Deliver(ctx, resp)
}
