// Package eventlog records core events as JSON lines on disk, keeps the most
// recent ones in memory and forwards them to optional mirrors.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

const defaultMaxMemory = 150

// ErrClosed is returned when writing to a closed log
var ErrClosed = errors.New("event log closed")

// Annotations carry the emotional context attached to an event
type Annotations struct {
	IAEmotion   string
	UserEmotion string
	SyncLevel   *float64
}

// Mirror receives every recorded event, e.g. a message bus publisher
type Mirror interface {
	PublishEvent(event *messages.EventMessage) error
}

// Log is a thread-safe event log
type Log struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	enc     *json.Encoder
	ring    []messages.EventMessage
	next    int
	full    bool
	mirrors []Mirror
	closed  bool
}

// NewMemory creates a log that keeps events only in memory
func NewMemory(maxMemory int) *Log {
	if maxMemory <= 0 {
		maxMemory = defaultMaxMemory
	}
	return &Log{ring: make([]messages.EventMessage, maxMemory)}
}

// Open creates the parent directory and appends events to path
func Open(path string, maxMemory int) (*Log, error) {
	l := NewMemory(maxMemory)
	if path == "" {
		return l, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	l.path = path
	l.file = f
	l.enc = json.NewEncoder(f)
	l.enc.SetEscapeHTML(false)
	log.Printf("[EventLog] Writing events to %s", path)
	return l, nil
}

// AddMirror forwards future events to m
func (l *Log) AddMirror(m Mirror) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirrors = append(l.mirrors, m)
}

// Append builds and records an event
func (l *Log) Append(eventType string, details map[string]any, source string, ann Annotations) {
	ev := messages.NewEvent(eventType, source, details)
	ev.Context = messages.EventContext{
		IAEmotion:   ann.IAEmotion,
		UserEmotion: ann.UserEmotion,
		SyncLevel:   ann.SyncLevel,
	}
	if err := l.Record(ev); err != nil {
		log.Printf("[EventLog] Warning: %s event not persisted: %v", eventType, err)
	}
}

// Record stores ev in memory, writes it to disk and forwards it to mirrors.
// Mirror failures are logged and do not fail the record.
func (l *Log) Record(ev *messages.EventMessage) error {
	if ev == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.ring[l.next] = *ev
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}

	var writeErr error
	if l.enc != nil {
		writeErr = l.enc.Encode(ev)
	}
	mirrors := append([]Mirror(nil), l.mirrors...)
	l.mu.Unlock()

	for _, m := range mirrors {
		if err := m.PublishEvent(ev); err != nil {
			log.Printf("[EventLog] Warning: mirror failed for %s: %v", ev.Type, err)
		}
	}
	if writeErr != nil {
		return fmt.Errorf("write event: %w", writeErr)
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything held in memory.
func (l *Log) Recent(limit int) []messages.EventMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]messages.EventMessage, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

// Path returns the file path, empty for memory-only logs
func (l *Log) Path() string {
	return l.path
}

// Close flushes and closes the file. Later records fail with ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync event log: %w", err)
	}
	return l.file.Close()
}
