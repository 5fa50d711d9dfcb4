package logging

import (
	"container/ring"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// MaxBufferSize is the maximum number of log entries to keep in memory
	MaxBufferSize = 2000

	// LogLevelDebug represents debug-level logs
	LogLevelDebug = "debug"
	// LogLevelInfo represents info-level logs
	LogLevelInfo = "info"
	// LogLevelWarn represents warning-level logs
	LogLevelWarn = "warn"
	// LogLevelError represents error-level logs
	LogLevelError = "error"
)

var levelRank = map[string]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

// ParseLevel normalizes a configured level name. Unknown names map to info.
func ParseLevel(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error", "critical", "fatal":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Manager handles log collection, buffering, and fan-out to writers
type Manager struct {
	mu       sync.RWMutex
	buffer   *ring.Ring
	level    string
	outputs  []io.Writer
	handlers []func(LogEntry)
	seq      uint64
}

// NewManager creates a new logging manager writing formatted lines to outputs
func NewManager(level string, outputs ...io.Writer) *Manager {
	return &Manager{
		buffer:   ring.New(MaxBufferSize),
		level:    ParseLevel(level),
		outputs:  outputs,
		handlers: make([]func(LogEntry), 0),
	}
}

// Level returns the active threshold
func (m *Manager) Level() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// SetLevel changes the threshold at runtime
func (m *Manager) SetLevel(level string) {
	m.mu.Lock()
	m.level = ParseLevel(level)
	m.mu.Unlock()
}

// Log adds a log entry to the buffer and writes it to every output
func (m *Manager) Log(level, source, message string, metadata map[string]interface{}) {
	level = ParseLevel(level)

	m.mu.Lock()
	if levelRank[level] < levelRank[m.level] {
		m.mu.Unlock()
		return
	}
	m.seq++
	entry := LogEntry{
		ID:        fmt.Sprintf("log-%d-%d", time.Now().UnixNano(), m.seq),
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
		Metadata:  metadata,
	}
	m.buffer.Value = entry
	m.buffer = m.buffer.Next()

	line := formatEntry(entry)
	for _, w := range m.outputs {
		_, _ = io.WriteString(w, line)
	}
	handlers := append([]func(LogEntry){}, m.handlers...)
	m.mu.Unlock()

	for _, handler := range handlers {
		go handler(entry)
	}
}

func formatEntry(e LogEntry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, " [%-5s] [%s] %s", strings.ToUpper(e.Level), e.Source, e.Message)
	if len(e.Metadata) > 0 {
		fmt.Fprintf(&b, " %v", e.Metadata)
	}
	b.WriteByte('\n')
	return b.String()
}

// GetRecent returns the most recent log entries from the buffer, newest first
func (m *Manager) GetRecent(limit int, levelFilter, sourceFilter string) []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > MaxBufferSize {
		limit = 100
	}

	logs := make([]LogEntry, 0, limit)
	// Walk backwards from the newest slot
	r := m.buffer.Prev()
	for i := 0; i < MaxBufferSize && len(logs) < limit; i++ {
		if entry, ok := r.Value.(LogEntry); ok {
			if (levelFilter == "" || entry.Level == levelFilter) &&
				(sourceFilter == "" || entry.Source == sourceFilter) {
				logs = append(logs, entry)
			}
		}
		r = r.Prev()
	}
	return logs
}

// AddHandler registers a handler to be called for each new log entry
func (m *Manager) AddHandler(handler func(LogEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Debug logs a debug-level message
func (m *Manager) Debug(source, message string, metadata map[string]interface{}) {
	m.Log(LogLevelDebug, source, message, metadata)
}

// Info logs an info-level message
func (m *Manager) Info(source, message string, metadata map[string]interface{}) {
	m.Log(LogLevelInfo, source, message, metadata)
}

// Warn logs a warning-level message
func (m *Manager) Warn(source, message string, metadata map[string]interface{}) {
	m.Log(LogLevelWarn, source, message, metadata)
}

// Error logs an error-level message
func (m *Manager) Error(source, message string, metadata map[string]interface{}) {
	m.Log(LogLevelError, source, message, metadata)
}

// logInterceptWriter implements io.Writer so that Go's standard log package
// output is captured and routed through the logging manager.
type logInterceptWriter struct {
	manager *Manager
}

// Write parses "[Component] message" lines from log.Printf calls and
// routes them into the structured log system.
func (w *logInterceptWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		level, source, msg := parseLine(line)
		if msg == "" {
			continue
		}
		w.manager.Log(level, source, msg, nil)
	}
	return len(p), nil
}

func parseLine(line string) (level, source, msg string) {
	msg = strings.TrimSpace(line)
	// Standard log format: "2006/01/02 15:04:05 message"
	if len(msg) > 20 && msg[4] == '/' && msg[7] == '/' && msg[10] == ' ' {
		msg = strings.TrimSpace(msg[20:])
	}

	level = LogLevelInfo
	source = "system"

	// Parse [Source] prefix: "[Scheduler] message" → source=scheduler
	if len(msg) > 2 && msg[0] == '[' {
		if end := strings.Index(msg, "]"); end > 1 {
			source = strings.ToLower(msg[1:end])
			msg = strings.TrimSpace(msg[end+1:])
		}
	}

	lowerMsg := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(lowerMsg, "debug:"):
		level = LogLevelDebug
		msg = strings.TrimSpace(msg[len("debug:"):])
	case strings.Contains(lowerMsg, "critical"), strings.Contains(lowerMsg, "error"),
		strings.Contains(lowerMsg, "fail"), strings.Contains(lowerMsg, "panic"):
		level = LogLevelError
	case strings.Contains(lowerMsg, "warn"):
		level = LogLevelWarn
	}
	return level, source, msg
}

// InstallLogInterceptor redirects Go's standard log package through this manager.
// Call this once at startup after creating the manager.
func (m *Manager) InstallLogInterceptor() {
	log.SetOutput(&logInterceptWriter{manager: m})
	log.SetFlags(0) // We handle timestamps ourselves
}
