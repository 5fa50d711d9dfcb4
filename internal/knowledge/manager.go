// Package knowledge serves topic lookups from a JSON knowledge base and keeps
// a capped in-memory list of facts fetched at runtime.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// UpdatesKey holds facts added at runtime
	UpdatesKey = "conocimiento_actualizado"

	// DefaultResponse is returned when no topic matches
	DefaultResponse = "Aunque mi conocimiento es vasto, ese tópico específico no está detallado en mi base actual."

	defaultMaxUpdates = 30
	topicTrim         = "¿?¡!., "
)

// ErrNotLoaded is returned by queries against a knowledge base that failed to load
var ErrNotLoaded = errors.New("knowledge base not loaded")

var updateKeywords = map[string]bool{
	"actualización": true,
	"novedades":     true,
	"noticias":      true,
	"dato nuevo":    true,
	"hecho curioso": true,
	"última info":   true,
}

// Update is one fact added at runtime
type Update struct {
	Timestamp time.Time `json:"timestamp_utc"`
	Source    string    `json:"fuente"`
	Data      string    `json:"dato"`
}

// Manager is a thread-safe knowledge base
type Manager struct {
	mu         sync.RWMutex
	path       string
	topics     map[string]any
	updates    []Update
	maxUpdates int
	loaded     bool
	loadErr    string
	now        func() time.Time
}

// New creates a manager and loads path. A load failure is logged and leaves
// the manager answering "KB no disponible".
func New(path string, maxUpdates int) *Manager {
	if maxUpdates <= 0 {
		maxUpdates = defaultMaxUpdates
	}
	m := &Manager{
		path:       path,
		topics:     make(map[string]any),
		maxUpdates: maxUpdates,
		now:        time.Now,
	}
	if err := m.Load(); err != nil {
		log.Printf("[KnowledgeBase] Error: failed to load %s: %v", filepath.Base(path), err)
	}
	return m
}

// Load (re)reads the knowledge base file. Keys are lower-cased.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.mu.Lock()
		m.loaded = false
		if errors.Is(err, os.ErrNotExist) {
			m.loadErr = fmt.Sprintf("Archivo KB '%s' no encontrado.", filepath.Base(m.path))
		} else {
			m.loadErr = ""
		}
		m.mu.Unlock()
		return fmt.Errorf("read knowledge base: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		m.mu.Lock()
		m.loaded = false
		m.loadErr = ""
		m.mu.Unlock()
		return fmt.Errorf("parse knowledge base: %w", err)
	}

	topics := make(map[string]any, len(raw))
	for k, v := range raw {
		key := strings.ToLower(k)
		if key == UpdatesKey {
			continue
		}
		topics[key] = v
	}

	m.mu.Lock()
	m.topics = topics
	m.loaded = true
	m.loadErr = ""
	m.mu.Unlock()

	log.Printf("[KnowledgeBase] Loaded %d topics from %s", len(topics), filepath.Base(m.path))
	return nil
}

// IsLoaded reports whether the file was loaded
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Query looks topic up: an exact key, then the update keywords, then a
// partial match on whole words or a key prefix or suffix.
func (m *Manager) Query(topic string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.loaded {
		if m.loadErr != "" {
			return m.loadErr, ErrNotLoaded
		}
		return "KB no disponible.", ErrNotLoaded
	}
	if strings.TrimSpace(topic) == "" {
		return "Indica un tópico válido.", nil
	}
	t := strings.Trim(strings.ToLower(topic), topicTrim)
	if t == "" {
		return "Tópico vacío.", nil
	}

	if v, ok := m.topics[t]; ok {
		log.Printf("[KnowledgeBase] debug: exact hit %q", t)
		return format(v), nil
	}

	if updateKeywords[t] {
		if len(m.updates) == 0 {
			return "No tengo actualizaciones recientes.", nil
		}
		last := m.updates[len(m.updates)-1]
		return fmt.Sprintf("Mi última info de %s: \"%s\"", last.Source, last.Data), nil
	}

	if len([]rune(t)) > 2 {
		for _, key := range m.sortedKeys() {
			if strings.Contains(" "+key+" ", " "+t+" ") || strings.HasPrefix(key, t) || strings.HasSuffix(key, t) {
				log.Printf("[KnowledgeBase] debug: partial hit %q in %q", t, key)
				return format(m.topics[key]), nil
			}
		}
	}

	log.Printf("[KnowledgeBase] debug: miss %q", t)
	return DefaultResponse, nil
}

// AddKnowledge appends a fact to the in-memory update list, keeping the most
// recent maxUpdates entries.
func (m *Manager) AddKnowledge(source, data string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		log.Printf("[KnowledgeBase] Error: not loaded, cannot add knowledge")
		return false
	}
	if source == "" || data == "" {
		log.Printf("[KnowledgeBase] Warning: ignoring empty knowledge update")
		return false
	}
	m.updates = append(m.updates, Update{Timestamp: m.now().UTC(), Source: source, Data: data})
	if over := len(m.updates) - m.maxUpdates; over > 0 {
		m.updates = append([]Update(nil), m.updates[over:]...)
	}
	log.Printf("[KnowledgeBase] Added fact from %s", source)
	return true
}

// Updates returns a copy of the runtime facts, oldest first
func (m *Manager) Updates() []Update {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Update(nil), m.updates...)
}

// Topics returns the sorted base topics
func (m *Manager) Topics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return nil
	}
	return m.sortedKeys()
}

func (m *Manager) sortedKeys() []string {
	keys := make([]string, 0, len(m.topics))
	for k := range m.topics {
		if k == "error" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// format renders a knowledge value for chat
func format(v any) string {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return "[Vacío]"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("- %s: %s", labelize(k), inline(val[k])))
		}
		return strings.Join(lines, "\n")
	case []any:
		if len(val) == 0 {
			return "[Lista Vacía]"
		}
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = scalar(item)
		}
		return strings.Join(parts, "\n * ")
	default:
		return scalar(v)
	}
}

func inline(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = scalar(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return "[Más detalles disponibles]"
	default:
		return scalar(v)
	}
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// labelize turns "fecha_de_nacimiento" into "Fecha de nacimiento"
func labelize(key string) string {
	s := strings.ToLower(strings.ReplaceAll(key, "_", " "))
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
