package companion

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jordanhubbard/inanna/internal/eventlog"
	"github.com/jordanhubbard/inanna/internal/knowledge"
	"github.com/jordanhubbard/inanna/internal/responses"
	"github.com/jordanhubbard/inanna/internal/sentiment"
	"github.com/jordanhubbard/inanna/internal/simulation"
	"github.com/jordanhubbard/inanna/pkg/config"
)

// Capability names understood by Registry.Build
const (
	CapConnection = "connection"
	CapSentiment  = "sentiment"
	CapEmotion    = "emotion"
	CapKnowledge  = "knowledge"
	CapResponder  = "responder"
	CapEvents     = "events"
	CapEnergy     = "energy"
	CapSynchrony  = "synchrony"
	CapProtection = "protection"
	CapAstrology  = "astrology"
	CapSpeech     = "speech"
	CapSpeaker    = "speaker"
)

// Factory builds one collaborator from configuration
type Factory func(cfg *config.Config) (any, error)

// Registry maps capability names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a capability to a factory, replacing any previous one
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered capabilities, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry registers the built-in collaborators
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CapConnection, func(cfg *config.Config) (any, error) {
		return simulation.NewConnection(simulation.ConnectionOptions{
			LossChance:     cfg.Simulation.ConnectionLossChance,
			VerifyInterval: cfg.Simulation.ConnectionCheckInterval,
		}), nil
	})
	r.Register(CapSentiment, func(*config.Config) (any, error) {
		return sentiment.NewLexicon(nil), nil
	})
	r.Register(CapEmotion, func(*config.Config) (any, error) {
		return sentiment.NewKeywords(), nil
	})
	r.Register(CapKnowledge, func(cfg *config.Config) (any, error) {
		return knowledge.New(cfg.Knowledge.Path, cfg.Knowledge.MaxUpdates), nil
	})
	r.Register(CapResponder, func(*config.Config) (any, error) {
		return responses.NewBank(), nil
	})
	r.Register(CapEvents, func(cfg *config.Config) (any, error) {
		return eventlog.Open(cfg.EventLog.Path, cfg.EventLog.MaxMemory)
	})
	r.Register(CapEnergy, func(*config.Config) (any, error) {
		return simulation.NewEnergyReader(nil, nil), nil
	})
	r.Register(CapSynchrony, func(*config.Config) (any, error) {
		return simulation.NewSynchrony(nil), nil
	})
	r.Register(CapProtection, func(cfg *config.Config) (any, error) {
		return simulation.NewProtection(simulation.ProtectionOptions{
			InitialIntegrity: cfg.Simulation.InitialIntegrity,
			Shield:           cfg.Simulation.ShieldEnabled,
			Filter:           cfg.Simulation.NegativityFilter,
			CheckInterval:    cfg.Simulation.IntegrityCheckInterval,
		}), nil
	})
	r.Register(CapAstrology, func(*config.Config) (any, error) {
		return simulation.NewAstrology(nil), nil
	})
	return r
}

// Build instantiates every registered capability. Failing factories and
// products that do not satisfy their port are logged and skipped, leaving the
// no-op default in place.
func (r *Registry) Build(cfg *config.Config) Collaborators {
	var c Collaborators
	for _, name := range r.Names() {
		r.mu.RLock()
		f := r.factories[name]
		r.mu.RUnlock()

		product, err := f(cfg)
		if err != nil {
			log.Printf("[Core] Error: capability %s unavailable: %v", name, err)
			continue
		}
		if err := c.assign(name, product); err != nil {
			log.Printf("[Core] Error: %v", err)
		}
	}
	return c
}

func (c *Collaborators) assign(name string, product any) error {
	ok := false
	switch name {
	case CapConnection:
		c.Connection, ok = product.(Connection)
	case CapSentiment:
		c.Sentiment, ok = product.(Sentiment)
	case CapEmotion:
		c.Emotion, ok = product.(Emotion)
	case CapKnowledge:
		c.Knowledge, ok = product.(Knowledge)
	case CapResponder:
		c.Responder, ok = product.(Responder)
	case CapEvents:
		c.Events, ok = product.(EventLog)
	case CapEnergy:
		c.Energy, ok = product.(EnergyReader)
	case CapSynchrony:
		c.Synchrony, ok = product.(Synchrony)
	case CapProtection:
		c.Protection, ok = product.(Protection)
	case CapAstrology:
		c.Astrology, ok = product.(Astrology)
	case CapSpeech:
		c.Speech, ok = product.(SpeechCapture)
	case CapSpeaker:
		c.Speaker, ok = product.(Speaker)
	default:
		return fmt.Errorf("unknown capability %q", name)
	}
	if !ok {
		return fmt.Errorf("capability %s: %T does not implement the port", name, product)
	}
	return nil
}
