package companion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/inanna/internal/eventlog"
	"github.com/jordanhubbard/inanna/internal/knowledge"
	"github.com/jordanhubbard/inanna/internal/simulation"
	"github.com/jordanhubbard/inanna/pkg/config"
)

func TestDefaultRegistryBuild(t *testing.T) {
	cfg := testConfig(t)
	r := DefaultRegistry()
	assert.Equal(t, []string{
		CapAstrology, CapConnection, CapEmotion, CapEnergy, CapEvents,
		CapKnowledge, CapProtection, CapResponder, CapSentiment, CapSynchrony,
	}, r.Names())

	c := r.Build(cfg)
	assert.IsType(t, &simulation.Connection{}, c.Connection)
	assert.IsType(t, &knowledge.Manager{}, c.Knowledge)
	assert.IsType(t, &eventlog.Log{}, c.Events)
	assert.Nil(t, c.Speech, "no built-in speech capture")
	assert.Nil(t, c.Sink)

	prot := c.Protection.Status()
	assert.True(t, prot.Shield, "shield_enabled raises the shield")
}

func TestRegistrySkipsFailures(t *testing.T) {
	r := NewRegistry()
	r.Register(CapConnection, func(*config.Config) (any, error) { return nil, errors.New("no hardware") })
	r.Register(CapSentiment, func(*config.Config) (any, error) { return "not a classifier", nil })
	r.Register("telepathy", func(*config.Config) (any, error) { return struct{}{}, nil })
	r.Register(CapSpeaker, func(*config.Config) (any, error) { return NopSpeaker{}, nil })

	c := r.Build(config.DefaultConfig())
	assert.Nil(t, c.Connection)
	assert.Nil(t, c.Sentiment)
	assert.Equal(t, NopSpeaker{}, c.Speaker)

	filled := c.withDefaults()
	require.NotNil(t, filled.Connection)
	assert.True(t, filled.Connection.IsConnected())
}
