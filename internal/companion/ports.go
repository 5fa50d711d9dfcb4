package companion

import (
	"context"
	"log"
	"time"

	"github.com/jordanhubbard/inanna/internal/eventlog"
	"github.com/jordanhubbard/inanna/internal/knowledge"
	"github.com/jordanhubbard/inanna/internal/responses"
	"github.com/jordanhubbard/inanna/internal/sentiment"
	"github.com/jordanhubbard/inanna/internal/simulation"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

// Connection is the companion's spiritual connection
type Connection interface {
	IsConnected() bool
	Establish() bool
	Verify(minInterval time.Duration) bool
	State() string
	Energy() int
}

// Sentiment classifies text as Positive, Neutral or Negative
type Sentiment interface {
	Classify(text string) (string, error)
	Score(text string) float64
}

// Emotion infers the user's emotion
type Emotion interface {
	Infer(sentiment, text string) (string, error)
}

// Knowledge answers topic queries and stores fetched facts
type Knowledge interface {
	Query(topic string) (string, error)
	AddKnowledge(source, data string) bool
}

// Responder generates a reply for an emotion
type Responder interface {
	Generate(emotion string, ctx responses.Context) string
}

// EventLog records core events
type EventLog interface {
	Append(eventType string, details map[string]any, source string, ann eventlog.Annotations)
	Close() error
}

// Sink delivers responses to sessions
type Sink interface {
	Deliver(ctx context.Context, resp messages.Response) error
}

// SpeechCapture records and transcribes one utterance
type SpeechCapture interface {
	Available() bool
	ListenAndTranscribe(ctx context.Context) string
}

// Speaker reads replies aloud
type Speaker interface {
	Speak(text string) error
}

// EnergyReader estimates the user's vital energy
type EnergyReader interface {
	Estimate(sentiment string) simulation.EnergyReading
	Recommend(level string) string
}

// Synchrony tracks heart synchronization
type Synchrony interface {
	Update(iaEmotion, userEmotion string, score float64, energy int)
	Status() simulation.SyncStatus
}

// Protection guards the companion's integrity
type Protection interface {
	HandleNegative(sentiment, emotion string)
	CheckIntegrity(force bool) int
	Status() simulation.ProtectionStatus
}

// Astrology computes sun signs
type Astrology interface {
	SunSign(date time.Time) string
	Message(sign string) string
}

// Collaborators bundles every port. Nil fields are replaced with no-op
// implementations by New.
type Collaborators struct {
	Connection Connection
	Sentiment  Sentiment
	Emotion    Emotion
	Knowledge  Knowledge
	Responder  Responder
	Events     EventLog
	Sink       Sink
	Speech     SpeechCapture
	Speaker    Speaker
	Energy     EnergyReader
	Synchrony  Synchrony
	Protection Protection
	Astrology  Astrology
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Connection == nil {
		c.Connection = NopConnection{}
	}
	if c.Sentiment == nil {
		c.Sentiment = NopSentiment{}
	}
	if c.Emotion == nil {
		c.Emotion = NopEmotion{}
	}
	if c.Knowledge == nil {
		c.Knowledge = NopKnowledge{}
	}
	if c.Responder == nil {
		c.Responder = NopResponder{}
	}
	if c.Events == nil {
		c.Events = NopEventLog{}
	}
	if c.Sink == nil {
		c.Sink = NopSink{}
	}
	if c.Speech == nil {
		c.Speech = NopSpeech{}
	}
	if c.Speaker == nil {
		c.Speaker = NopSpeaker{}
	}
	if c.Energy == nil {
		c.Energy = NopEnergy{}
	}
	if c.Synchrony == nil {
		c.Synchrony = NopSynchrony{}
	}
	if c.Protection == nil {
		c.Protection = NopProtection{}
	}
	if c.Astrology == nil {
		c.Astrology = NopAstrology{}
	}
	return c
}

// NopConnection is always connected
type NopConnection struct{}

func (NopConnection) IsConnected() bool         { return true }
func (NopConnection) Establish() bool           { return true }
func (NopConnection) Verify(time.Duration) bool { return true }
func (NopConnection) State() string             { return "N/A" }
func (NopConnection) Energy() int               { return 0 }

// NopSentiment classifies everything as Neutral
type NopSentiment struct{}

func (NopSentiment) Classify(string) (string, error) { return sentiment.Neutral, nil }
func (NopSentiment) Score(string) float64            { return 0 }

// NopEmotion always infers neutral
type NopEmotion struct{}

func (NopEmotion) Infer(string, string) (string, error) { return sentiment.Calm, nil }

// NopKnowledge has no knowledge base; every query is a miss
type NopKnowledge struct{}

func (NopKnowledge) Query(string) (string, error)     { return "KB no disponible.", knowledge.ErrNotLoaded }
func (NopKnowledge) AddKnowledge(string, string) bool { return false }

// NopResponder reports that no response bank is active
type NopResponder struct{}

func (NopResponder) Generate(string, responses.Context) string {
	return "Mi banco de respuestas no está activo."
}

// NopEventLog degrades events to log lines
type NopEventLog struct{}

func (NopEventLog) Append(eventType string, _ map[string]any, source string, _ eventlog.Annotations) {
	log.Printf("[EventLog] %s from %s", eventType, source)
}
func (NopEventLog) Close() error { return nil }

// NopSink logs responses
type NopSink struct{}

func (NopSink) Deliver(_ context.Context, resp messages.Response) error {
	log.Printf("[Core] Response for %s (%s): %s", resp.SessionID, resp.Tag, resp.Message)
	return nil
}

// NopSpeech has no capture device
type NopSpeech struct{}

func (NopSpeech) Available() bool                            { return false }
func (NopSpeech) ListenAndTranscribe(context.Context) string { return "[STT No disponible]" }

// NopSpeaker stays silent
type NopSpeaker struct{}

func (NopSpeaker) Speak(string) error { return nil }

// NopEnergy reports a medium level
type NopEnergy struct{}

func (NopEnergy) Estimate(s string) simulation.EnergyReading {
	return simulation.EnergyReading{Level: 50, Category: simulation.EnergyMedium, Sentiment: s, At: time.Now()}
}
func (NopEnergy) Recommend(string) string { return "Mantén balance." }

// NopSynchrony stays at the neutral level
type NopSynchrony struct{}

func (NopSynchrony) Update(string, string, float64, int) {}
func (NopSynchrony) Status() simulation.SyncStatus {
	return simulation.SyncStatus{Level: 50, State: simulation.SyncState(50)}
}

// NopProtection reports full integrity with the shield down
type NopProtection struct{}

func (NopProtection) HandleNegative(string, string) {}
func (NopProtection) CheckIntegrity(bool) int       { return 100 }
func (NopProtection) Status() simulation.ProtectionStatus {
	return simulation.ProtectionStatus{Integrity: 100}
}

// NopAstrology knows no signs
type NopAstrology struct{}

func (NopAstrology) SunSign(time.Time) string { return simulation.UnknownSign }
func (NopAstrology) Message(string) string    { return "" }

// Compile-time checks that the built-in collaborators satisfy the ports.
var (
	_ Connection   = (*simulation.Connection)(nil)
	_ Sentiment    = (*sentiment.Lexicon)(nil)
	_ Emotion      = (*sentiment.Keywords)(nil)
	_ Knowledge    = (*knowledge.Manager)(nil)
	_ Responder    = (*responses.Bank)(nil)
	_ EventLog     = (*eventlog.Log)(nil)
	_ EnergyReader = (*simulation.EnergyReader)(nil)
	_ Synchrony    = (*simulation.Synchrony)(nil)
	_ Protection   = (*simulation.Protection)(nil)
	_ Astrology    = (*simulation.Astrology)(nil)
)
