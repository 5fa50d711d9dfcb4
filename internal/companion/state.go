package companion

import (
	"sync"

	"github.com/jordanhubbard/inanna/internal/sentiment"
	"github.com/jordanhubbard/inanna/internal/simulation"
)

// Initial emotional state
const (
	InitialIAEmotion = "serena"
)

// Snapshot is a copy of the shared emotional state
type Snapshot struct {
	IAEmotion     string                   `json:"ia_emotion"`
	UserEmotion   string                   `json:"user_emotion"`
	UserSentiment string                   `json:"user_sentiment"`
	LastReply     string                   `json:"last_reply,omitempty"`
	UserEnergy    simulation.EnergyReading `json:"user_energy"`
}

// State is the emotional state shared between the pipeline and readers
type State struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewState returns the initial state
func NewState() *State {
	return &State{snap: Snapshot{
		IAEmotion:     InitialIAEmotion,
		UserEmotion:   sentiment.Calm,
		UserSentiment: sentiment.Neutral,
	}}
}

// Snapshot returns a copy
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// SetUser records the user's latest sentiment and emotion
func (s *State) SetUser(sentimentLabel, emotion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.UserSentiment = sentimentLabel
	s.snap.UserEmotion = emotion
}

// SetIAEmotion sets the companion's emotion
func (s *State) SetIAEmotion(emotion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.IAEmotion = emotion
}

// IAEmotion returns the companion's emotion
func (s *State) IAEmotion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.IAEmotion
}

// SetReply records the last reply and the emotion it carried
func (s *State) SetReply(reply, iaEmotion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastReply = reply
	s.snap.IAEmotion = iaEmotion
}

// SetEnergy records the latest energy estimate
func (s *State) SetEnergy(r simulation.EnergyReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.UserEnergy = r
}
