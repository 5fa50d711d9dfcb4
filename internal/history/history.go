// Package history keeps the bounded conversation log shared by the core.
package history

import (
	"sync"
	"time"
)

const (
	SpeakerUser   = "user"
	SpeakerSystem = "system"
)

// Turn is one entry in the conversation
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// History holds at most 2 × maxTurns entries, evicting the oldest first.
type History struct {
	mu    sync.Mutex
	turns []Turn
	limit int
	now   func() time.Time
}

// New creates a history sized for maxTurns user/system exchanges
func New(maxTurns int) *History {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &History{
		limit: 2 * maxTurns,
		now:   time.Now,
	}
}

// Limit returns the maximum number of entries kept
func (h *History) Limit() int {
	return h.limit
}

// Append adds turns in order and trims the oldest entries beyond the limit
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = h.now()
		}
		h.turns = append(h.turns, t)
	}
	if over := len(h.turns) - h.limit; over > 0 {
		kept := make([]Turn, h.limit)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

// AddExchange records a user message and the system reply as one logical turn
func (h *History) AddExchange(userText, reply, userEmotion, userSentiment, iaEmotion string) {
	now := h.now()
	h.Append(
		Turn{Timestamp: now, Speaker: SpeakerUser, Text: userText, Emotion: userEmotion, Sentiment: userSentiment},
		Turn{Timestamp: now, Speaker: SpeakerSystem, Text: reply, Emotion: iaEmotion},
	)
}

// Len returns the number of entries
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Turns returns a copy of all entries, oldest first
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Last returns up to n most recent entries, oldest first
func (h *History) Last(n int) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(h.turns) {
		n = len(h.turns)
	}
	out := make([]Turn, n)
	copy(out, h.turns[len(h.turns)-n:])
	return out
}

// Clear drops every entry
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
