package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedAtTwiceMaxTurns(t *testing.T) {
	h := New(3)
	assert.Equal(t, 6, h.Limit())

	for i := 0; i < 10; i++ {
		h.AddExchange(fmt.Sprintf("u%d", i), fmt.Sprintf("r%d", i), "neutral", "Neutral", "serena")
		assert.LessOrEqual(t, h.Len(), 6)
	}

	turns := h.Turns()
	require.Len(t, turns, 6)
	// Oldest entries are evicted first
	assert.Equal(t, "u7", turns[0].Text)
	assert.Equal(t, SpeakerUser, turns[0].Speaker)
	assert.Equal(t, "r9", turns[5].Text)
	assert.Equal(t, SpeakerSystem, turns[5].Speaker)
}

func TestAddExchangeOrderAndAnnotations(t *testing.T) {
	h := New(5)
	h.AddExchange("hola", "saludos", "alegría", "Positive", "serena")

	turns := h.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Timestamp: turns[0].Timestamp, Speaker: SpeakerUser, Text: "hola", Emotion: "alegría", Sentiment: "Positive"}, turns[0])
	assert.Equal(t, "serena", turns[1].Emotion)
	assert.False(t, turns[0].Timestamp.IsZero())
}

func TestLast(t *testing.T) {
	h := New(5)
	h.Append(Turn{Text: "a"}, Turn{Text: "b"}, Turn{Text: "c"})

	last := h.Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].Text)
	assert.Equal(t, "c", last[1].Text)
	assert.Len(t, h.Last(10), 3)
	assert.Nil(t, h.Last(0))
}

func TestTurnsReturnsCopy(t *testing.T) {
	h := New(2)
	h.Append(Turn{Text: "a"})
	turns := h.Turns()
	turns[0].Text = "mutated"
	assert.Equal(t, "a", h.Turns()[0].Text)
}

func TestClearAndMinimumLimit(t *testing.T) {
	h := New(0)
	assert.Equal(t, 2, h.Limit())
	h.Append(Turn{Text: "a"}, Turn{Text: "b"}, Turn{Text: "c"})
	assert.Equal(t, 2, h.Len())
	h.Clear()
	assert.Equal(t, 0, h.Len())
}

func TestConcurrentAppends(t *testing.T) {
	h := New(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.AddExchange("u", "r", "", "", "")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, h.Len())

	// Exchanges are appended atomically so pairs stay aligned
	for i, turn := range h.Turns() {
		if i%2 == 0 {
			assert.Equal(t, SpeakerUser, turn.Speaker)
		} else {
			assert.Equal(t, SpeakerSystem, turn.Speaker)
		}
	}
}
