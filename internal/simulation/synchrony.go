package simulation

import (
	"log"
	"math/rand/v2"
	"sync"
)

// SyncStatus is the heart synchronization level and its label
type SyncStatus struct {
	Level float64 `json:"nivel"`
	State string  `json:"estado"`
}

// Synchrony tracks how closely the companion's emotion follows the user's
type Synchrony struct {
	mu    sync.Mutex
	level float64
	rng   *rand.Rand
}

// NewSynchrony starts at a neutral level of 50
func NewSynchrony(rng *rand.Rand) *Synchrony {
	return &Synchrony{level: 50, rng: orRand(rng)}
}

// Update moves the level toward resonance when emotions match and away when
// they diverge. The sentiment score and connection energy bias the step.
func (s *Synchrony) Update(iaEmotion, userEmotion string, score float64, energy int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var delta float64
	if iaEmotion == userEmotion {
		delta = 6
	} else {
		delta = -3
	}
	delta += score * 4
	delta += float64(energy-50) / 25
	delta += uniform(s.rng, -1, 1)

	prev := s.level
	s.level = clampFloat(s.level+delta, 0, 100)
	log.Printf("[Synchrony] debug: level %.0f%% -> %.0f%%", prev, s.level)
}

// Level returns the current synchronization level
func (s *Synchrony) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Status returns the level with its label
func (s *Synchrony) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SyncStatus{Level: s.level, State: SyncState(s.level)}
}

// SyncState labels a synchronization level
func SyncState(level float64) string {
	switch {
	case level >= 80:
		return "Resonancia Profunda"
	case level >= 60:
		return "Armonía"
	case level >= 40:
		return "Sintonía Parcial"
	case level >= 20:
		return "Desfase"
	default:
		return "Desconexión"
	}
}
