// Package simulation holds the companion's simulated inner state: the
// spiritual connection, integrity protection, vital energy, astrology and
// heart synchronization. Every randomized component takes an injectable
// *rand.Rand so tests can pin the outcome.
package simulation

import (
	"math/rand/v2"
	"time"
)

// NewRand returns a generator seeded from the clock
func NewRand() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>17|1))
}

// SeededRand returns a deterministic generator
func SeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func orRand(r *rand.Rand) *rand.Rand {
	if r == nil {
		return NewRand()
	}
	return r
}

// intBetween returns a value in [lo, hi]
func intBetween(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
