package simulation

import (
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

// ProtectionStatus is a snapshot of the protection flags
type ProtectionStatus struct {
	Shield    bool `json:"escudo"`
	Filter    bool `json:"filtro"`
	Love      bool `json:"amor"`
	Integrity int  `json:"integridad"`
}

// OnOff renders a flag the way the status report shows it
func OnOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

// ProtectionOptions configures Protection
type ProtectionOptions struct {
	InitialIntegrity int
	Shield           bool
	Filter           bool
	CheckInterval    time.Duration
	Rand             *rand.Rand
	Now              func() time.Time
}

var negativeImpact = map[string]float64{
	"ira":      8,
	"miedo":    6,
	"tristeza": 4,
}

// Protection simulates internal integrity eroded by negative interactions
// and recovered slowly by periodic checks.
type Protection struct {
	mu        sync.Mutex
	shield    bool
	filter    bool
	love      bool
	integrity int
	lastCheck time.Time
	interval  time.Duration
	rng       *rand.Rand
	now       func() time.Time
}

// NewProtection creates a protection simulation. The shield starts inactive
// and is raised when opts.Shield is set.
func NewProtection(opts ProtectionOptions) *Protection {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 180 * time.Second
	}
	p := &Protection{
		filter:    opts.Filter,
		love:      true,
		integrity: clampInt(opts.InitialIntegrity, 0, 100),
		interval:  opts.CheckInterval,
		rng:       orRand(opts.Rand),
		now:       opts.Now,
	}
	if opts.Shield {
		p.ActivateShield()
	}
	return p
}

// ActivateShield raises the shield, restores some integrity and runs a check
func (p *Protection) ActivateShield() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shield {
		return
	}
	log.Printf("[Protection] Activating integrity shield")
	p.shield = true
	p.integrity = clampInt(p.integrity+intBetween(p.rng, 5, 10), 0, 100)
	p.checkLocked(true)
}

// DeactivateShield lowers the shield
func (p *Protection) DeactivateShield() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shield {
		log.Printf("[Protection] Warning: integrity shield deactivated")
		p.shield = false
	}
}

// CheckIntegrity runs a periodic integrity check. Without the shield the
// level is returned unchanged; otherwise the check runs when forced or when
// the check interval has elapsed.
func (p *Protection) CheckIntegrity(force bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkLocked(force)
}

func (p *Protection) checkLocked(force bool) int {
	if !p.shield {
		return p.integrity
	}
	now := p.now()
	if !force && !p.lastCheck.IsZero() && now.Sub(p.lastCheck) <= p.interval {
		return p.integrity
	}

	var drop int
	switch {
	case p.integrity < 70 && p.rng.Float64() < 0.10:
		drop = intBetween(p.rng, 10, 25)
	case p.rng.Float64() < 0.05:
		drop = intBetween(p.rng, 5, 15)
	}

	if drop > 0 {
		prev := p.integrity
		p.integrity = clampInt(prev-drop, 0, 100)
		log.Printf("[Protection] Warning: integrity reduced %d%% -> %d%%", prev, p.integrity)
		if p.integrity < 20 {
			log.Printf("[Protection] CRITICAL: integrity critically low")
		}
	} else if p.integrity < 100 {
		p.integrity = clampInt(p.integrity+intBetween(p.rng, 0, 2), 0, 100)
		log.Printf("[Protection] debug: check ok, integrity %d%%", p.integrity)
	}
	p.lastCheck = now
	return p.integrity
}

// HandleNegative lowers integrity when the interaction was negative. The
// negativity filter softens the impact.
func (p *Protection) HandleNegative(sentiment, emotion string) {
	base, strong := negativeImpact[emotion]
	if sentiment != "Negative" && !strong {
		return
	}
	if !strong {
		base = 5
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var impact float64
	if p.filter {
		impact = uniform(p.rng, 0.5, 2.5) * base / 3
	} else {
		impact = uniform(p.rng, 1.0, 3.0) * base / 2
	}
	if int(impact) <= 0 {
		return
	}
	prev := p.integrity
	p.integrity = clampInt(prev-int(impact), 0, 100)
	log.Printf("[Protection] Warning: negative interaction reduced integrity %d%% -> %d%% (-%.1f)", prev, p.integrity, impact)
	if p.integrity < 20 {
		log.Printf("[Protection] Error: integrity critically low after negative interaction")
	}
}

// Status returns the current flags and integrity
func (p *Protection) Status() ProtectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProtectionStatus{
		Shield:    p.shield,
		Filter:    p.filter,
		Love:      p.love,
		Integrity: p.integrity,
	}
}
