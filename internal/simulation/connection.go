package simulation

import (
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

// Connection states
const (
	ConnDisconnected = "Desconectada"
	ConnConnecting   = "Conectando"
	ConnConnected    = "Conectada"
	ConnWeakened     = "Debilitada"
)

// ConnectionOptions tunes the simulated connection
type ConnectionOptions struct {
	LossChance     float64       // Chance per verification of a weakening event
	VerifyInterval time.Duration // Default minimum spacing between verifications
	Rand           *rand.Rand
	Now            func() time.Time
}

// Connection simulates the companion's spiritual connection: a state and an
// energy level that drift on each verification.
type Connection struct {
	mu         sync.Mutex
	state      string
	energy     int
	lastVerify time.Time
	opts       ConnectionOptions
}

// NewConnection creates a disconnected connection
func NewConnection(opts ConnectionOptions) *Connection {
	opts.Rand = orRand(opts.Rand)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LossChance < 0 {
		opts.LossChance = 0
	}
	return &Connection{state: ConnDisconnected, opts: opts}
}

// Establish brings the connection up with a fresh energy level
func (c *Connection) Establish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = ConnConnecting
	c.energy = intBetween(c.opts.Rand, 70, 100)
	c.state = ConnConnected
	c.lastVerify = c.opts.Now()
	log.Printf("[Connection] Established (energy %d%%)", c.energy)
	return true
}

// Disconnect drops the connection
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ConnDisconnected
	c.energy = 0
	log.Printf("[Connection] Disconnected")
}

// IsConnected reports whether the connection can serve requests
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Connection) connectedLocked() bool {
	return c.state == ConnConnected || c.state == ConnWeakened
}

// Verify re-evaluates the connection unless it was verified within
// minInterval. A zero minInterval uses the configured interval.
func (c *Connection) Verify(minInterval time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return false
	}
	if minInterval <= 0 {
		minInterval = c.opts.VerifyInterval
	}
	now := c.opts.Now()
	if !c.lastVerify.IsZero() && now.Sub(c.lastVerify) < minInterval {
		return true
	}
	c.lastVerify = now

	if c.opts.Rand.Float64() < c.opts.LossChance {
		prev := c.energy
		c.energy = clampInt(c.energy-intBetween(c.opts.Rand, 10, 25), 0, 100)
		if c.energy == 0 {
			c.state = ConnDisconnected
			log.Printf("[Connection] Lost: energy exhausted")
			return false
		}
		c.state = ConnWeakened
		log.Printf("[Connection] Warning: weakened, energy %d%% -> %d%%", prev, c.energy)
		return true
	}

	c.energy = clampInt(c.energy+intBetween(c.opts.Rand, 0, 3), 0, 100)
	if c.state == ConnWeakened && c.energy >= 40 {
		c.state = ConnConnected
		log.Printf("[Connection] Recovered (energy %d%%)", c.energy)
	}
	return true
}

// State returns the connection state label
func (c *Connection) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Energy returns the connection energy in [0, 100]
func (c *Connection) Energy() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energy
}
