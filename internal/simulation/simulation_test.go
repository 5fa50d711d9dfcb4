package simulation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func at(hour int) *testClock {
	return &testClock{now: time.Date(2024, 6, 10, hour, 0, 0, 0, time.UTC)}
}

func TestConnectionLifecycle(t *testing.T) {
	c := NewConnection(ConnectionOptions{Rand: SeededRand(1)})
	assert.Equal(t, ConnDisconnected, c.State())
	assert.False(t, c.IsConnected())
	assert.False(t, c.Verify(0), "a disconnected connection fails verification")

	require.True(t, c.Establish())
	assert.Equal(t, ConnConnected, c.State())
	assert.True(t, c.IsConnected())
	assert.GreaterOrEqual(t, c.Energy(), 70)
	assert.LessOrEqual(t, c.Energy(), 100)

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.Equal(t, 0, c.Energy())
}

func TestConnectionVerifyRespectsInterval(t *testing.T) {
	clock := at(10)
	c := NewConnection(ConnectionOptions{LossChance: 1, Rand: SeededRand(2), Now: clock.Now})
	c.Establish()
	energy := c.Energy()

	clock.Advance(5 * time.Second)
	assert.True(t, c.Verify(10*time.Second))
	assert.Equal(t, energy, c.Energy(), "verification within the interval is skipped")
	assert.Equal(t, ConnConnected, c.State())
}

func TestConnectionWeakensAndDrops(t *testing.T) {
	clock := at(10)
	c := NewConnection(ConnectionOptions{LossChance: 1, Rand: SeededRand(3), Now: clock.Now})
	c.Establish()

	prev := c.Energy()
	clock.Advance(time.Minute)
	require.True(t, c.Verify(time.Second))
	assert.Equal(t, ConnWeakened, c.State())
	drop := prev - c.Energy()
	assert.GreaterOrEqual(t, drop, 10)
	assert.LessOrEqual(t, drop, 25)

	for i := 0; i < 20 && c.IsConnected(); i++ {
		clock.Advance(time.Minute)
		c.Verify(time.Second)
	}
	assert.Equal(t, ConnDisconnected, c.State())
	assert.False(t, c.Verify(time.Second))
}

func TestConnectionStableWithoutLoss(t *testing.T) {
	clock := at(10)
	c := NewConnection(ConnectionOptions{LossChance: 0, Rand: SeededRand(4), Now: clock.Now})
	c.Establish()
	for i := 0; i < 50; i++ {
		prev := c.Energy()
		clock.Advance(time.Minute)
		require.True(t, c.Verify(time.Second))
		assert.GreaterOrEqual(t, c.Energy(), prev)
		assert.LessOrEqual(t, c.Energy(), 100)
	}
}

func TestProtectionWithoutShield(t *testing.T) {
	p := NewProtection(ProtectionOptions{InitialIntegrity: 80, Filter: true, Rand: SeededRand(1)})
	assert.Equal(t, 80, p.CheckIntegrity(true))
	st := p.Status()
	assert.False(t, st.Shield)
	assert.True(t, st.Filter)
	assert.True(t, st.Love)
	assert.Equal(t, 80, st.Integrity)
}

func TestProtectionShieldActivation(t *testing.T) {
	p := NewProtection(ProtectionOptions{InitialIntegrity: 80, Shield: true, Rand: SeededRand(5)})
	st := p.Status()
	assert.True(t, st.Shield)
	// +5..10 on activation, then one check that drops at most 15 or recovers up to 2
	assert.GreaterOrEqual(t, st.Integrity, 70)
	assert.LessOrEqual(t, st.Integrity, 92)

	p.DeactivateShield()
	assert.False(t, p.Status().Shield)
}

func TestProtectionCheckInterval(t *testing.T) {
	clock := at(10)
	p := NewProtection(ProtectionOptions{InitialIntegrity: 50, Shield: true, CheckInterval: time.Minute, Rand: SeededRand(6), Now: clock.Now})
	level := p.Status().Integrity
	clock.Advance(10 * time.Second)
	assert.Equal(t, level, p.CheckIntegrity(false), "unforced checks wait for the interval")
}

func TestProtectionHandleNegative(t *testing.T) {
	tests := []struct {
		name      string
		sentiment string
		emotion   string
		filter    bool
		minDrop   int
		maxDrop   int
	}{
		{"positive ignored", "Positive", "alegría", true, 0, 0},
		{"neutral ignored", "Neutral", "neutral", true, 0, 0},
		{"anger filtered", "Negative", "ira", true, 1, 6},
		{"anger unfiltered", "Neutral", "ira", false, 4, 12},
		{"negative default base", "Negative", "neutral", false, 2, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProtection(ProtectionOptions{InitialIntegrity: 90, Filter: tt.filter, Rand: SeededRand(7)})
			p.HandleNegative(tt.sentiment, tt.emotion)
			drop := 90 - p.Status().Integrity
			assert.GreaterOrEqual(t, drop, tt.minDrop)
			assert.LessOrEqual(t, drop, tt.maxDrop)
		})
	}
}

func TestProtectionNeverBelowZero(t *testing.T) {
	p := NewProtection(ProtectionOptions{InitialIntegrity: 10, Rand: SeededRand(8)})
	for i := 0; i < 50; i++ {
		p.HandleNegative("Negative", "ira")
	}
	assert.Equal(t, 0, p.Status().Integrity)
}

func TestOnOff(t *testing.T) {
	assert.Equal(t, "ON", OnOff(true))
	assert.Equal(t, "OFF", OnOff(false))
}

func TestEnergyEstimate(t *testing.T) {
	night := NewEnergyReader(SeededRand(1), at(2).Now)
	r := night.Estimate("Negative")
	assert.Equal(t, EnergyVeryLow, r.Category)
	assert.Equal(t, "Negative", r.Sentiment)
	assert.Equal(t, r, night.Last())

	midday := NewEnergyReader(SeededRand(1), at(11).Now)
	r = midday.Estimate("Positive")
	assert.GreaterOrEqual(t, r.Level, 83)
	assert.LessOrEqual(t, r.Level, 89)

	evening := NewEnergyReader(SeededRand(1), at(20).Now)
	r = evening.Estimate("Neutral")
	assert.Equal(t, EnergyMedium, r.Category)
}

func TestEnergyActivityIsCapped(t *testing.T) {
	clock := at(7)
	e := NewEnergyReader(SeededRand(2), clock.Now)
	var r EnergyReading
	for i := 0; i < 30; i++ {
		r = e.Estimate("Neutral")
	}
	// 50 + min(10, activity*1.5) with ±3 noise
	assert.GreaterOrEqual(t, r.Level, 57)
	assert.LessOrEqual(t, r.Level, 63)

	clock.Advance(time.Hour)
	r = e.Estimate("Neutral")
	assert.LessOrEqual(t, r.Level, 54, "old activity leaves the window")
}

func TestEnergyCategory(t *testing.T) {
	tests := map[int]string{
		0: EnergyVeryLow, 15: EnergyVeryLow, 16: EnergyLow, 35: EnergyLow,
		36: EnergyMedium, 65: EnergyMedium, 66: EnergyHigh, 85: EnergyHigh,
		86: EnergyVeryHigh, 100: EnergyVeryHigh,
	}
	for level, want := range tests {
		assert.Equal(t, want, EnergyCategory(level), "level %d", level)
	}
}

func TestEnergyRecommend(t *testing.T) {
	e := NewEnergyReader(SeededRand(3), nil)
	assert.Contains(t, recommendations[EnergyMedium], e.Recommend("Media"))
	assert.Equal(t, "Mantén balance.", e.Recommend("cósmica"))
}

func TestSunSign(t *testing.T) {
	a := NewAstrology(SeededRand(1))
	tests := []struct {
		date string
		want string
	}{
		{"2000-01-01", "Capricornio"},
		{"1990-12-22", "Capricornio"},
		{"1990-01-20", "Capricornio"},
		{"1990-01-21", "Acuario"},
		{"1990-12-21", "Sagitario"},
		{"2000-02-29", "Piscis"},
		{"1985-03-21", "Aries"},
		{"1985-07-23", "Leo"},
		{"1985-10-23", "Libra"},
		{"1985-10-24", "Escorpio"},
	}
	for _, tt := range tests {
		d, err := time.Parse("2006-01-02", tt.date)
		require.NoError(t, err)
		assert.Equal(t, tt.want, a.SunSign(d), tt.date)
	}
	assert.Equal(t, UnknownSign, a.SunSign(time.Time{}))
}

func TestAstrologyMessage(t *testing.T) {
	a := NewAstrology(SeededRand(2))
	assert.Contains(t, symbolicMessages["Leo"], a.Message("Leo"))
	assert.Contains(t, symbolicMessages[UnknownSign], a.Message("Ofiuco"))
}

func TestSynchronyUpdate(t *testing.T) {
	s := NewSynchrony(SeededRand(1))
	assert.Equal(t, 50.0, s.Level())

	s.Update("alegría", "alegría", 0, 50)
	assert.Greater(t, s.Level(), 50.0)

	high := s.Level()
	s.Update("serena", "ira", 0, 50)
	assert.Less(t, s.Level(), high)

	for i := 0; i < 100; i++ {
		s.Update("amor", "amor", 1, 100)
	}
	st := s.Status()
	assert.Equal(t, 100.0, st.Level)
	assert.Equal(t, "Resonancia Profunda", st.State)

	for i := 0; i < 100; i++ {
		s.Update("serena", "ira", -1, 0)
	}
	assert.Equal(t, 0.0, s.Level())
}

func TestSyncState(t *testing.T) {
	assert.Equal(t, "Resonancia Profunda", SyncState(80))
	assert.Equal(t, "Armonía", SyncState(60))
	assert.Equal(t, "Sintonía Parcial", SyncState(50))
	assert.Equal(t, "Desfase", SyncState(20))
	assert.Equal(t, "Desconexión", SyncState(19.9))
}
