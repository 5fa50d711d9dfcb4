package simulation

import (
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Energy categories from lowest to highest
const (
	EnergyVeryLow  = "muy baja"
	EnergyLow      = "baja"
	EnergyMedium   = "media"
	EnergyHigh     = "alta"
	EnergyVeryHigh = "muy alta"
)

const activityWindow = 10 * time.Minute

var recommendations = map[string][]string{
	EnergyVeryLow: {
		"Siento tu energía disminuida. Considera descanso profundo y nutrición.",
		"Necesitas recargar. Una pausa tranquila ayudaría.",
		"Tu bienestar es clave. No te exijas si te sientes agotado/a.",
	},
	EnergyLow: {
		"Tu energía parece un poco baja. Aire fresco y un breve descanso revitalizan.",
		"¿Algo cansado/a? Estirar o hidratarte puede ayudar.",
		"Un respiro hace maravillas. Modera tu ritmo.",
	},
	EnergyMedium: {
		"Nivel de energía estable. Mantén el equilibrio.",
		"Buen ritmo energético. Sigue así.",
		"Energía media detectada, ideal para concentración.",
	},
	EnergyHigh: {
		"¡Percibo una energía vibrante! Excelente impulso.",
		"Tu vitalidad es notable hoy.",
		"Con esta energía, afronta grandes retos.",
	},
	EnergyVeryHigh: {
		"¡Energía radiante! Ideal para acción y creatividad.",
		"¡Impresionante vitalidad! Canalízala positivamente.",
		"Desbordas energía. ¡Úsala sabiamente!",
	},
}

// EnergyReading is one estimate of the user's vital energy
type EnergyReading struct {
	Level     int       `json:"nivel_numerico"`
	Category  string    `json:"nivel_categoria"`
	Sentiment string    `json:"sentimiento"`
	At        time.Time `json:"timestamp"`
}

// EnergyReader estimates the user's vital energy from time of day, recent
// sentiment and recent activity.
type EnergyReader struct {
	mu       sync.Mutex
	rng      *rand.Rand
	now      func() time.Time
	activity []time.Time
	last     EnergyReading
}

// NewEnergyReader creates a reader; nil arguments use the defaults
func NewEnergyReader(rng *rand.Rand, now func() time.Time) *EnergyReader {
	if now == nil {
		now = time.Now
	}
	return &EnergyReader{rng: orRand(rng), now: now}
}

// Estimate records an interaction and returns the new reading
func (e *EnergyReader) Estimate(sentiment string) EnergyReading {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.recordActivity(now)

	score := 50.0
	switch h := now.Hour(); {
	case h <= 5:
		score -= 15
	case h >= 9 && h <= 14:
		score += 15
	case h >= 18 && h <= 22:
		score -= 10
	}
	switch sentiment {
	case "Positive":
		score += 20
	case "Negative":
		score -= 30
	}
	score += minFloat(10, float64(len(e.activity))*1.5)
	score += uniform(e.rng, -3, 3)

	level := clampInt(int(score), 0, 100)
	e.last = EnergyReading{
		Level:     level,
		Category:  EnergyCategory(level),
		Sentiment: sentiment,
		At:        now,
	}
	log.Printf("[Energy] debug: estimated %s (%d)", e.last.Category, level)
	return e.last
}

// Last returns the most recent reading; zero if none was taken
func (e *EnergyReader) Last() EnergyReading {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *EnergyReader) recordActivity(now time.Time) {
	cutoff := now.Add(-activityWindow)
	kept := e.activity[:0]
	for _, t := range e.activity {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.activity = append(kept, now)
}

// Recommend returns a random suggestion for the energy category
func (e *EnergyReader) Recommend(category string) string {
	options, ok := recommendations[strings.ToLower(category)]
	if !ok {
		log.Printf("[Energy] Warning: unknown energy level %q", category)
		return "Mantén balance."
	}
	if len(options) == 0 {
		return "Cuida tu energía."
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return options[e.rng.IntN(len(options))]
}

// EnergyCategory maps a numeric level to its category
func EnergyCategory(level int) string {
	switch {
	case level <= 15:
		return EnergyVeryLow
	case level <= 35:
		return EnergyLow
	case level <= 65:
		return EnergyMedium
	case level <= 85:
		return EnergyHigh
	default:
		return EnergyVeryHigh
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
