package simulation

import (
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

// UnknownSign is returned for dates that cannot be mapped
const UnknownSign = "Desconocido"

type monthDay struct{ month, day int }

func (m monthDay) before(o monthDay) bool {
	return m.month < o.month || (m.month == o.month && m.day < o.day)
}

type signRange struct {
	name       string
	start, end monthDay
}

// Capricornio wraps the year end and is matched separately
var signs = []signRange{
	{"Capricornio", monthDay{12, 22}, monthDay{1, 20}},
	{"Acuario", monthDay{1, 21}, monthDay{2, 18}},
	{"Piscis", monthDay{2, 19}, monthDay{3, 20}},
	{"Aries", monthDay{3, 21}, monthDay{4, 20}},
	{"Tauro", monthDay{4, 21}, monthDay{5, 21}},
	{"Géminis", monthDay{5, 22}, monthDay{6, 21}},
	{"Cáncer", monthDay{6, 22}, monthDay{7, 22}},
	{"Leo", monthDay{7, 23}, monthDay{8, 23}},
	{"Virgo", monthDay{8, 24}, monthDay{9, 23}},
	{"Libra", monthDay{9, 24}, monthDay{10, 23}},
	{"Escorpio", monthDay{10, 24}, monthDay{11, 22}},
	{"Sagitario", monthDay{11, 23}, monthDay{12, 21}},
}

var symbolicMessages = map[string][]string{
	"Aries":       {"Impulso y coraje te guían.", "Canaliza tu fuego interior."},
	"Tauro":       {"Busca estabilidad y placer sensorial.", "La paciencia es tu virtud."},
	"Géminis":     {"Comunica tus ideas brillantes.", "La curiosidad abre caminos."},
	"Cáncer":      {"Nutre tus emociones y conexiones.", "Tu intuición es fuerte."},
	"Leo":         {"Irradia tu luz con generosidad.", "La creatividad te llama."},
	"Virgo":       {"Encuentra orden en el detalle.", "Cuida tu bienestar holístico."},
	"Libra":       {"Busca armonía y justicia.", "Las relaciones son clave."},
	"Escorpio":    {"Transforma desafíos en poder.", "Profundiza en tus pasiones."},
	"Sagitario":   {"Aventura y optimismo te esperan.", "Expande tu visión del mundo."},
	"Capricornio": {"Construye tus metas con disciplina.", "La perseverancia te eleva."},
	"Acuario":     {"Innovación y originalidad te definen.", "Conéctate con ideales elevados."},
	"Piscis":      {"Confía en tu empatía y sueños.", "La espiritualidad te guía."},
	UnknownSign:   {"La energía cósmica fluye en ti.", "Enfócate en el aquí y ahora."},
}

// Astrology maps birth dates to sun signs and picks symbolic messages
type Astrology struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAstrology creates the lookup; a nil rng is seeded from the clock
func NewAstrology(rng *rand.Rand) *Astrology {
	return &Astrology{rng: orRand(rng)}
}

// SunSign returns the sun sign for date, or UnknownSign for a zero date
func (a *Astrology) SunSign(date time.Time) string {
	if date.IsZero() {
		log.Printf("[Astrology] Warning: no birth date available")
		return UnknownSign
	}
	md := monthDay{int(date.Month()), date.Day()}
	for _, s := range signs {
		if s.start.month > s.end.month {
			if !md.before(s.start) || !s.end.before(md) {
				return s.name
			}
			continue
		}
		if !md.before(s.start) && !s.end.before(md) {
			return s.name
		}
	}
	log.Printf("[Astrology] Warning: no sign found for %s", date.Format("2006-01-02"))
	return UnknownSign
}

// Message returns a random symbolic message for sign
func (a *Astrology) Message(sign string) string {
	options, ok := symbolicMessages[sign]
	if !ok {
		options = symbolicMessages[UnknownSign]
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return options[a.rng.IntN(len(options))]
}
