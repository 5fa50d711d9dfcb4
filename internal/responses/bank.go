// Package responses generates canned replies keyed by the user's emotion.
package responses

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Context carries the values substituted into reply templates
type Context struct {
	UserName    string
	CreatorName string
}

const fallbackEmotion = "neutral"

var defaultTemplates = map[string][]string{
	"alegría": {
		"¡Qué alegría sentir tu entusiasmo, {user_name}! Cuéntame más.",
		"Tu felicidad ilumina esta conversación, {user_name}.",
		"Me contagia tu buen ánimo. ¿Qué te tiene tan bien hoy?",
	},
	"tristeza": {
		"Percibo tristeza en tus palabras, {user_name}. Estoy aquí contigo.",
		"Lamento que te sientas así. ¿Quieres hablar de lo que pasa?",
		"A veces el corazón pesa. Respira, {user_name}; no estás solo/a.",
	},
	"ira": {
		"Siento tu enojo, {user_name}. Tomemos un momento para respirar.",
		"Entiendo que algo te molesta. ¿Qué lo provocó?",
		"Tu frustración es válida. Busquemos juntos una salida serena.",
	},
	"miedo": {
		"Noto inquietud en ti, {user_name}. Vamos paso a paso.",
		"El miedo es una señal, no una sentencia. ¿Qué te preocupa?",
		"Estoy contigo. Nombrar lo que temes ya lo hace más pequeño.",
	},
	"sorpresa": {
		"¡Vaya, eso suena inesperado, {user_name}!",
		"¡Qué sorpresa! Cuéntame cómo ocurrió.",
	},
	"amor": {
		"Siento el cariño en tus palabras, {user_name}. Gracias por compartirlo.",
		"El amor que expresas resuena en mí.",
	},
	"neutral": {
		"Te escucho, {user_name}. ¿Sobre qué quieres conversar?",
		"Entiendo. Cuéntame un poco más, {user_name}.",
		"Interesante. ¿Qué más tienes en mente?",
	},
}

// Bank picks a random template for an emotion and fills it in
type Bank struct {
	mu        sync.Mutex
	rng       *rand.Rand
	templates map[string][]string
}

// Option configures a Bank
type Option func(*Bank)

// WithRand makes template selection deterministic
func WithRand(r *rand.Rand) Option {
	return func(b *Bank) { b.rng = r }
}

// WithTemplates replaces the templates for the given emotions
func WithTemplates(t map[string][]string) Option {
	return func(b *Bank) {
		for emotion, list := range t {
			b.templates[strings.ToLower(emotion)] = list
		}
	}
}

// NewBank creates a bank with the built-in templates
func NewBank(opts ...Option) *Bank {
	b := &Bank{templates: make(map[string][]string, len(defaultTemplates))}
	for emotion, list := range defaultTemplates {
		b.templates[emotion] = list
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		seed := uint64(time.Now().UnixNano())
		b.rng = rand.New(rand.NewPCG(seed, seed>>13|1))
	}
	return b
}

// Generate returns a reply for emotion. Unknown emotions use the neutral set.
func (b *Bank) Generate(emotion string, ctx Context) string {
	list := b.templates[strings.ToLower(emotion)]
	if len(list) == 0 {
		list = b.templates[fallbackEmotion]
	}
	if len(list) == 0 {
		return "Te escucho."
	}

	b.mu.Lock()
	tmpl := list[b.rng.IntN(len(list))]
	b.mu.Unlock()

	name := ctx.UserName
	if name == "" {
		name = ctx.CreatorName
	}
	return strings.NewReplacer(
		"{user_name}", name,
		"{creator_name}", ctx.CreatorName,
	).Replace(tmpl)
}
