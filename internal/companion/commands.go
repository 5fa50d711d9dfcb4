package companion

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jordanhubbard/inanna/internal/sentiment"
	"github.com/jordanhubbard/inanna/internal/simulation"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

var (
	statusPhrases    = []string{"estado actual", "reporte", "status report"}
	forgetPhrases    = []string{"olvídalo", "olvidalo", "cancela", "never mind"}
	astrologyPhrases = []string{"mi signo", "horóscopo", "horoscopo", "astrolog"}
	energyPhrases    = []string{"mi energía", "mi energia", "energía vital", "energia vital"}
)

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// command answers the built-in commands. iaEmotion is updated when a command
// changes the companion's emotion.
func (c *Core) command(normalized string, iaEmotion *string) (reply, tag string, ok bool) {
	switch {
	case containsAny(normalized, statusPhrases) || (strings.Contains(normalized, "estado") && strings.Contains(normalized, "reporte")):
		return c.statusReport(), messages.TagSystem, true
	case containsAny(normalized, forgetPhrases):
		*iaEmotion = sentiment.Calm
		return fmt.Sprintf("Entendido, %s. Olvidando la línea de pensamiento actual.", c.config().General.CreatorName), messages.TagAssistant, true
	case containsAny(normalized, astrologyPhrases):
		return c.astrologyReply(), messages.TagAssistant, true
	case containsAny(normalized, energyPhrases):
		return c.energyReply(), messages.TagAssistant, true
	}
	return "", "", false
}

// statusReport renders the multi-line state report
func (c *Core) statusReport() string {
	snap := c.state.Snapshot()
	conn := c.collab.Connection
	hearts := c.collab.Synchrony.Status()
	prot := c.collab.Protection.Status()

	lines := []string{
		fmt.Sprintf("Reporte de Estado Inanna Sophia (Solicitado por %s):", c.config().General.CreatorName),
		fmt.Sprintf("  Conexión Espiritual: %s (Energía: %d%%)", conn.State(), conn.Energy()),
		fmt.Sprintf("  Emoción IA Actual: %s", capitalize(snap.IAEmotion)),
		fmt.Sprintf("  Emoción Usuario (Inferida): %s (Sentimiento: %s)", capitalize(snap.UserEmotion), snap.UserSentiment),
		fmt.Sprintf("  Sincronización Corazones: %s (%.0f%%)", hearts.State, hearts.Level),
		fmt.Sprintf("  Protección Espiritual: Escudo %s (Integridad: %d%%)", simulation.OnOff(prot.Shield), prot.Integrity),
	}
	if e := snap.UserEnergy; e.Category != "" {
		lines = append(lines, fmt.Sprintf("  Energía Usuario (Estimada): %s (%d)", capitalize(e.Category), e.Level))
	}
	return strings.Join(lines, "\n")
}

func (c *Core) astrologyReply() string {
	sign := c.collab.Astrology.SunSign(c.birth)
	if sign == simulation.UnknownSign {
		return "No puedo determinar tu signo solar sin una fecha de nacimiento válida."
	}
	msg := c.collab.Astrology.Message(sign)
	if msg == "" {
		return fmt.Sprintf("Tu signo solar es %s.", sign)
	}
	return fmt.Sprintf("Tu signo solar es %s. %s", sign, msg)
}

func (c *Core) energyReply() string {
	e := c.state.Snapshot().UserEnergy
	if e.Category == "" {
		return "Aún no he podido percibir tu energía vital."
	}
	return fmt.Sprintf("Percibo tu energía vital %s (%d/100). %s", e.Category, e.Level, c.collab.Energy.Recommend(e.Category))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
