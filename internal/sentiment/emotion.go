package sentiment

import "strings"

// Base emotions
const (
	Joy      = "alegría"
	Sadness  = "tristeza"
	Anger    = "ira"
	Fear     = "miedo"
	Surprise = "sorpresa"
	Love     = "amor"
	Calm     = "neutral"
)

// Ties resolve in this order
var emotionOrder = []string{Anger, Fear, Sadness, Love, Joy, Surprise}

var emotionKeywords = map[string][]string{
	Joy:      {"feliz", "alegre", "alegría", "contento", "contenta", "genial", "excelente", "maravill", "divertid", "happy", "great"},
	Sadness:  {"triste", "tristeza", "deprimid", "llorar", "lloro", "pena", "melancol", "sad", "lonely"},
	Anger:    {"enojad", "furios", "odio", "rabia", "molest", "ira", "angry", "hate"},
	Fear:     {"miedo", "asustad", "temor", "ansiedad", "nervios", "pánico", "afraid", "scared"},
	Surprise: {"sorpresa", "sorprend", "increíble", "asombr", "inesperad", "wow"},
	Love:     {"amor", "te quiero", "cariño", "adoro", "te amo", "love"},
}

// Keywords infers a base emotion from keywords, falling back to the sentiment
type Keywords struct{}

// NewKeywords creates the keyword emotion classifier
func NewKeywords() *Keywords {
	return &Keywords{}
}

// Infer returns the emotion with the most keyword hits in text. Without hits,
// Positive maps to alegría, Negative to tristeza and anything else to neutral.
func (k *Keywords) Infer(sentiment, text string) (string, error) {
	lower := strings.ToLower(text)
	tokens := tokenize(lower)
	best, bestHits := "", 0
	for _, emotion := range emotionOrder {
		hits := 0
		for _, kw := range emotionKeywords[emotion] {
			if matchKeyword(lower, tokens, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = emotion, hits
		}
	}
	if best != "" {
		return best, nil
	}
	switch sentiment {
	case Positive:
		return Joy, nil
	case Negative:
		return Sadness, nil
	default:
		return Calm, nil
	}
}

// matchKeyword matches phrases anywhere and single words as token prefixes
func matchKeyword(lower string, tokens []string, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(lower, kw)
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, kw) {
			return true
		}
	}
	return false
}
