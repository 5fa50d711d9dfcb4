// Package sentiment classifies user text: a lexicon scorer for polarity,
// a keyword classifier for base emotions, and label normalization for
// external classifiers.
package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// Sentiment labels
const (
	Positive = "Positive"
	Neutral  = "Neutral"
	Negative = "Negative"
)

const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05

	normalizeAlpha = 15.0
	negationScalar = -0.74
	boostIncrement = 0.293
	exclaimBoost   = 0.292
	maxExclaims    = 4
)

var defaultLexicon = map[string]float64{
	// es
	"feliz": 2.7, "alegre": 2.5, "contento": 2.3, "contenta": 2.3, "genial": 2.8,
	"excelente": 3.0, "maravilloso": 3.1, "maravillosa": 3.1, "bueno": 1.9, "buena": 1.9,
	"gracias": 1.8, "amor": 3.2, "amo": 3.0, "encanta": 2.9, "bien": 1.5,
	"hermoso": 2.6, "hermosa": 2.6, "tranquilo": 1.4, "tranquila": 1.4, "paz": 2.0,
	"esperanza": 1.9, "divertido": 2.1, "increíble": 2.4, "perfecto": 2.7, "sí": 0.5,
	"triste": -2.1, "tristeza": -2.3, "mal": -1.8, "malo": -2.1, "mala": -2.1,
	"terrible": -3.0, "horrible": -3.1, "odio": -3.2, "odiar": -3.0, "enojado": -2.3,
	"enojada": -2.3, "furioso": -2.8, "furiosa": -2.8, "miedo": -2.2, "asustado": -2.0,
	"asustada": -2.0, "llorar": -2.0, "dolor": -2.4,
	"cansado": -1.3, "cansada": -1.3, "aburrido": -1.4, "preocupado": -1.8,
	"preocupada": -1.8, "ansiedad": -2.0, "rabia": -2.7, "peor": -2.5, "fracaso": -2.6,
	"problema": -1.6, "deprimido": -2.8, "deprimida": -2.8,
	// en
	"happy": 2.7, "good": 1.9, "great": 3.1, "love": 3.2, "excellent": 3.2,
	"wonderful": 2.7, "thanks": 1.9, "nice": 1.8, "amazing": 2.8, "awesome": 3.1,
	"sad": -2.1, "bad": -2.5, "awful": -2.0, "hate": -2.7,
	"angry": -2.3, "afraid": -1.9, "scared": -1.9, "lonely": -2.0, "worse": -2.1,
}

var negations = map[string]bool{
	"no": true, "nunca": true, "jamás": true, "tampoco": true, "nada": true, "ni": true,
	"not": true, "never": true, "don't": true, "isn't": true, "without": true,
}

var boosters = map[string]float64{
	"muy": boostIncrement, "tan": boostIncrement, "demasiado": boostIncrement,
	"súper": boostIncrement, "super": boostIncrement, "bastante": boostIncrement / 2,
	"very": boostIncrement, "really": boostIncrement, "so": boostIncrement,
	"poco": -boostIncrement, "algo": -boostIncrement / 2, "slightly": -boostIncrement,
}

// Lexicon is a valence-lexicon polarity scorer with negation and intensifier
// handling.
type Lexicon struct {
	words map[string]float64
}

// NewLexicon creates a scorer over the built-in lexicon plus extra entries
func NewLexicon(extra map[string]float64) *Lexicon {
	words := make(map[string]float64, len(defaultLexicon)+len(extra))
	for w, v := range defaultLexicon {
		words[w] = v
	}
	for w, v := range extra {
		words[strings.ToLower(w)] = v
	}
	return &Lexicon{words: words}
}

// Score returns the normalized compound polarity of text in [-1, 1]
func (l *Lexicon) Score(text string) float64 {
	tokens := tokenize(text)
	var sum float64
	for i, tok := range tokens {
		v, ok := l.words[tok]
		if !ok {
			continue
		}
		// Look back up to three tokens for negations and intensifiers
		for back := 1; back <= 3 && i-back >= 0; back++ {
			prev := tokens[i-back]
			if negations[prev] {
				v *= negationScalar
			}
			if b, ok := boosters[prev]; ok && back == 1 {
				if v > 0 {
					v += b
				} else {
					v -= b
				}
			}
		}
		sum += v
	}
	if sum != 0 {
		e := strings.Count(text, "!")
		if e > maxExclaims {
			e = maxExclaims
		}
		if sum > 0 {
			sum += float64(e) * exclaimBoost
		} else {
			sum -= float64(e) * exclaimBoost
		}
	}
	return normalize(sum)
}

// Classify labels text as Positive, Neutral or Negative
func (l *Lexicon) Classify(text string) (string, error) {
	return Label(l.Score(text)), nil
}

// Label maps a compound score to a sentiment label
func Label(compound float64) string {
	switch {
	case compound >= positiveThreshold:
		return Positive
	case compound <= negativeThreshold:
		return Negative
	default:
		return Neutral
	}
}

func normalize(sum float64) float64 {
	if sum == 0 {
		return 0
	}
	n := sum / math.Sqrt(sum*sum+normalizeAlpha)
	return math.Max(-1, math.Min(1, n))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
