package sentiment

import "strings"

var labelMap = map[string]string{
	"label_0":  Negative,
	"label_1":  Neutral,
	"label_2":  Positive,
	"0":        Negative,
	"1":        Neutral,
	"2":        Positive,
	"3":        Positive,
	"4":        Positive,
	"negative": Negative,
	"neutral":  Neutral,
	"positive": Positive,
	"neg":      Negative,
	"neu":      Neutral,
	"pos":      Positive,
}

// NormalizeLabel maps labels produced by external classifiers (three-class
// models, star ratings, short tags) onto Positive, Neutral or Negative.
// Unknown labels are Neutral.
func NormalizeLabel(raw string) string {
	if l, ok := labelMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return l
	}
	return Neutral
}
