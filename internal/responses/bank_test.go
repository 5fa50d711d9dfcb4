package responses

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestGenerateFillsName(t *testing.T) {
	b := NewBank(WithRand(rand.New(rand.NewPCG(1, 2))))
	for emotion := range defaultTemplates {
		got := b.Generate(emotion, Context{UserName: "Ana"})
		if strings.Contains(got, "{") {
			t.Errorf("template for %s left a placeholder: %q", emotion, got)
		}
	}
}

func TestGenerateFallsBackToNeutral(t *testing.T) {
	b := NewBank(WithRand(rand.New(rand.NewPCG(3, 4))))
	got := b.Generate("nostalgia", Context{CreatorName: "El Principal"})

	found := false
	for _, tmpl := range defaultTemplates["neutral"] {
		if strings.ReplaceAll(tmpl, "{user_name}", "El Principal") == got {
			found = true
		}
	}
	if !found {
		t.Errorf("unknown emotion should use a neutral template, got %q", got)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	a := NewBank(WithRand(rand.New(rand.NewPCG(7, 7))))
	b := NewBank(WithRand(rand.New(rand.NewPCG(7, 7))))
	for i := 0; i < 5; i++ {
		if x, y := a.Generate("alegría", Context{}), b.Generate("alegría", Context{}); x != y {
			t.Fatalf("same seed produced %q and %q", x, y)
		}
	}
}

func TestWithTemplates(t *testing.T) {
	b := NewBank(WithTemplates(map[string][]string{"ALEGRÍA": {"Hola {creator_name}"}}))
	if got := b.Generate("alegría", Context{CreatorName: "Luz"}); got != "Hola Luz" {
		t.Errorf("got %q", got)
	}
}
