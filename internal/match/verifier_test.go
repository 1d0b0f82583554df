package match

import (
	"errors"
	"math"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"ربه", "", 0},
		{"", "ربه", 0},
		{"السلام", "السلام", 1},
		{"قالوا", "قاموا", 0.8},
		{"قالوا", "قاموب", 0.6},
		{"kitten", "sitting", 1 - 3.0/7.0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"الكوثر", "الكافرون"},
		{"رب", "ربه"},
		{"وعليكم", "السلام"},
	}
	for _, p := range pairs {
		if a, b := Similarity(p[0], p[1]), Similarity(p[1], p[0]); a != b {
			t.Errorf("Similarity not symmetric for %q/%q: %v vs %v", p[0], p[1], a, b)
		}
	}
}

func TestVerifier_Tiers(t *testing.T) {
	v := NewVerifier(DefaultPolicy())

	tests := []struct {
		name        string
		transcribed string
		target      string
		wantCorrect bool
		wantTier    Tier
	}{
		{name: "exact", transcribed: "السلام", target: "السلام", wantCorrect: true, wantTier: TierExact},
		{name: "exact after normalisation", transcribed: "السلام", target: "السَّلَامُ", wantCorrect: true, wantTier: TierExact},
		{name: "uthmani target with alef wasla", transcribed: "الرحمن", target: "ٱلرَّحْمَٰنِ", wantCorrect: true, wantTier: TierExact},
		{name: "verbose answer contains target", transcribed: "اعطيناك الكوثر", target: "الكوثر", wantCorrect: true, wantTier: TierContains},
		{name: "greeting contains target", transcribed: "السلام عليكم", target: "السلام", wantCorrect: true, wantTier: TierContains},
		{name: "short word fragment", transcribed: "رب", target: "ربه", wantCorrect: true, wantTier: TierPartial},
		{name: "fragment at ratio boundary", transcribed: "الكو", target: "الكوثر", wantCorrect: true, wantTier: TierPartial},
		{name: "fragment too short relative", transcribed: "كو", target: "الكوثر", wantCorrect: false, wantTier: TierNone},
		{name: "single letter", transcribed: "ر", target: "ربه", wantCorrect: false, wantTier: TierNone},
		{name: "long word one edit", transcribed: "قاموا", target: "قالوا", wantCorrect: true, wantTier: TierSimilar},
		{name: "long word two edits", transcribed: "قاموب", target: "قالوا", wantCorrect: false, wantTier: TierNone},
		{name: "three letter word one edit", transcribed: "كتم", target: "كتب", wantCorrect: true, wantTier: TierSimilar},
		{name: "four letter word one edit", transcribed: "قلبب", target: "قلوب", wantCorrect: true, wantTier: TierSimilar},
		{name: "different word", transcribed: "وعليكم", target: "السلام", wantCorrect: false, wantTier: TierNone},
		{name: "empty utterance", transcribed: "", target: "السلام", wantCorrect: false, wantTier: TierNone},
		{name: "latin utterance", transcribed: "hello", target: "السلام", wantCorrect: false, wantTier: TierNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := v.Verify(tt.transcribed, tt.target)
			if err != nil {
				t.Fatalf("Verify: unexpected error: %v", err)
			}
			if d.Correct != tt.wantCorrect {
				t.Errorf("Correct = %v, want %v (decision %+v)", d.Correct, tt.wantCorrect, d)
			}
			if d.Tier != tt.wantTier {
				t.Errorf("Tier = %v, want %v", d.Tier, tt.wantTier)
			}
		})
	}
}

func TestVerifier_ExactMatchProperty(t *testing.T) {
	v := NewVerifier(Policy{})
	words := []string{"ا", "رب", "ربه", "الكوثر", "الرحمن", "السموات", "يوسوسفيصدورالناس"}
	for _, w := range words {
		d, err := v.Verify(w, w)
		if err != nil {
			t.Fatalf("Verify(%q, %q): %v", w, w, err)
		}
		if !d.Correct || d.Tier != TierExact {
			t.Errorf("Verify(%q, %q) = %+v, want exact match", w, w, d)
		}
	}
}

func TestVerifier_InvalidQuestion(t *testing.T) {
	v := NewVerifier(DefaultPolicy())
	for _, target := range []string{"", "   ", "َ", "abc"} {
		_, err := v.Verify("السلام", target)
		if !errors.Is(err, ErrInvalidQuestion) {
			t.Errorf("Verify(_, %q) err = %v, want ErrInvalidQuestion", target, err)
		}
	}
}

func TestVerifier_CustomPolicy(t *testing.T) {
	// A stricter long-word bar rejects what the default accepts.
	strict := NewVerifier(Policy{LongThreshold: 0.9})
	d, err := strict.Verify("قاموا", "قالوا")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if d.Correct {
		t.Errorf("strict policy accepted one-edit long word: %+v", d)
	}
	if got := strict.Policy().ShortThreshold; got != 0.65 {
		t.Errorf("ShortThreshold = %v, want default 0.65", got)
	}
}

func TestTier_String(t *testing.T) {
	tests := map[Tier]string{
		TierNone:     "none",
		TierExact:    "exact",
		TierContains: "contains",
		TierPartial:  "partial",
		TierSimilar:  "similar",
		Tier(42):     "tier(42)",
	}
	for tier, want := range tests {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", int(tier), got, want)
		}
	}
}

func TestTier_TextRoundTrip(t *testing.T) {
	for tier := TierNone; tier <= TierSimilar; tier++ {
		b, _ := tier.MarshalText()
		var got Tier
		if err := got.UnmarshalText(b); err != nil || got != tier {
			t.Errorf("UnmarshalText(%q) = %v, %v", b, got, err)
		}
	}
	var bad Tier
	if err := bad.UnmarshalText([]byte("fuzzy")); err == nil {
		t.Error("expected error for unknown tier name")
	}
}
