package match

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/hifz/internal/arabic"
)

// ErrInvalidQuestion is returned by [Verifier.Verify] when the expected word
// is empty (or normalises to nothing). Such a question cannot be judged.
var ErrInvalidQuestion = errors.New("match: invalid question: empty target word")

// ratioEpsilon absorbs float rounding on the threshold boundaries
// (e.g. 1 - 1/5 must compare >= 0.8).
const ratioEpsilon = 1e-9

// Tier identifies the decision rule that produced a [Decision].
type Tier int

const (
	// TierNone means no rule accepted the utterance.
	TierNone Tier = iota

	// TierExact: the normalised utterance equals the normalised target.
	TierExact

	// TierContains: the target appears inside a longer utterance.
	TierContains

	// TierPartial: the utterance is a long-enough fragment of the target.
	TierPartial

	// TierSimilar: edit-distance similarity cleared the length-dependent threshold.
	TierSimilar
)

// String returns the tier name used in logs and metrics.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierExact:
		return "exact"
	case TierContains:
		return "contains"
	case TierPartial:
		return "partial"
	case TierSimilar:
		return "similar"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText lets tiers serialise by name in JSON responses.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name produced by MarshalText.
func (t *Tier) UnmarshalText(b []byte) error {
	for c := TierNone; c <= TierSimilar; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("match: unknown tier %q", b)
}

// Policy holds the tunable thresholds of the decision tiers.
type Policy struct {
	// ShortThreshold is the similarity bar for targets of at most
	// ShortWordMaxLen letters. Default: 0.65.
	ShortThreshold float64

	// LongThreshold is the similarity bar for longer targets. Default: 0.8.
	LongThreshold float64

	// ShortWordMaxLen is the short-word cutoff in letters. Default: 4.
	ShortWordMaxLen int

	// PartialMinLen is the minimum utterance length for a fragment match.
	// Default: 2.
	PartialMinLen int

	// PartialMinRatio is the minimum len(utterance)/len(target) for a fragment
	// match. Default: 0.65.
	PartialMinRatio float64

	// FuzzyMinLen is the minimum length of both strings before the similarity
	// tier is consulted. Default: 3.
	FuzzyMinLen int
}

// DefaultPolicy returns the thresholds tuned for single-word recitation.
func DefaultPolicy() Policy {
	return Policy{
		ShortThreshold:  0.65,
		LongThreshold:   0.8,
		ShortWordMaxLen: 4,
		PartialMinLen:   2,
		PartialMinRatio: 0.65,
		FuzzyMinLen:     3,
	}
}

// withDefaults fills zero fields from [DefaultPolicy].
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.ShortThreshold <= 0 {
		p.ShortThreshold = d.ShortThreshold
	}
	if p.LongThreshold <= 0 {
		p.LongThreshold = d.LongThreshold
	}
	if p.ShortWordMaxLen <= 0 {
		p.ShortWordMaxLen = d.ShortWordMaxLen
	}
	if p.PartialMinLen <= 0 {
		p.PartialMinLen = d.PartialMinLen
	}
	if p.PartialMinRatio <= 0 {
		p.PartialMinRatio = d.PartialMinRatio
	}
	if p.FuzzyMinLen <= 0 {
		p.FuzzyMinLen = d.FuzzyMinLen
	}
	return p
}

// Decision is the outcome of a single verification.
type Decision struct {
	// Correct reports whether the utterance was accepted.
	Correct bool

	// Tier is the rule that accepted the utterance, or [TierNone].
	Tier Tier

	// Transcribed and Target are the normalised forms that were compared.
	Transcribed string
	Target      string

	// Similarity is the edit-distance score. Only computed when the
	// similarity tier was evaluated; zero otherwise.
	Similarity float64
}

// Verifier judges utterances against expected words. It is read-only after
// construction and safe for concurrent use.
type Verifier struct {
	policy Policy
}

// NewVerifier returns a [Verifier] using p. Zero fields in p fall back to
// [DefaultPolicy].
func NewVerifier(p Policy) *Verifier {
	return &Verifier{policy: p.withDefaults()}
}

// Policy returns the effective thresholds.
func (v *Verifier) Policy() Policy {
	return v.policy
}

// Verify normalises both strings and evaluates the tiers in order; the first
// tier that accepts wins:
//
//  1. exact equality
//  2. target contained in the utterance
//  3. utterance contained in the target, long enough in absolute and
//     relative terms
//  4. similarity above a threshold that is lower for short targets
//
// An empty utterance never matches. An empty target returns
// [ErrInvalidQuestion].
func (v *Verifier) Verify(transcribed, target string) (Decision, error) {
	g := arabic.Normalize(target)
	if g == "" {
		return Decision{}, ErrInvalidQuestion
	}
	t := arabic.Normalize(transcribed)

	d := Decision{Transcribed: t, Target: g}
	if t == "" {
		return d, nil
	}

	lt, lg := arabic.Len(t), arabic.Len(g)
	p := v.policy

	if t == g {
		d.Correct, d.Tier = true, TierExact
		return d, nil
	}

	if strings.Contains(t, g) {
		d.Correct, d.Tier = true, TierContains
		return d, nil
	}

	if strings.Contains(g, t) && lt >= p.PartialMinLen &&
		float64(lt)/float64(lg)+ratioEpsilon >= p.PartialMinRatio {
		d.Correct, d.Tier = true, TierPartial
		return d, nil
	}

	if lt >= p.FuzzyMinLen && lg >= p.FuzzyMinLen {
		threshold := p.LongThreshold
		if lg <= p.ShortWordMaxLen {
			threshold = p.ShortThreshold
		}
		d.Similarity = Similarity(t, g)
		if d.Similarity+ratioEpsilon >= threshold {
			d.Correct, d.Tier = true, TierSimilar
			return d, nil
		}
	}

	return d, nil
}
