// Package match decides whether a transcribed utterance names an expected
// word.
//
// [Similarity] scores two normalised strings by edit distance. [Verifier]
// applies an ordered set of decision tiers on top of [arabic.Normalize] and
// reports which tier produced the verdict so callers can log and test each
// tier in isolation.
package match

import (
	"github.com/antzucaro/matchr"

	"github.com/MrWong99/hifz/internal/arabic"
)

// Similarity returns 1 - editDistance(a, b) / max(len(a), len(b)), measured
// in runes with unit cost for insertion, deletion and substitution. Two empty
// strings are identical (1); exactly one empty string scores 0.
func Similarity(a, b string) float64 {
	la, lb := arabic.Len(a), arabic.Len(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	maxLen := max(la, lb)
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
