// Package arabic canonicalises Arabic text for answer comparison.
//
// [Normalize] folds the orthographic differences that separate fully vowelled
// Quranic script from what a speech-to-text engine typically emits:
// superscript alef, alef wasla, hamza carriers, alef maksura, ta marbuta, short-vowel
// marks and tatweel. The rules are heuristic; they aim for stable comparison,
// not linguistic correctness.
package arabic

import (
	"strings"
	"unicode/utf8"
)

const (
	superscriptAlef = '\u0670'
	alef            = '\u0627'
	tatweel         = '\u0640'

	// Only the Arabic letter block survives (hamza through ya).
	letterFirst = '\u0621'
	letterLast  = '\u064A'

	// Harakat, tanween, shadda, sukun and the other combining marks.
	markFirst = '\u064B'
	markLast  = '\u065F'
)

// letterFolds maps letter variants onto their plain base letter.
var letterFolds = map[rune]rune{
	'\u0623': alef,     // alef with hamza above
	'\u0625': alef,     // alef with hamza below
	'\u0622': alef,     // alef with madda
	'\u0671': alef,     // alef wasla
	'\u0649': '\u064A', // alef maksura -> ya
	'\u0629': '\u0647', // ta marbuta -> ha
	'\u0624': '\u0648', // waw with hamza -> waw
	'\u0626': '\u064A', // ya with hamza -> ya
}

// spellingExceptions rewrites full (imla'i) spellings that recognisers rarely
// produce into their common contracted form. Applied as global substring
// replacements on already folded text.
var spellingExceptions = strings.NewReplacer(
	"الرحمان", "الرحمن",
	"هاذا", "هذا",
	"هاذه", "هذه",
	"ذالك", "ذلك",
)

// Normalize returns the comparison form of text. It is total and
// deterministic: empty input yields empty output, and
// Normalize(Normalize(x)) == Normalize(x) for every x.
//
// Steps run in a fixed order. Letter folding happens before mark stripping so
// that folded letters are never confused with diacritics.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == superscriptAlef {
			r = alef
		}
		if folded, ok := letterFolds[r]; ok {
			r = folded
		}
		if r == tatweel || (r >= markFirst && r <= markLast) {
			continue
		}
		if r < letterFirst || r > letterLast {
			continue
		}
		b.WriteRune(r)
	}

	out := applyExceptions(b.String())
	return strings.TrimSpace(out)
}

// applyExceptions repeats the exception table until the text stops changing.
// One pass is not enough when a rewrite exposes another key, e.g. "هاذالك".
// Each rewrite shortens the text, so the loop terminates.
func applyExceptions(s string) string {
	for {
		next := spellingExceptions.Replace(s)
		if next == s {
			return s
		}
		s = next
	}
}

// Len returns the length of s in runes. All length rules in answer matching
// are expressed in letters, not bytes.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}
