// Package passage provides the source texts quiz questions are generated from.
//
// A [Source] holds named passages (one surah each in the default corpus) and
// hands out a random one per question batch. Two implementations exist:
// [Memory], loaded from a JSON corpus file, and [Postgres], backed by a
// PostgreSQL table.
package passage

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrEmptyCorpus is returned when a source holds no passages.
var ErrEmptyCorpus = errors.New("passage: corpus is empty")

// DefaultName is used for passages without a name.
const DefaultName = "سورة غير معروفة"

// Passage is one named source text split into verses.
type Passage struct {
	Name   string
	Verses []string
}

// Label returns the passage name, or [DefaultName] when it has none.
func (p Passage) Label() string {
	if strings.TrimSpace(p.Name) == "" {
		return DefaultName
	}
	return p.Name
}

// Text joins the verses with single spaces.
func (p Passage) Text() string {
	return strings.Join(p.Verses, " ")
}

// Chunk returns at most n runes of [Passage.Text]. n <= 0 returns the whole
// text.
func (p Passage) Chunk(n int) string {
	return truncateRunes(p.Text(), n)
}

// Info describes a passage without its text.
type Info struct {
	Name   string `json:"name"`
	Verses int    `json:"verses"`
}

// Source hands out passages. Implementations must be safe for concurrent use.
type Source interface {
	// Random returns one passage chosen uniformly at random.
	Random(ctx context.Context) (Passage, error)

	// List describes every passage in the corpus.
	List(ctx context.Context) ([]Info, error)

	// Ping reports whether the corpus is reachable and non-empty.
	Ping(ctx context.Context) error
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
