package passage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
)

// Memory is a [Source] over a fixed in-memory slice of passages.
type Memory struct {
	passages []Passage
	intn     func(n int) int
}

var _ Source = (*Memory)(nil)

// NewMemory returns a source over passages. The slice is not copied and must
// not be modified afterwards.
func NewMemory(passages []Passage) *Memory {
	return &Memory{passages: passages, intn: rand.IntN}
}

// LoadFile reads a JSON corpus from path. See [Decode] for the format.
func LoadFile(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("passage: open corpus: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// corpusEntry mirrors one element of the corpus file. Verses are keyed by
// their number as a string.
type corpusEntry struct {
	Name string            `json:"name"`
	Text map[string]string `json:"text"`
}

// Decode parses a JSON corpus: an array of {"name": ..., "text": {"1": ...,
// "2": ...}} objects. Verses are ordered by their numeric key; keys that are
// not numbers sort after the numbered ones, alphabetically. Entries without
// verses are skipped.
func Decode(r io.Reader) (*Memory, error) {
	var entries []corpusEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("passage: decode corpus: %w", err)
	}

	passages := make([]Passage, 0, len(entries))
	for _, e := range entries {
		if len(e.Text) == 0 {
			continue
		}
		keys := make([]string, 0, len(e.Text))
		for k := range e.Text {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareVerseKeys)

		p := Passage{Name: e.Name, Verses: make([]string, 0, len(keys))}
		for _, k := range keys {
			p.Verses = append(p.Verses, e.Text[k])
		}
		passages = append(passages, p)
	}
	if len(passages) == 0 {
		return nil, ErrEmptyCorpus
	}
	return NewMemory(passages), nil
}

func compareVerseKeys(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na - nb
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Random implements [Source].
func (m *Memory) Random(context.Context) (Passage, error) {
	if len(m.passages) == 0 {
		return Passage{}, ErrEmptyCorpus
	}
	return m.passages[m.intn(len(m.passages))], nil
}

// List implements [Source].
func (m *Memory) List(context.Context) ([]Info, error) {
	out := make([]Info, len(m.passages))
	for i, p := range m.passages {
		out[i] = Info{Name: p.Label(), Verses: len(p.Verses)}
	}
	return out, nil
}

// Ping implements [Source].
func (m *Memory) Ping(context.Context) error {
	if len(m.passages) == 0 {
		return ErrEmptyCorpus
	}
	return nil
}

// Len returns the number of passages.
func (m *Memory) Len() int { return len(m.passages) }

// Passages returns a copy of the loaded passages in corpus order.
func (m *Memory) Passages() []Passage {
	out := make([]Passage, len(m.passages))
	copy(out, m.passages)
	return out
}
