package passage

import (
	"context"
	"errors"
	"fmt"
)

// ErrCorpusNotEmpty is returned by [Seed] when the destination already holds
// passages.
var ErrCorpusNotEmpty = errors.New("passage: corpus already has passages")

// Seeder is a writable corpus. [Postgres] implements it.
type Seeder interface {
	Count(ctx context.Context) (int64, error)
	Insert(ctx context.Context, p Passage) error
}

var _ Seeder = (*Postgres)(nil)

// Seed copies passages into an empty dst and returns how many were stored.
// Passages without verses are skipped. A dst that already has rows is left
// alone and [ErrCorpusNotEmpty] is returned, so running an import twice does
// not duplicate the corpus.
func Seed(ctx context.Context, dst Seeder, passages []Passage) (int, error) {
	n, err := dst.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, fmt.Errorf("%w (%d rows)", ErrCorpusNotEmpty, n)
	}

	stored := 0
	for _, p := range passages {
		if len(p.Verses) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if err := dst.Insert(ctx, p); err != nil {
			return stored, fmt.Errorf("passage: seed %q: %w", p.Label(), err)
		}
		stored++
	}
	return stored, nil
}
