package passage_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/hifz/internal/passage"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if HIFZ_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HIFZ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HIFZ_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestSource(t *testing.T) *passage.Postgres {
	t.Helper()
	ctx := context.Background()
	dsn := testDSN(t)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS passages`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	src, err := passage.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(src.Close)
	return src
}

func TestPostgres_RoundTrip(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	if err := src.Ping(ctx); !errors.Is(err, passage.ErrEmptyCorpus) {
		t.Fatalf("Ping on empty table = %v, want ErrEmptyCorpus", err)
	}
	if _, err := src.Random(ctx); !errors.Is(err, passage.ErrEmptyCorpus) {
		t.Fatalf("Random on empty table = %v, want ErrEmptyCorpus", err)
	}

	want := passage.Passage{Name: "سورة الإخلاص", Verses: []string{"قُلْ هُوَ اللَّهُ أَحَدٌ", "اللَّهُ الصَّمَدُ"}}
	if err := src.Insert(ctx, want); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := src.Insert(ctx, passage.Passage{Name: "empty"}); err == nil {
		t.Error("Insert without verses should fail")
	}

	got, err := src.Random(ctx)
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	if got.Name != want.Name || len(got.Verses) != 2 || got.Verses[1] != want.Verses[1] {
		t.Errorf("Random = %+v, want %+v", got, want)
	}

	list, err := src.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Verses != 2 {
		t.Errorf("List = %+v", list)
	}
	if err := src.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestPostgres_SeedFromCorpusFile(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	corpus, err := passage.LoadFile("../../data/passages.json")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	n, err := passage.Seed(ctx, src, corpus.Passages())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != corpus.Len() {
		t.Errorf("seeded %d passages, want %d", n, corpus.Len())
	}
	if err := src.Ping(ctx); err != nil {
		t.Errorf("Ping after seed: %v", err)
	}
	if _, err := passage.Seed(ctx, src, corpus.Passages()); !errors.Is(err, passage.ErrCorpusNotEmpty) {
		t.Errorf("second Seed = %v, want ErrCorpusNotEmpty", err)
	}
	if count, _ := src.Count(ctx); count != int64(corpus.Len()) {
		t.Errorf("Count = %d after repeated seed, want %d", count, corpus.Len())
	}
}
