package passage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the passages table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS passages (
    id         BIGSERIAL   PRIMARY KEY,
    name       TEXT        NOT NULL DEFAULT '',
    verses     TEXT[]      NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_passages_name ON passages(name);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Postgres is a [Source] backed by a PostgreSQL table.
type Postgres struct {
	db    DB
	close func()
}

var _ Source = (*Postgres)(nil)

// NewPostgres wraps an existing connection or pool. The caller owns db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects a pool to dsn and migrates the schema. Close releases the
// pool.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("passage: connect: %w", err)
	}
	p := &Postgres{db: pool, close: pool.Close}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the pool created by [Open]. It is a no-op for sources
// created with [NewPostgres].
func (p *Postgres) Close() {
	if p.close != nil {
		p.close()
	}
}

// Migrate executes [Schema].
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("passage: migrate: %w", err)
	}
	return nil
}

// Insert stores one passage. Use [Seed] to fill an empty table from a corpus
// file.
func (p *Postgres) Insert(ctx context.Context, ps Passage) error {
	if len(ps.Verses) == 0 {
		return errors.New("passage: insert: passage has no verses")
	}
	_, err := p.db.Exec(ctx, `INSERT INTO passages (name, verses) VALUES ($1, $2)`, ps.Name, ps.Verses)
	if err != nil {
		return fmt.Errorf("passage: insert: %w", err)
	}
	return nil
}

// Random implements [Source].
func (p *Postgres) Random(ctx context.Context) (Passage, error) {
	const query = `
		SELECT name, verses
		FROM passages
		WHERE cardinality(verses) > 0
		ORDER BY random()
		LIMIT 1`

	var ps Passage
	err := p.db.QueryRow(ctx, query).Scan(&ps.Name, &ps.Verses)
	if errors.Is(err, pgx.ErrNoRows) {
		return Passage{}, ErrEmptyCorpus
	}
	if err != nil {
		return Passage{}, fmt.Errorf("passage: random: %w", err)
	}
	return ps, nil
}

// List implements [Source].
func (p *Postgres) List(ctx context.Context) ([]Info, error) {
	rows, err := p.db.Query(ctx, `SELECT name, cardinality(verses) FROM passages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("passage: list: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var ps Passage
		var info Info
		if err := rows.Scan(&ps.Name, &info.Verses); err != nil {
			return nil, fmt.Errorf("passage: list scan: %w", err)
		}
		info.Name = ps.Label()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("passage: list rows: %w", err)
	}
	return out, nil
}

// Ping implements [Source]. An empty table counts as unavailable.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("passage: ping: %w", err)
	}
	n, err := p.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEmptyCorpus
	}
	return nil
}

// Count returns the number of stored passages.
func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM passages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("passage: count: %w", err)
	}
	return n, nil
}
