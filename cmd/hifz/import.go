package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/hifz/internal/config"
	"github.com/MrWong99/hifz/internal/passage"
)

// errNoDatabase is returned by importCorpus when the config has no
// passages.postgres_dsn to import into.
var errNoDatabase = errors.New("import needs passages.postgres_dsn in the config")

// importCorpus loads the JSON corpus at path into the configured PostgreSQL
// table. It runs instead of the server.
func importCorpus(ctx context.Context, cfg *config.Config, path string) error {
	if cfg.Passages.PostgresDSN == "" {
		return errNoDatabase
	}
	corpus, err := passage.LoadFile(path)
	if err != nil {
		return err
	}

	db, err := passage.Open(ctx, cfg.Passages.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return seedCorpus(ctx, db, corpus, path)
}

func seedCorpus(ctx context.Context, dst passage.Seeder, corpus *passage.Memory, path string) error {
	n, err := passage.Seed(ctx, dst, corpus.Passages())
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	slog.Info("corpus imported", "file", path, "passages", n)
	return nil
}
