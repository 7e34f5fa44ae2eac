package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coko7/advent-of-time/internal/config"
	"github.com/coko7/advent-of-time/internal/repository"
	"github.com/coko7/advent-of-time/internal/repository/jsonfile"
	sqliteRepo "github.com/coko7/advent-of-time/internal/repository/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenUserStore opens the user store selected by cfg.Driver. The returned
// closer must be closed on shutdown; it is a no-op for the JSON store.
//
// STORAGE DRIVERS:
//   - json:   one users.json file, rewritten atomically on every change.
//     Concurrent updates of the same user are last-writer-wins.
//   - sqlite: one row per user with a version column. Concurrent updates are
//     detected and the losing request retries once.
func OpenUserStore(cfg config.StorageConfig) (repository.UserRepository, io.Closer, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating storage directory %s: %w", dir, err)
		}
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqliteRepo.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case config.DriverJSON:
		store, err := jsonfile.NewUserStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
