// Package backend opens the ledger store selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tripsplit/internal/config"
	"tripsplit/internal/ledger"
	"tripsplit/internal/ledger/memory"
	"tripsplit/internal/storage"
)

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	return bt == SQLiteBackend || bt == MemoryBackend
}

type Config struct {
	Type          BackendType
	SQLiteDBPath  string
	DataDirectory string // seed files for the memory backend
}

// CleanupFunc releases what a backend holds open.
type CleanupFunc func() error

// BackendResult is an opened store. Cleanup is nil when there is nothing to release.
type BackendResult struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error)
}

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	t := BackendType(app.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", app.DataBackend)
	}
	return Config{Type: t, SQLiteDBPath: app.SQLiteDBPath, DataDirectory: app.DataDir}, nil
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	switch cfg.Type {
	case SQLiteBackend:
		return f.openSQLite(ctx, cfg.SQLiteDBPath)
	case MemoryBackend:
		dir := cfg.DataDirectory
		if dir == "" {
			dir = "data"
		}
		f.logger.Info("Using in-memory ledger", "data_directory", dir)
		return &BackendResult{Store: memory.NewFromFiles(dir)}, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
}

func (f *DefaultFactory) openSQLite(ctx context.Context, path string) (*BackendResult, error) {
	if path == "" {
		return nil, errors.New("sqlite backend: database path is required")
	}
	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	f.logger.Info("Using SQLite ledger", "db_path", path)
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}
