// Package backend selects and wires a concrete store implementation from
// configuration.
package backend

import (
	"fmt"
	"log/slog"

	"moneyflow/internal/store"
	"moneyflow/internal/store/memory"
	"moneyflow/internal/store/postgres"
	"moneyflow/internal/store/sqlite"
)

// Type names a store backend.
type Type string

const (
	Memory   Type = "memory"
	SQLite   Type = "sqlite"
	Postgres Type = "postgres"
)

func (t Type) String() string { return string(t) }

// IsValid reports whether the backend type is known.
func (t Type) IsValid() bool {
	switch t {
	case Memory, SQLite, Postgres:
		return true
	default:
		return false
	}
}

// Config holds what each backend needs to open.
type Config struct {
	Type         Type
	SQLiteDBPath string
	PostgresDSN  string
}

// Backend is a fully capable store: the four collections plus the repair
// outbox.
type Backend interface {
	store.Store
	store.RepairQueue
	Close() error
}

// Open creates the configured backend. The caller owns the returned value
// and must Close it.
func Open(logger *slog.Logger, cfg Config) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}

	switch cfg.Type {
	case SQLite:
		repo, err := sqlite.NewRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		logger.Info("Initialized SQLite store", "db_path", cfg.SQLiteDBPath)
		return repo, nil

	case Postgres:
		repo, err := postgres.NewRepository(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		logger.Info("Initialized Postgres store")
		return repo, nil

	default:
		logger.Info("Initialized memory store")
		return memory.New(), nil
	}
}
