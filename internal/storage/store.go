// Package storage mirrors closed incidents into a SQL database for external
// tooling. The JSON accident log remains the durable source of truth; mirror
// failures are logged by the caller and never stop the frame loop.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"driveguard/internal/config"
	"driveguard/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveIncident(ctx context.Context, entry model.IncidentEntry) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func endTimeValue(entry model.IncidentEntry) any {
	if entry.EndTime == nil {
		return nil
	}
	return entry.EndTime.UTC()
}
