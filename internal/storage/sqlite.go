package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"driveguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:driveguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			seq INTEGER PRIMARY KEY,
			start_ts TEXT NOT NULL,
			end_ts TEXT,
			closed_properly INTEGER NOT NULL,
			duration_sec INTEGER NOT NULL,
			video_path TEXT NOT NULL,
			reason TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_start_ts ON incidents(start_ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveIncident(ctx context.Context, entry model.IncidentEntry) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO incidents (seq, start_ts, end_ts, closed_properly, duration_sec, video_path, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq,
		entry.StartTime.UTC(),
		endTimeValue(entry),
		entry.ClosedProperly,
		entry.DurationSeconds,
		entry.VideoPath,
		string(entry.Reason),
	)
	return err
}
