package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"driveguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/driveguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			seq BIGINT PRIMARY KEY,
			start_ts TIMESTAMPTZ NOT NULL,
			end_ts TIMESTAMPTZ,
			closed_properly BOOLEAN NOT NULL,
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

func (s *postgresStore) SaveIncident(ctx context.Context, entry model.IncidentEntry) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (seq, start_ts, end_ts, closed_properly, duration_sec, video_path, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (seq) DO UPDATE SET
			start_ts = EXCLUDED.start_ts,
			end_ts = EXCLUDED.end_ts,
			closed_properly = EXCLUDED.closed_properly,
			duration_sec = EXCLUDED.duration_sec,
			video_path = EXCLUDED.video_path,
			reason = EXCLUDED.reason`,
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
