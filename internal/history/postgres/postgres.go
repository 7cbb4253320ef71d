// Package postgres is a PostgreSQL-backed history store for deployments
// that centralize supervisor activity in an existing database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/servman/servman/internal/history"
)

type Store struct {
	db *sql.DB
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS server_output (
			id BIGSERIAL PRIMARY KEY,
			at TIMESTAMPTZ NOT NULL,
			stream TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_server_output_at ON server_output(at)`,
		`CREATE TABLE IF NOT EXISTS lifecycle_events (
			id BIGSERIAL PRIMARY KEY,
			type TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			pid INTEGER NOT NULL DEFAULT 0,
			port INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordOutput(ctx context.Context, r history.OutputRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO server_output (at, stream, content) VALUES ($1, $2, $3)`,
		r.At, r.Stream, r.Content)
	if err != nil {
		return fmt.Errorf("record output: %w", err)
	}
	return nil
}

func (s *Store) RecordLifecycle(ctx context.Context, r history.LifecycleRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (type, at, pid, port, detail) VALUES ($1, $2, $3, $4, $5)`,
		string(r.Type), r.At, r.PID, r.Port, r.Detail)
	if err != nil {
		return fmt.Errorf("record lifecycle event: %w", err)
	}
	return nil
}

func (s *Store) RecentOutput(ctx context.Context, limit int) ([]history.OutputRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, stream, content FROM (
			SELECT id, at, stream, content FROM server_output ORDER BY id DESC LIMIT $1
		) sub ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent output: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []history.OutputRecord
	for rows.Next() {
		var r history.OutputRecord
		if err := rows.Scan(&r.ID, &r.At, &r.Stream, &r.Content); err != nil {
			return nil, fmt.Errorf("scan output row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
