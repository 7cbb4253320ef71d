// Package sqlite is the default, file-backed history store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/servman/servman/internal/history"
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path. An empty path uses an
// in-memory database, which tests rely on.
func New(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite behaves best with a single writer connection.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS server_output (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TIMESTAMP NOT NULL,
			stream TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_server_output_at ON server_output(at)`,
		`CREATE TABLE IF NOT EXISTS lifecycle_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			at TIMESTAMP NOT NULL,
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
		`INSERT INTO server_output (at, stream, content) VALUES (?, ?, ?)`,
		r.At, r.Stream, r.Content)
	if err != nil {
		return fmt.Errorf("record output: %w", err)
	}
	return nil
}

func (s *Store) RecordLifecycle(ctx context.Context, r history.LifecycleRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (type, at, pid, port, detail) VALUES (?, ?, ?, ?, ?)`,
		string(r.Type), r.At, r.PID, r.Port, r.Detail)
	if err != nil {
		return fmt.Errorf("record lifecycle event: %w", err)
	}
	return nil
}

// RecentOutput returns up to limit lines, oldest first.
func (s *Store) RecentOutput(ctx context.Context, limit int) ([]history.OutputRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, stream, content FROM (
			SELECT id, at, stream, content FROM server_output ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
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
