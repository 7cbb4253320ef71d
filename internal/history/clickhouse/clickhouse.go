// Package clickhouse exports lifecycle events to ClickHouse for
// analytics pipelines that aggregate across many supervisor hosts.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/servman/servman/internal/history"
)

// Sink sends lifecycle events using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	if table == "" {
		table = "servman_lifecycle"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// EnsureTable creates the target table when missing.
func (s *Sink) EnsureTable(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		type String,
		at DateTime64(3),
		pid Int64,
		port Int32,
		detail String
	) ENGINE = MergeTree() ORDER BY at`, s.table)
	if err := s.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("ensure clickhouse table: %w", err)
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, r history.LifecycleRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (type, at, pid, port, detail) VALUES (?, ?, ?, ?, ?)`, s.table)
	if err := s.conn.Exec(ctx, q, string(r.Type), r.At, int64(r.PID), int32(r.Port), r.Detail); err != nil {
		return fmt.Errorf("insert lifecycle event into clickhouse: %w", err)
	}
	return nil
}
