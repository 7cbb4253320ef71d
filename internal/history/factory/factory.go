// Package factory selects a history store backend from a DSN.
package factory

import (
	"fmt"
	"strings"

	"github.com/servman/servman/internal/history"
	"github.com/servman/servman/internal/history/postgres"
	"github.com/servman/servman/internal/history/sqlite"
)

// New builds a Store from dsn:
//
//	""                      -> nil store (history disabled)
//	"sqlite://<path>"       -> sqlite at path (":memory:" allowed)
//	"postgres://..."        -> postgres
//	anything else           -> treated as a sqlite file path
func New(dsn string) (history.Store, error) {
	switch {
	case dsn == "":
		return nil, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.New(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.New(dsn)
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("unsupported history DSN scheme: %s", dsn)
	default:
		return sqlite.New(dsn)
	}
}
