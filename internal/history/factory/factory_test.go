package factory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestEmptyDSNDisablesHistory(t *testing.T) {
	st, err := New("")
	if err != nil || st != nil {
		t.Fatalf("want nil store, nil err; got %v, %v", st, err)
	}
}

func TestSQLiteScheme(t *testing.T) {
	st, err := New("sqlite://" + filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("sqlite dsn: %v", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
}

func TestBarePathIsSQLite(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("bare path dsn: %v", err)
	}
	_ = st.Close()
}

func TestUnsupportedScheme(t *testing.T) {
	if _, err := New("mysql://root@localhost/db"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
