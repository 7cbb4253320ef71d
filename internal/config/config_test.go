package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	st := NewStoreAt(filepath.Join(t.TempDir(), "config.json"), nil)
	cfg := st.Load()
	if cfg.DefaultPort != DefaultPort || cfg.WorkingDirectory != "" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMalformedFileReturnsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := NewStoreAt(path, nil).Load()
	if cfg != Default() {
		t.Fatalf("expected defaults on parse failure, got %+v", cfg)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	st := NewStoreAt(path, nil)
	want := Config{WorkingDirectory: "/srv/app", DefaultPort: 9100}
	if err := st.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := st.Load(); got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
	// File is valid pretty JSON on disk regardless of any in-memory state.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("persisted config not valid JSON: %v", err)
	}
	if onDisk.DefaultPort != 9100 {
		t.Fatalf("persisted port = %d, want 9100", onDisk.DefaultPort)
	}
}

func TestSaveRejectsInvalidPort(t *testing.T) {
	st := NewStoreAt(filepath.Join(t.TempDir(), "config.json"), nil)
	if err := st.Save(Config{DefaultPort: 0}); err == nil {
		t.Fatalf("expected error for port 0")
	}
	if err := st.Save(Config{DefaultPort: 70000}); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}

func TestLoadClampsBadPersistedPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"working_directory":"","default_port":-5}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := NewStoreAt(path, nil).Load()
	if cfg.DefaultPort != DefaultPort {
		t.Fatalf("expected clamped default port, got %d", cfg.DefaultPort)
	}
}
