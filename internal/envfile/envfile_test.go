package envfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSeedsFromTemplate(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	tpl := "API_KEY=\nDEBUG=false\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "env.template"), []byte(tpl), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != tpl {
		t.Fatalf("seeded content = %q, want template %q", got, tpl)
	}
	if _, err := os.Stat(Path(dir)); err != nil {
		t.Fatalf(".env not created: %v", err)
	}
}

func TestLoadCreatesEmptyWithoutTemplate(t *testing.T) {
	dir := t.TempDir()
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty seed, got %q", got)
	}
}

func TestLoadPrefersExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, "PORT=9000\n"); err != nil {
		t.Fatal(err)
	}
	// A template must not overwrite an existing .env.
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "env.template"), []byte("PORT=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "PORT=9000\n" {
		t.Fatalf("existing file overwritten: %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := "A=1\nB=two words\n"
	if err := Save(dir, content); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != content {
		t.Fatalf("round trip = %q, want %q", got, content)
	}
}
