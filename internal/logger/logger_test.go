package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestMirrorWritersWithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := MirrorConfig{Dir: dir}
	outW, errW := cfg.Writers("demo")
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	if _, err := os.Stat(filepath.Join(dir, "demo.stdout.log")); err != nil {
		t.Fatalf("stdout mirror not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "demo.stderr.log")); err != nil {
		t.Fatalf("stderr mirror not created: %v", err)
	}
}

func TestMirrorWritersDefaults(t *testing.T) {
	cfg := MirrorConfig{}
	outW, errW := cfg.Writers("n")
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers when nothing configured")
	}
	dir := t.TempDir()
	cfg = MirrorConfig{StdoutPath: filepath.Join(dir, "x"), StderrPath: filepath.Join(dir, "y")}
	outW, errW = cfg.Writers("n")
	ol, ok1 := outW.(*lj.Logger)
	el, ok2 := errW.(*lj.Logger)
	if !ok1 || !ok2 {
		t.Fatalf("writers are not lumberjack.Logger")
	}
	if ol.MaxSize != 10 || ol.MaxBackups != 3 || ol.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", ol.MaxSize, ol.MaxBackups, ol.MaxAge)
	}
	if el.MaxSize != 10 || el.MaxBackups != 3 || el.MaxAge != 7 {
		t.Fatalf("unexpected stderr defaults: size=%d backups=%d age=%d", el.MaxSize, el.MaxBackups, el.MaxAge)
	}
	closeIf(outW)
	closeIf(errW)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNewColorOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", true)
	l.Warn("careful")
	s := buf.String()
	if !strings.Contains(s, "\033[33m") || !strings.Contains(s, "careful") {
		t.Fatalf("colored warn output missing: %q", s)
	}
	buf.Reset()
	l = New(&buf, "warn", false)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
}
