package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for mirrored server output files.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// MirrorConfig describes optional on-disk mirrors for the supervised
// server's stdout/stderr. When Dir is set and no explicit paths are
// given, files are Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type MirrorConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout_path" mapstructure:"stdout_path"`
	StderrPath string `json:"stderr_path" mapstructure:"stderr_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Writers returns rotating io.WriteClosers for the stdout and stderr
// mirrors of the named server. Both are nil when mirroring is not
// configured.
func (c MirrorConfig) Writers(name string) (io.WriteCloser, io.WriteCloser) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	if c.Dir != "" {
		_ = os.MkdirAll(c.Dir, 0o750)
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = c.newRotating(stdout)
	}
	if stderr != "" {
		errW = c.newRotating(stderr)
	}
	return outW, errW
}

func (c MirrorConfig) newRotating(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// New builds the application logger. level is one of debug|info|warn|error
// (defaults to info); color enables ANSI level coloring on the handler.
func New(w io.Writer, level string, color bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if color {
		return slog.New(NewColorTextHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
