package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultPort is used whenever no configuration can be loaded and no
// explicit port is requested.
const DefaultPort = 8000

// appDirName is the per-application directory under the OS config root.
const appDirName = "servman"

// Config is the persisted server configuration. WorkingDirectory empty
// means "derive from the current directory" (its parent).
type Config struct {
	WorkingDirectory string `json:"working_directory" mapstructure:"working_directory"`
	DefaultPort      int    `json:"default_port" mapstructure:"default_port"`
}

// Default returns the built-in fallback configuration.
func Default() Config {
	return Config{WorkingDirectory: "", DefaultPort: DefaultPort}
}

// Store reads and writes the configuration file. The zero value is not
// usable; construct with NewStore or NewStoreAt.
type Store struct {
	path string
	log  *slog.Logger
}

// NewStore locates the config file under the OS-standard per-user
// configuration directory, creating the application directory if needed.
func NewStore(log *slog.Logger) (*Store, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user config dir: %w", err)
	}
	dir := filepath.Join(root, appDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create config dir %s: %w", dir, err)
	}
	return NewStoreAt(filepath.Join(dir, "config.json"), log), nil
}

// NewStoreAt uses an explicit config file path. Used by tests and by
// callers that manage their own locations.
func NewStoreAt(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, log: log}
}

// Path returns the config file location.
func (s *Store) Path() string { return s.path }

// Load reads the configuration, recovering to Default on any absence or
// parse failure. Load never returns an error: a broken config file must
// not prevent the supervisor from constructing.
func (s *Store) Load() Config {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.SetDefault("default_port", DefaultPort)
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("config unreadable, using defaults", "path", s.path, "error", err)
		}
		return Default()
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		s.log.Warn("config malformed, using defaults", "path", s.path, "error", err)
		return Default()
	}
	if cfg.DefaultPort <= 0 || cfg.DefaultPort > 65535 {
		cfg.DefaultPort = DefaultPort
	}
	return cfg
}

// Save persists cfg as pretty-printed JSON. Callers swap their in-memory
// copy only after Save succeeds so a crash never leaves memory ahead of
// disk.
func (s *Store) Save(cfg Config) error {
	if cfg.DefaultPort <= 0 || cfg.DefaultPort > 65535 {
		return fmt.Errorf("invalid default_port %d", cfg.DefaultPort)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}
