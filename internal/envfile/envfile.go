// Package envfile manages the server's .env file: locating it under
// the working directory, seeding it from the bundled template on first
// read, and writing raw edits back.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path returns the .env location for a working directory:
// <workDir>/server/.env.
func Path(workDir string) string {
	return filepath.Join(workDir, "server", ".env")
}

// templatePath is the seed copied on first load, a sibling of the
// server directory: <workDir>/config/env.template.
func templatePath(workDir string) string {
	return filepath.Join(workDir, "config", "env.template")
}

// Load reads the .env file, creating it first when missing: from the
// template when one is bundled, otherwise empty.
func Load(workDir string) (string, error) {
	path := Path(workDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := seed(workDir, path); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", fmt.Errorf("stat env file: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read env file: %w", err)
	}
	return string(b), nil
}

// Save writes content verbatim, creating the server directory if
// needed.
func Save(workDir, content string) error {
	path := Path(workDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create env directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

func seed(workDir, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create env directory: %w", err)
	}
	tpl, err := os.ReadFile(templatePath(workDir))
	if err != nil {
		if os.IsNotExist(err) {
			tpl = nil
		} else {
			return fmt.Errorf("read env template: %w", err)
		}
	}
	if err := os.WriteFile(path, tpl, 0o600); err != nil {
		return fmt.Errorf("seed env file: %w", err)
	}
	return nil
}
