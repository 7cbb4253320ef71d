package supervisor

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/servman/servman/internal/logger"
)

// Defaults for the supervised service. The stock setup runs a Python
// server through uv from the resolved working directory.
const (
	DefaultName    = "server"
	DefaultCommand = "uv run server/main.py"
	DefaultEntry   = "server/main.py"
)

// ServiceSpec describes the one service this supervisor manages.
type ServiceSpec struct {
	Name    string              `json:"name" mapstructure:"name"`       // used for mirror filenames and logs
	Command string              `json:"command" mapstructure:"command"` // whitespace-split argv; --port is appended
	Entry   string              `json:"entry" mapstructure:"entry"`     // artifact that must exist under the working directory
	Mirror  logger.MirrorConfig `json:"mirror" mapstructure:"mirror"`   // optional on-disk stdout/stderr mirrors
}

// withDefaults fills unset fields.
func (s ServiceSpec) withDefaults() ServiceSpec {
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.Command == "" {
		s.Command = DefaultCommand
	}
	if s.Entry == "" {
		s.Entry = DefaultEntry
	}
	return s
}

// buildCommand constructs the exec.Cmd for the service on the given
// port. The command string is split on whitespace; no shell is
// involved, so the supervisor's group kill reaches the real process
// rather than an intermediate shell.
func (s ServiceSpec) buildCommand(workDir string, port int) *exec.Cmd {
	parts := strings.Fields(s.Command)
	if len(parts) == 0 {
		parts = strings.Fields(DefaultCommand)
	}
	args := append(parts[1:], "--port", strconv.Itoa(port))
	// #nosec G204 -- command comes from operator configuration
	cmd := exec.Command(parts[0], args...)
	cmd.Dir = workDir
	return cmd
}
