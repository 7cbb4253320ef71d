// Package terminator implements the escalating, best-effort kill
// strategy for the supervised server process and its descendants. The
// platform-specific group mechanics live in group_unix.go and
// group_windows.go; call sites only see one capability.
package terminator

import (
	"log/slog"
	"os/exec"
	"time"
)

// DefaultGrace is how long Terminate waits for the direct child to exit
// after the graceful request before escalating to a forced group kill.
const DefaultGrace = 3 * time.Second

type Terminator struct {
	log   *slog.Logger
	grace time.Duration
}

func New(log *slog.Logger) *Terminator {
	if log == nil {
		log = slog.Default()
	}
	return &Terminator{log: log, grace: DefaultGrace}
}

// SetGrace overrides the escalation window. Values <= 0 keep the default.
func (t *Terminator) SetGrace(d time.Duration) {
	if d > 0 {
		t.grace = d
	}
}

// SetGroupAttrs configures cmd so the child starts detached in its own
// process group/tree, making group-wide termination possible later.
// Must be called before cmd.Start.
func SetGroupAttrs(cmd *exec.Cmd) { setGroupAttrs(cmd) }

// Terminate requests a graceful stop of the direct child, sweeps its
// process group so descendants are reclaimed, escalates to a forced
// kill if the child does not exit within the grace window, and reaps
// the child. A nil cmd or a cmd without a live process is a no-op.
// Failures along the way are logged and ignored: termination is
// inherently best-effort and the caller cannot act on them.
func (t *Terminator) Terminate(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := signalStop(pid); err != nil {
		t.log.Debug("graceful stop request failed", "pid", pid, "error", err)
	}
	// The child may have forked the real service; sweep the whole group
	// even when the direct child stops cleanly.
	if err := sweepGroup(pid); err != nil {
		t.log.Debug("group sweep failed", "pid", pid, "error", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		t.logReaped(pid, err)
	case <-time.After(t.grace):
		t.log.Warn("child did not exit in grace window, forcing kill", "pid", pid, "grace", t.grace)
		killTree(pid)
		// Reap unconditionally so no defunct process is left behind.
		t.logReaped(pid, <-done)
	}
}

// Kill forcefully terminates the child and its whole group, then reaps
// the child. Used on the fatal-bind path where there is nothing worth
// waiting for.
func (t *Terminator) Kill(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	killTree(pid)
	t.logReaped(pid, cmd.Wait())
}

// KillTree force-kills the process group/tree rooted at pid without
// reaping: the caller does not own the handle (signal guard, backstop
// paths). A pid <= 0 is a no-op.
func (t *Terminator) KillTree(pid int) {
	if pid <= 0 {
		return
	}
	killTree(pid)
}

func (t *Terminator) logReaped(pid int, err error) {
	if err != nil {
		// Killed children report non-zero exits; that is the expected
		// outcome here, not a failure to surface.
		t.log.Debug("child reaped", "pid", pid, "exit", err)
		return
	}
	t.log.Debug("child reaped", "pid", pid)
}
