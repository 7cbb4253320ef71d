//go:build !windows

package terminator

import (
	"os/exec"
	"syscall"
)

// setGroupAttrs places the child in a new process group so that
// signalling -pid reaches it and everything it spawns.
func setGroupAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalStop asks the direct child to shut down cooperatively.
func signalStop(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// sweepGroup delivers SIGTERM to the whole process group.
func sweepGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killTree delivers SIGKILL to the group, plus the direct child as a
// fallback in case it escaped its group.
func killTree(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
