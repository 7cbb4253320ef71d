//go:build !windows

package sigguard

import (
	"os"
	"os/signal"
	"syscall"
)

// watched returns the POSIX termination set: interrupt, terminate,
// quit, and abnormal abort.
func watched() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGABRT}
}

// installPlatformHooks is a no-op on POSIX; signal.Notify covers it.
func installPlatformHooks(*Guard) {}

// terminate re-raises the signal with the default disposition restored
// so the parent observes the conventional exit status.
func (g *Guard) terminate(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		g.exit(1)
		return
	}
	signal.Reset(sig)
	_ = syscall.Kill(syscall.Getpid(), s)
	// If the re-raise was somehow swallowed, do not linger.
	g.exit(1)
}
