// Package sigguard intercepts host termination signals and runs an
// emergency child-process cleanup before the supervisor dies. It is
// deliberately independent of the normal command path: a SIGTERM must
// reclaim the child even when a start or stop is mid-flight.
package sigguard

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
)

// Guard watches for termination signals/events and fires a one-shot
// cleanup. A second delivery while cleanup is running forces an
// immediate exit, bounding total shutdown time.
type Guard struct {
	log     *slog.Logger
	cleanup func()
	fired   atomic.Bool
	ch      chan os.Signal
	exit    func(int)       // swapped in tests
	raise   func(os.Signal) // swapped in tests
}

// New creates a Guard invoking cleanup on first signal delivery.
// cleanup must be safe to call at any time and more than once.
func New(cleanup func(), log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	g := &Guard{log: log, cleanup: cleanup, exit: os.Exit}
	g.raise = g.terminate
	return g
}

// Start registers the signal handlers and parks a background goroutine
// until a signal arrives. It returns immediately.
func (g *Guard) Start() {
	g.ch = make(chan os.Signal, 2)
	signal.Notify(g.ch, watched()...)
	installPlatformHooks(g)
	go func() {
		for sig := range g.ch {
			g.handle(sig)
		}
	}()
}

// handle implements the first/repeat delivery contract.
func (g *Guard) handle(sig os.Signal) {
	if !g.fired.CompareAndSwap(false, true) {
		// Repeat delivery: cleanup is already underway or wedged.
		// Exit without further work rather than risk re-entrancy.
		g.exit(1)
		return
	}
	g.log.Warn("termination signal received, cleaning up child processes", "signal", sig.String())
	if g.cleanup != nil {
		g.cleanup()
	}
	g.raise(sig)
}

// Shutdown runs the cleanup synchronously. The window-close and
// deferred-exit paths use this instead of waiting for a signal.
func (g *Guard) Shutdown() {
	if g.cleanup != nil {
		g.cleanup()
	}
}

// Fired reports whether a termination signal has been observed.
func (g *Guard) Fired() bool { return g.fired.Load() }
