// Package portprobe inspects and reclaims TCP ports. It answers "what
// is listening on this port" and can evict the listeners, which is how
// a stale or foreign server occupying the default port gets cleared
// before a start.
package portprobe

import (
	"log/slog"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultGrace is how long an evicted listener gets between the polite
// signal and the forced kill.
const DefaultGrace = time.Second

// Listener describes one process holding a port open.
type Listener struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// Prober finds and evicts port listeners using the platform tools.
type Prober struct {
	log   *slog.Logger
	grace time.Duration
}

func New(log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	return &Prober{log: log, grace: DefaultGrace}
}

// SetGrace overrides the escalation delay. Tests use short values.
func (p *Prober) SetGrace(d time.Duration) { p.grace = d }

// Check returns the processes currently listening on port. An empty
// slice means the port is free.
func (p *Prober) Check(port int) ([]Listener, error) {
	pids, err := listenerPIDs(port)
	if err != nil {
		return nil, err
	}
	listeners := make([]Listener, 0, len(pids))
	for _, pid := range pids {
		listeners = append(listeners, Listener{PID: pid, Name: processName(pid)})
	}
	return listeners, nil
}

// Evict terminates every process listening on port and returns what it
// evicted. Each listener first gets the polite platform signal; any
// survivor past the grace window is force-killed, but only if it is
// still the same process, so a recycled pid is never hit.
func (p *Prober) Evict(port int) ([]Listener, error) {
	listeners, err := p.Check(port)
	if err != nil {
		return nil, err
	}
	if len(listeners) == 0 {
		return listeners, nil
	}
	// Start times pin each pid to the process observed now; if a pid is
	// recycled during the grace window the force kill is skipped.
	identities := make(map[int]int64, len(listeners))
	for _, l := range listeners {
		identities[l.PID] = startTime(l.PID)
		if err := signalTerm(l.PID); err != nil {
			p.log.Debug("term signal failed", "pid", l.PID, "error", err)
		}
	}
	deadline := time.Now().Add(p.grace)
	for time.Now().Before(deadline) {
		if !anyAlive(listeners) {
			return listeners, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	for _, l := range listeners {
		if !alive(l.PID) {
			continue
		}
		if id := identities[l.PID]; id != 0 && startTime(l.PID) != id {
			p.log.Debug("pid recycled during grace, skipping kill", "pid", l.PID)
			continue
		}
		if err := forceKill(l.PID); err != nil {
			p.log.Warn("force kill failed", "pid", l.PID, "name", l.Name, "error", err)
		} else {
			p.log.Info("evicted port listener", "pid", l.PID, "name", l.Name, "port", port)
		}
	}
	return listeners, nil
}

func anyAlive(listeners []Listener) bool {
	for _, l := range listeners {
		if alive(l.PID) {
			return true
		}
	}
	return false
}

func alive(pid int) bool {
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

// processName resolves a pid to its executable name, "unknown" when the
// process vanished or denies access.
func processName(pid int) string {
	proc, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "unknown"
	}
	name, err := proc.Name()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}
