// Package supervisor owns the lifecycle of the one supervised server
// process: start, stop, restart, status, and configuration, plus the
// asynchronous teardown triggered when the server fails to bind its
// port.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/servman/servman/internal/config"
	"github.com/servman/servman/internal/event"
	"github.com/servman/servman/internal/history"
	"github.com/servman/servman/internal/metrics"
	"github.com/servman/servman/internal/terminator"
)

// SettleDelay is the pause between stop and start during a restart. It
// gives the OS time to release the previously bound port; removing it
// risks a spurious bind failure on the new start.
const SettleDelay = time.Second

const bindFailureMessage = "Server startup failed: Port already in use"

// Options configures a Supervisor. Store is required; everything else
// has a usable zero value.
type Options struct {
	Store   *config.Store
	Spec    ServiceSpec
	Sink    event.Sink
	History history.Store  // optional lifecycle/output persistence
	Exports []history.Sink // optional lifecycle exporters
	Logger  *slog.Logger
	Settle  time.Duration // overrides SettleDelay, tests only
}

// Supervisor serializes lifecycle commands over one supervised process.
//
// Lock order: opMu (command serialization) before mu (process+status
// guard) before cfgMu. The relay goroutines take only mu, on the
// fatal-bind path, so a fatal teardown cannot interleave with a stop.
// cfgMu is never acquired before mu.
type Supervisor struct {
	opMu sync.Mutex // serializes start/stop/restart/setConfig

	mu     sync.Mutex // guards proc and status
	proc   *exec.Cmd
	status Status

	// lastPID is the pid of the most recently spawned child, zeroed once
	// it is terminated. Cleanup kills through it without taking mu.
	lastPID atomic.Int64

	cfgMu sync.Mutex
	cfg   config.Config

	spec    ServiceSpec
	store   *config.Store
	sink    event.Sink
	term    *terminator.Terminator
	hist    history.Store
	exports []history.Sink
	log     *slog.Logger
	settle  time.Duration
}

// New constructs a Supervisor, loading the persisted configuration once
// and falling back to defaults on any load failure.
func New(opts Options) *Supervisor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = event.SinkFunc(func(event.Event) {})
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = SettleDelay
	}
	cfg := config.Default()
	if opts.Store != nil {
		cfg = opts.Store.Load()
	}
	return &Supervisor{
		spec:    opts.Spec.withDefaults(),
		store:   opts.Store,
		sink:    sink,
		term:    terminator.New(log),
		hist:    opts.History,
		exports: opts.Exports,
		log:     log,
		settle:  settle,
		cfg:     cfg,
	}
}

// Start launches the server if it is not already running. A nil port
// uses the configured default. Calling Start while running is an
// idempotent no-op returning the current status.
func (s *Supervisor) Start(port *int) (Status, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start(port)
}

// Stop terminates the server and its descendants. Stopping an idle
// supervisor returns the empty status without error.
func (s *Supervisor) Stop() (Status, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop(), nil
}

// Restart stops, waits out the settle delay so the OS releases the
// port, and starts again.
func (s *Supervisor) Restart(port *int) (Status, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stop()
	time.Sleep(s.settle)
	st, err := s.start(port)
	if err == nil {
		metrics.IncRestart()
		s.recordLifecycle(history.EventRestart, st, "")
	}
	return st, err
}

// Status returns a snapshot of the current server state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// Config returns the current configuration.
func (s *Supervisor) Config() config.Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

// SetConfig persists cfg, then swaps the in-memory copy. The ordering
// guarantees a crash between the two steps never leaves memory ahead
// of disk.
func (s *Supervisor) SetConfig(cfg config.Config) (config.Config, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.store != nil {
		if err := s.store.Save(cfg); err != nil {
			return config.Config{}, fmt.Errorf("persist config: %w", err)
		}
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	return cfg, nil
}

// Cleanup force-kills the supervised process tree and resets status.
// The kill happens before any locking: a stop may be mid-flight holding
// the state lock across its grace window, and the signal guard must
// reclaim the child immediately, not after that window expires. Killing
// the group also collapses an in-flight grace wait, so the state reset
// below blocks only for the reap. Safe to call repeatedly.
func (s *Supervisor) Cleanup() {
	if pid := int(s.lastPID.Swap(0)); pid > 0 {
		s.term.KillTree(pid)
		metrics.SetUp(false)
	}
	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.status = Status{}
	s.mu.Unlock()
	if proc != nil {
		// Reap; the group is already dead.
		s.term.Kill(proc)
	}
}

// CurrentPID returns the supervised pid or 0 when idle.
func (s *Supervisor) CurrentPID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || s.proc.Process == nil {
		return 0
	}
	return s.proc.Process.Pid
}

func (s *Supervisor) start(port *int) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return s.status.clone(), nil
	}

	s.cfgMu.Lock()
	cfg := s.cfg
	s.cfgMu.Unlock()
	p := cfg.DefaultPort
	if port != nil {
		p = *port
	}

	workDir, err := s.resolveWorkDir(cfg)
	if err != nil {
		return Status{}, err
	}
	entry := filepath.Join(workDir, filepath.FromSlash(s.spec.Entry))
	if _, err := os.Stat(entry); err != nil {
		return Status{}, fmt.Errorf("%s not found in working directory %s (expected %s)", s.spec.Entry, workDir, entry)
	}

	cmd := s.spec.buildCommand(workDir, p)
	terminator.SetGroupAttrs(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Status{}, fmt.Errorf("capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Status{}, fmt.Errorf("capture stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Status{}, fmt.Errorf("start server in %s: %w", workDir, err)
	}

	outMirror, errMirror := s.spec.Mirror.Writers(s.spec.Name)
	go s.relay(stdout, event.StreamStdout, outMirror, cmd, false)
	go s.relay(stderr, event.StreamStderr, errMirror, cmd, true)

	s.proc = cmd
	s.lastPID.Store(int64(cmd.Process.Pid))
	s.status = Status{Running: true, PID: intPtr(cmd.Process.Pid), Port: intPtr(p)}
	metrics.IncStart()
	metrics.SetUp(true)
	st := s.status.clone()
	s.log.Info("server started", "pid", cmd.Process.Pid, "port", p, "workdir", workDir)
	s.recordLifecycle(history.EventStart, st, "")
	return st, nil
}

// stop terminates the recorded process, if any, and resets status. The
// caller holds opMu.
func (s *Supervisor) stop() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return s.status.clone()
	}
	proc := s.proc
	st := s.status.clone()
	s.proc = nil
	// Terminate blocks until the child is reaped; the lock stays held so
	// a blocked starter always observes the fully-resolved stop.
	s.term.Terminate(proc)
	s.lastPID.Store(0)
	s.status = Status{}
	metrics.IncStop()
	metrics.SetUp(false)
	s.log.Info("server stopped")
	s.recordLifecycle(history.EventStop, st, "")
	return s.status.clone()
}

// failStartup is the fatal-bind teardown, invoked from the stderr relay
// on the first signature match. It uses the same state lock as the
// command path, so it cannot interleave with a concurrent stop; the
// handle comparison makes it a no-op when the matching process is no
// longer current.
func (s *Supervisor) failStartup(cmd *exec.Cmd) {
	s.mu.Lock()
	if cmd == nil || s.proc != cmd {
		s.mu.Unlock()
		return
	}
	st := s.status.clone()
	s.proc = nil
	s.lastPID.Store(0)
	s.status = Status{}
	s.mu.Unlock()

	s.log.Error("server startup failed: port already in use")
	s.term.Kill(cmd)
	metrics.IncBindFailure()
	metrics.SetUp(false)

	failure := event.NewOutput(event.StreamError, bindFailureMessage)
	s.sink.Emit(event.Event{Type: event.TypeServerOutput, Output: failure})
	s.sink.Emit(event.Event{Type: event.TypeServerStartupFailed, Output: failure})
	s.recordLifecycle(history.EventBindFailure, st, bindFailureMessage)
}

// SuggestedWorkDir returns the directory used when no override is
// configured: the parent of the current directory.
func (s *Supervisor) SuggestedWorkDir() (string, error) {
	return s.resolveWorkDir(config.Config{})
}

func (s *Supervisor) resolveWorkDir(cfg config.Config) (string, error) {
	if cfg.WorkingDirectory != "" {
		return cfg.WorkingDirectory, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve current directory: %w", err)
	}
	parent := filepath.Dir(cwd)
	if parent == cwd {
		return "", fmt.Errorf("current directory %s has no parent", cwd)
	}
	return parent, nil
}

// recordLifecycle persists and exports a lifecycle event, best-effort.
func (s *Supervisor) recordLifecycle(typ history.EventType, st Status, detail string) {
	rec := history.LifecycleRecord{Type: typ, At: time.Now(), Detail: detail}
	if st.PID != nil {
		rec.PID = *st.PID
	}
	if st.Port != nil {
		rec.Port = *st.Port
	}
	ctx := context.Background()
	if s.hist != nil {
		if err := s.hist.RecordLifecycle(ctx, rec); err != nil {
			s.log.Debug("lifecycle history write failed", "error", err)
		}
	}
	for _, exp := range s.exports {
		if err := exp.Send(ctx, rec); err != nil {
			s.log.Debug("lifecycle export failed", "error", err)
		}
	}
}
