//go:build !windows

package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/servman/servman/internal/config"
	"github.com/servman/servman/internal/event"
)

// writeScript creates an executable shell script acting as the service.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "serve.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// newTestSupervisor builds a supervisor whose working directory, entry
// artifact, config store, and command all live under temp dirs.
func newTestSupervisor(t *testing.T, sink event.Sink, scriptBody string) (*Supervisor, string) {
	t.Helper()
	workDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workDir, "server"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "server", "main.py"), []byte("# entry\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	script := writeScript(t, t.TempDir(), scriptBody)
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	store := config.NewStoreAt(cfgPath, nil)
	if err := store.Save(config.Config{WorkingDirectory: workDir, DefaultPort: 8000}); err != nil {
		t.Fatal(err)
	}
	s := New(Options{
		Store:  store,
		Spec:   ServiceSpec{Command: "/bin/sh " + script},
		Sink:   sink,
		Settle: 50 * time.Millisecond,
	})
	t.Cleanup(s.Cleanup)
	return s, cfgPath
}

const longRunner = "sleep 30"

func TestStartRecordsPidAndPort(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	port := 9001
	st, err := s.Start(&port)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !st.Running || st.PID == nil || st.Port == nil {
		t.Fatalf("unexpected status %+v", st)
	}
	if *st.Port != 9001 {
		t.Fatalf("port = %d, want 9001", *st.Port)
	}
	got := s.Status()
	if !got.Running || got.PID == nil || *got.Port != 9001 {
		t.Fatalf("getStatus mismatch: %+v", got)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStartWhileRunningIsIdempotent(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	st1, err := s.Start(nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st2, err := s.Start(nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if *st1.PID != *st2.PID || *st1.Port != *st2.Port {
		t.Fatalf("second start changed status: %+v vs %+v", st1, st2)
	}
	_, _ = s.Stop()
}

func TestStopWhenIdleReturnsEmptyStatus(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	st, err := s.Stop()
	if err != nil {
		t.Fatalf("stop on idle: %v", err)
	}
	if st.Running || st.PID != nil || st.Port != nil {
		t.Fatalf("expected empty status, got %+v", st)
	}
}

func TestStopTerminatesProcess(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	st, err := s.Start(nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := *st.PID
	if _, err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("pid %d still alive after stop", pid)
	}
	if got := s.Status(); got.Running {
		t.Fatalf("status still running after stop")
	}
}

func TestRestartNeverShowsTwoCurrentPids(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	st, err := s.Start(nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	oldPID := *st.PID

	stop := make(chan struct{})
	done := make(chan struct{})
	var sawIdle bool
	var badPIDs []int
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := s.Status()
			if !snap.Running {
				sawIdle = true
			} else if snap.PID != nil {
				badPIDs = append(badPIDs, *snap.PID)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	st2, err := s.Restart(nil)
	close(stop)
	<-done
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if *st2.PID == oldPID {
		t.Fatalf("restart reused pid %d", oldPID)
	}
	if !sawIdle {
		t.Fatalf("never observed idle window during restart")
	}
	for _, pid := range badPIDs {
		if pid != oldPID && pid != *st2.PID {
			t.Fatalf("observed stray pid %d (old=%d new=%d)", pid, oldPID, *st2.PID)
		}
	}
	_, _ = s.Stop()
}

func TestBindFailureTeardown(t *testing.T) {
	sink := &collector{}
	script := `echo "booting"
echo "ERROR: [Errno 48] address already in use" >&2
sleep 30`
	s, _ := newTestSupervisor(t, sink, script)
	st, err := s.Start(nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := *st.PID

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Status().Running {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := s.Status()
	if got.Running || got.PID != nil || got.Port != nil {
		t.Fatalf("status not cleared after bind failure: %+v", got)
	}
	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("failed process %d was not killed", pid)
	}
	if n := sink.countType(event.TypeServerStartupFailed); n != 1 {
		t.Fatalf("startup-failed events = %d, want exactly 1", n)
	}
	// The failure description is also emitted as a stream=error output.
	var sawErrorOutput bool
	for _, e := range sink.snapshot() {
		if e.Type == event.TypeServerOutput && e.Output.Stream == event.StreamError {
			sawErrorOutput = true
		}
	}
	if !sawErrorOutput {
		t.Fatalf("missing stream=error output describing the failure")
	}
}

func TestStartMissingEntryArtifact(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	// Point the working directory somewhere without server/main.py.
	empty := t.TempDir()
	if _, err := s.SetConfig(config.Config{WorkingDirectory: empty, DefaultPort: 8000}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	_, err := s.Start(nil)
	if err == nil {
		t.Fatalf("expected launch error for missing entry artifact")
	}
	if !strings.Contains(err.Error(), "server/main.py") || !strings.Contains(err.Error(), empty) {
		t.Fatalf("error should name the missing path, got: %v", err)
	}
	if s.Status().Running {
		t.Fatalf("no partial running state may remain")
	}
}

func TestStartSpawnFailureLeavesNoState(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	s.spec.Command = filepath.Join(t.TempDir(), "does-not-exist")
	if _, err := s.Start(nil); err == nil {
		t.Fatalf("expected spawn failure")
	}
	if s.Status().Running {
		t.Fatalf("status running after failed spawn")
	}
}

func TestSetConfigPersistsBeforeSwap(t *testing.T) {
	s, cfgPath := newTestSupervisor(t, &collector{}, longRunner)
	cur := s.Config()
	cur.DefaultPort = 9100
	if _, err := s.SetConfig(cur); err != nil {
		t.Fatalf("set config: %v", err)
	}
	// Disk already holds the new value; a crash after Save but before
	// the in-memory swap would still find port 9100 persisted.
	onDisk := config.NewStoreAt(cfgPath, nil).Load()
	if onDisk.DefaultPort != 9100 {
		t.Fatalf("persisted port = %d, want 9100", onDisk.DefaultPort)
	}
	if s.Config().DefaultPort != 9100 {
		t.Fatalf("in-memory port not swapped")
	}
}

func TestSetConfigFailureKeepsMemory(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	before := s.Config()
	if _, err := s.SetConfig(config.Config{DefaultPort: -1}); err == nil {
		t.Fatalf("expected save failure for invalid port")
	}
	if s.Config() != before {
		t.Fatalf("in-memory config changed despite failed persist")
	}
}

func TestCleanupBypassesInFlightStop(t *testing.T) {
	// A child that ignores TERM keeps stop blocked in its grace window;
	// cleanup must still kill immediately instead of queueing behind it.
	script := "trap '' TERM\nwhile :; do sleep 1; done"
	s, _ := newTestSupervisor(t, &collector{}, script)
	st, err := s.Start(nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := *st.PID
	// Give the shell time to install its trap before stop signals it.
	time.Sleep(150 * time.Millisecond)

	stopDone := make(chan struct{})
	go func() {
		_, _ = s.Stop()
		close(stopDone)
	}()
	// Let stop enter its grace wait on the resistant child.
	time.Sleep(200 * time.Millisecond)

	begin := time.Now()
	s.Cleanup()
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("cleanup blocked %v behind the in-flight stop", elapsed)
	}
	// The forced group kill collapses stop's grace window as well.
	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop still blocked after cleanup")
	}
	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("pid %d still alive after cleanup", pid)
	}
	if s.Status().Running {
		t.Fatalf("status still running after cleanup")
	}
}

func TestCleanupTwiceIsNoop(t *testing.T) {
	s, _ := newTestSupervisor(t, &collector{}, longRunner)
	st, err := s.Start(nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := *st.PID
	s.Cleanup()
	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("cleanup did not kill %d", pid)
	}
	// Second and third invocations find no handle and do nothing.
	s.Cleanup()
	s.Cleanup()
	if s.CurrentPID() != 0 {
		t.Fatalf("pid recorded after cleanup")
	}
}

func TestConfigFallsBackToDefaultOnCorruptStore(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(cfgPath, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(Options{Store: config.NewStoreAt(cfgPath, nil)})
	if got := s.Config(); got != config.Default() {
		t.Fatalf("expected default config, got %+v", got)
	}
}
