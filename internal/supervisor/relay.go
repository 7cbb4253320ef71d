package supervisor

import (
	"bufio"
	"io"
	"os/exec"
	"strings"

	"github.com/servman/servman/internal/event"
	"github.com/servman/servman/internal/metrics"
)

// bindFailureSignatures are the substrings that mark a fatal startup
// failure caused by the port being bound already. The set matches what
// common Python/uvicorn stacks print; the compound "bind on address ...
// address already in use" phrasing is subsumed by the first entry.
var bindFailureSignatures = []string{
	"address already in use",
	"Errno 48",
	"Port already in use",
	"Cannot bind to address",
}

// IsBindFailure reports whether a stderr line matches a fatal-bind
// signature. Exported for tests and for callers that surface the list.
func IsBindFailure(line string) bool {
	for _, sig := range bindFailureSignatures {
		if strings.Contains(line, sig) {
			return true
		}
	}
	return false
}

// relay pumps one output stream until end-of-stream, forwarding each
// line to the sink and optionally into an on-disk mirror. Relays have
// no cancellation handle: they end when the pipe closes (child exited
// or was killed) or, for stderr, when a fatal-bind signature ends the
// scan. scanFatal is true only for the stderr relay.
func (s *Supervisor) relay(r io.Reader, stream string, mirror io.WriteCloser, cmd *exec.Cmd, scanFatal bool) {
	defer func() {
		if mirror != nil {
			_ = mirror.Close()
		}
	}()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if mirror != nil {
			_, _ = mirror.Write(append([]byte(line), '\n'))
		}
		s.sink.Emit(event.Event{Type: event.TypeServerOutput, Output: event.NewOutput(stream, line)})
		metrics.IncOutputLine(stream)
		if scanFatal && IsBindFailure(line) {
			s.failStartup(cmd)
			return
		}
	}
	// Scanner errors (closed pipe during teardown) are equivalent to EOF.
}
