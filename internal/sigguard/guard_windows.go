//go:build windows

package sigguard

import (
	"os"
	"syscall"
)

var (
	kernel32                  = syscall.NewLazyDLL("kernel32.dll")
	procSetConsoleCtrlHandler = kernel32.NewProc("SetConsoleCtrlHandler")
)

// Console control event codes.
const (
	ctrlCEvent        = 0
	ctrlBreakEvent    = 1
	ctrlCloseEvent    = 2
	ctrlLogoffEvent   = 5
	ctrlShutdownEvent = 6
)

// watched returns the portable interrupt set; console-control events
// are handled by the native hook below.
func watched() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// installPlatformHooks registers a console control handler so window
// close, logoff, and shutdown events also trigger the cleanup path.
func installPlatformHooks(g *Guard) {
	handler := syscall.NewCallback(func(ctrlType uint32) uintptr {
		switch ctrlType {
		case ctrlCEvent, ctrlBreakEvent, ctrlCloseEvent, ctrlLogoffEvent, ctrlShutdownEvent:
			g.handle(consoleEvent(ctrlType))
			return 1
		}
		return 0
	})
	_, _, _ = procSetConsoleCtrlHandler.Call(handler, 1)
}

// consoleEvent adapts a control event code to os.Signal for logging.
type consoleEvent uint32

func (e consoleEvent) String() string {
	switch uint32(e) {
	case ctrlCEvent:
		return "CTRL_C_EVENT"
	case ctrlBreakEvent:
		return "CTRL_BREAK_EVENT"
	case ctrlCloseEvent:
		return "CTRL_CLOSE_EVENT"
	case ctrlLogoffEvent:
		return "CTRL_LOGOFF_EVENT"
	case ctrlShutdownEvent:
		return "CTRL_SHUTDOWN_EVENT"
	}
	return "CTRL_UNKNOWN_EVENT"
}

func (e consoleEvent) Signal() {}

// terminate exits directly; there is no signal to re-raise on Windows.
func (g *Guard) terminate(os.Signal) {
	g.exit(1)
}
