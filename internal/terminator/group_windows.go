//go:build windows

package terminator

import (
	"os/exec"
	"strconv"
	"syscall"
)

// CREATE_NO_WINDOW keeps helper invocations (taskkill) from flashing a
// console window.
const createNoWindow = 0x08000000

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const processTerminate = 0x0001

// setGroupAttrs starts the child in a new process group so the tree can
// be terminated as a unit via taskkill /T.
func setGroupAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// signalStop terminates the direct child. Windows has no cooperative
// TERM for non-console children, so TerminateProcess is the closest
// equivalent of a direct stop request.
func signalStop(pid int) error {
	return terminateByPID(pid)
}

// sweepGroup has no cheap group signal on Windows; the tree kill below
// covers descendants. Treated as a no-op.
func sweepGroup(pid int) error { return nil }

// killTree uses taskkill /T to reach the whole process tree, then
// TerminateProcess on the direct child as a fallback.
func killTree(pid int) {
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow, HideWindow: true}
	_ = cmd.Run()
	_ = terminateByPID(pid)
}

func terminateByPID(pid int) error {
	if pid <= 0 {
		return nil
	}
	handle, _, err := procOpenProcess.Call(uintptr(processTerminate), 0, uintptr(uint32(pid)))
	if handle == 0 {
		// Process already gone; common during rapid teardown.
		_ = err
		return nil
	}
	defer func() { _, _, _ = procCloseHandle.Call(handle) }()
	ret, _, callErr := procTerminateProcess.Call(handle, uintptr(1))
	if ret == 0 {
		return callErr
	}
	return nil
}
