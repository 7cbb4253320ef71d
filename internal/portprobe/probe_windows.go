//go:build windows

package portprobe

import (
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const createNoWindow = 0x08000000

// listenerPIDs parses `netstat -ano` for LISTENING sockets on port.
func listenerPIDs(port int) ([]int, error) {
	cmd := exec.Command("netstat", "-ano", "-p", "TCP")
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseNetstatPIDs(string(out), port), nil
}

// parseNetstatPIDs extracts owning pids from netstat output lines like
//
//	TCP    0.0.0.0:8000    0.0.0.0:0    LISTENING    4132
//
// matching only the local port and the LISTENING state.
func parseNetstatPIDs(out string, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	seen := map[int]bool{}
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || fields[0] != "TCP" {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		if !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

func signalTerm(pid int) error {
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
	return cmd.Run()
}

func forceKill(pid int) error {
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
	return cmd.Run()
}

func startTime(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
