//go:build !windows

package portprobe

import (
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// listenerPIDs shells out to lsof, the portable way to map a TCP port
// to its listeners on macOS and Linux. A non-zero exit with no output
// means nothing is listening, not an error.
func listenerPIDs(port int) ([]int, error) {
	out, err := exec.Command("lsof", "-t", "-i", ":"+strconv.Itoa(port), "-sTCP:LISTEN").Output()
	if err != nil && len(out) == 0 {
		return nil, nil
	}
	return parseLsofPIDs(string(out)), nil
}

// parseLsofPIDs reads `lsof -t` output: one pid per line, possibly
// duplicated when a process holds several sockets.
func parseLsofPIDs(out string) []int {
	seen := map[int]bool{}
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
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
	return syscall.Kill(pid, syscall.SIGTERM)
}

func forceKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
