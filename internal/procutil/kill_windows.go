//go:build windows

package procutil

import (
	"os"
	"time"
)

// Terminate kills pid. Windows has no graceful-then-forceful signal
// escalation available through os.Process, so this is a direct terminate;
// timeout is accepted for interface parity with the Unix implementation but
// unused.
func Terminate(pid int, _ time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Kill()
}
