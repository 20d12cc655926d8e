//go:build !windows

package procutil

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// alive reports whether pid is still running. An exited child of this
// process is reaped first, since a zombie still answers the null signal;
// otherwise pid is probed with the null signal, which performs existence
// and permission checks without actually signalling the process.
func alive(pid int) bool {
	var ws syscall.WaitStatus
	if wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil); err == nil && wpid == pid {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Terminate sends SIGTERM to pid, waits up to timeout for it to exit, and
// escalates to SIGKILL if it is still alive afterward. It returns nil if the
// process was already gone.
func Terminate(pid int, timeout time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return nil
		}
		time.Sleep(25 * time.Millisecond)
	}

	if !alive(pid) {
		return nil
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	return nil
}
