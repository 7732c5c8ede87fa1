//go:build !windows

package probe

import "syscall"

// SignalTerm asks pid to exit cooperatively (SIGTERM).
func SignalTerm(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// SignalKill terminates pid unconditionally (SIGKILL).
func SignalKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
