//go:build windows

package probe

import (
	"github.com/shirou/gopsutil/v4/process"
)

// Windows has no cooperative termination signal; both paths call
// TerminateProcess via gopsutil.

func SignalTerm(pid int) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return proc.Terminate()
}

func SignalKill(pid int) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return proc.Kill()
}
