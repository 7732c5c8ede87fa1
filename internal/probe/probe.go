// Package probe answers liveness and resource questions about arbitrary OS
// processes. Failures to inspect a process are never errors here: a process
// the monitor cannot see is simply not alive, and a counter the platform
// does not expose reads as zero.
package probe

import (
	"log/slog"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// Metrics is one point-in-time resource snapshot of a process.
type Metrics struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	NumFDs     int     `json:"num_fds"`
	IOReads    uint64  `json:"io_reads"`
	IOWrites   uint64  `json:"io_writes"`
}

// Alive reports whether the OS has an inspectable process at pid.
// "No such process" and "permission denied" both count as not alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Sample collects CPU%, RSS memory, fd count and cumulative IO counters for
// pid. The second return is false when the process vanished or cannot be
// inspected at all; individual unsupported counters degrade to zero instead.
func Sample(pid int) (Metrics, bool) {
	if pid <= 0 {
		return Metrics{}, false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Metrics{}, false
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		// memory info is the baseline; if we cannot read it the process is
		// gone or off-limits
		return Metrics{}, false
	}

	var m Metrics
	m.MemoryMB = float64(memInfo.RSS) / 1024 / 1024

	if cpu, err := proc.CPUPercent(); err == nil {
		m.CPUPercent = cpu
	} else {
		slog.Debug("cpu percent unavailable", "pid", pid, "error", err)
	}

	// fd counts exist on Unix only
	if runtime.GOOS != "windows" {
		if fds, err := proc.NumFDs(); err == nil {
			m.NumFDs = int(fds)
		}
	}

	// IO counters are unsupported on some platforms (notably darwin)
	if io, err := proc.IOCounters(); err == nil {
		m.IOReads = io.ReadCount
		m.IOWrites = io.WriteCount
	} else {
		slog.Debug("io counters unavailable", "pid", pid, "error", err)
	}

	return m, true
}
