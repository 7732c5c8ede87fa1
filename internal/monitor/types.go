package monitor

import (
	"time"

	"github.com/agenticscrum/agentmon/internal/probe"
	"github.com/agenticscrum/agentmon/internal/store"
)

// HeartbeatStatus is the outcome of a heartbeat call.
type HeartbeatStatus string

const (
	HeartbeatAlive HeartbeatStatus = "alive"
	HeartbeatDead  HeartbeatStatus = "dead"
)

// RegisterResult is returned by Register.
type RegisterResult struct {
	SessionID string        `json:"session_id"`
	PID       int           `json:"pid"`
	Sampled   bool          `json:"sampled"`
	Metrics   probe.Metrics `json:"metrics"`
	StartedAt time.Time     `json:"started_at"`
}

// HeartbeatResult is returned by Heartbeat. Metrics is nil on the dead path;
// no sample row is written in that case either.
type HeartbeatResult struct {
	SessionID string          `json:"session_id"`
	Status    HeartbeatStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Metrics   *probe.Metrics  `json:"metrics,omitempty"`
}

// AgentSummary is one row of the List output. Status is the live OS check at
// call time; StoredStatus is the persisted state-machine column. They can
// disagree when a process died since its last heartbeat.
type AgentSummary struct {
	SessionID     string       `json:"session_id"`
	PID           int          `json:"pid"`
	AgentType     string       `json:"agent_type"`
	StoryID       string       `json:"story_id"`
	Status        string       `json:"status"`
	StoredStatus  store.Status `json:"stored_status"`
	StartedAt     time.Time    `json:"started_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	UptimeMinutes float64      `json:"uptime_minutes"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryMB      float64      `json:"memory_mb"`
	NumFDs        int          `json:"num_fds"`
}

// WindowStats are aggregates over the trailing query window. All fields are
// zero for an empty window.
type WindowStats struct {
	SampleCount int     `json:"sample_count"`
	AvgCPU      float64 `json:"avg_cpu_percent"`
	MaxCPU      float64 `json:"max_cpu_percent"`
	AvgMemoryMB float64 `json:"avg_memory_mb"`
	MaxMemoryMB float64 `json:"max_memory_mb"`
}

// MetricsReport is returned by GetMetrics. Samples and Events are newest
// first.
type MetricsReport struct {
	Agent         AgentSummary         `json:"agent"`
	WindowMinutes int                  `json:"window_minutes"`
	Stats         WindowStats          `json:"stats"`
	Samples       []store.MetricSample `json:"samples"`
	Events        []store.Event        `json:"events"`
}

// TerminateResult is returned by Terminate. Message distinguishes the
// already-dead, graceful, still-running and force-killed paths.
type TerminateResult struct {
	SessionID string `json:"session_id"`
	Forced    bool   `json:"forced"`
	Message   string `json:"message"`
}

// LogExcerpt is returned by GetLogs: the last Lines lines of the session's
// log file as one unparsed blob.
type LogExcerpt struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Lines     int    `json:"lines"`
	Content   string `json:"content"`
}

// CleanupResult is returned by CleanupDead.
type CleanupResult struct {
	CleanedCount int      `json:"cleaned_count"`
	Sessions     []string `json:"sessions,omitempty"`
}
