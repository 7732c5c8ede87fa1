package client

import "time"

// Wire mirrors of the daemon's result payloads.

// RegisterResult is the payload of a successful registration.
type RegisterResult struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	Sampled   bool      `json:"sampled"`
	StartedAt time.Time `json:"started_at"`
}

// HeartbeatResult reports the outcome of a heartbeat: "alive" or "dead".
type HeartbeatResult struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Metrics   *SampledValues `json:"metrics,omitempty"`
}

// SampledValues is one resource snapshot.
type SampledValues struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	NumFDs     int     `json:"num_fds"`
	IOReads    uint64  `json:"io_reads"`
	IOWrites   uint64  `json:"io_writes"`
}

// AgentSummary is one row of the list output. Status is the live OS check;
// StoredStatus is the persisted lifecycle column.
type AgentSummary struct {
	SessionID     string    `json:"session_id"`
	PID           int       `json:"pid"`
	AgentType     string    `json:"agent_type"`
	StoryID       string    `json:"story_id"`
	Status        string    `json:"status"`
	StoredStatus  string    `json:"stored_status"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	UptimeMinutes float64   `json:"uptime_minutes"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	NumFDs        int       `json:"num_fds"`
}

// WindowStats are aggregates over the metrics query window.
type WindowStats struct {
	SampleCount int     `json:"sample_count"`
	AvgCPU      float64 `json:"avg_cpu_percent"`
	MaxCPU      float64 `json:"max_cpu_percent"`
	AvgMemoryMB float64 `json:"avg_memory_mb"`
	MaxMemoryMB float64 `json:"max_memory_mb"`
}

// MetricSample is one time-series point.
type MetricSample struct {
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumFDs     int       `json:"num_fds"`
	IOReads    uint64    `json:"io_reads"`
	IOWrites   uint64    `json:"io_writes"`
}

// Event is one audit-log entry.
type Event struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"event_type"`
	Message   string    `json:"message"`
}

// MetricsReport is the metrics endpoint payload.
type MetricsReport struct {
	Agent         AgentSummary   `json:"agent"`
	WindowMinutes int            `json:"window_minutes"`
	Stats         WindowStats    `json:"stats"`
	Samples       []MetricSample `json:"samples"`
	Events        []Event        `json:"events"`
}

// TerminateResult is the terminate endpoint payload.
type TerminateResult struct {
	SessionID string `json:"session_id"`
	Forced    bool   `json:"forced"`
	Message   string `json:"message"`
}

// LogExcerpt is the logs endpoint payload.
type LogExcerpt struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Lines     int    `json:"lines"`
	Content   string `json:"content"`
}

// CleanupResult is the cleanup endpoint payload.
type CleanupResult struct {
	CleanedCount int      `json:"cleaned_count"`
	Sessions     []string `json:"sessions,omitempty"`
}
