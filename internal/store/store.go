package store

import (
	"context"
	"errors"
	"time"
)

// Status is the persisted lifecycle state of a supervised agent session.
// It is only ever advanced by heartbeat (running -> dead) and terminate
// (-> terminated); display-time liveness is computed from the OS instead.
type Status string

const (
	StatusRunning    Status = "running"
	StatusDead       Status = "dead"
	StatusTerminated Status = "terminated"
)

// Well-known event types written by the monitor itself. Callers may append
// events with their own types via AppendEvent.
const (
	EventRegistered = "registered"
	EventTerminated = "terminated"
)

var (
	// ErrSessionNotFound is returned when a session id has no registry row.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDuplicateSession is returned when registering an already-used
	// session id. Registration never overwrites; callers must pick a fresh
	// id per attempt.
	ErrDuplicateSession = errors.New("session already registered")
)

// AgentRecord is one row of the session registry: a single supervised OS
// process. SessionID is the caller-assigned primary key.
type AgentRecord struct {
	SessionID     string
	PID           int
	AgentType     string
	StoryID       string
	StartedAt     time.Time
	LastHeartbeat time.Time
	Status        Status
	CPUPercent    float64
	MemoryMB      float64
	NumFDs        int
}

// MetricSample is one append-only time-series point for a session. It is
// serialized as-is in metrics reports.
type MetricSample struct {
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumFDs     int       `json:"num_fds"`
	IOReads    uint64    `json:"io_reads"`
	IOWrites   uint64    `json:"io_writes"`
}

// Event is one append-only audit-log entry for a session.
type Event struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"event_type"`
	Message   string    `json:"message"`
}

// Store persists the session registry, metric time series and audit log.
// Implementations must make each read-then-write method a single
// transaction so a concurrent purge cannot leave orphan rows.
type Store interface {
	EnsureSchema(ctx context.Context) error

	// RegisterAgent inserts the registry row and its registered event as a
	// unit. Returns ErrDuplicateSession if the session id is taken.
	RegisterAgent(ctx context.Context, rec AgentRecord, ev Event) error

	// GetAgent returns the registry row or ErrSessionNotFound.
	GetAgent(ctx context.Context, sessionID string) (AgentRecord, error)

	// RecordHeartbeat updates last_heartbeat and the latest metric columns
	// on the registry row and appends the sample, as a unit. Returns
	// ErrSessionNotFound if the row vanished (e.g. concurrent purge).
	RecordHeartbeat(ctx context.Context, sample MetricSample) error

	// SetStatus transitions the persisted status column only.
	SetStatus(ctx context.Context, sessionID string, st Status) error

	// MarkTerminated sets status terminated and appends the terminated
	// event, as a unit.
	MarkTerminated(ctx context.Context, sessionID string, ev Event) error

	// AppendEvent adds one audit-log entry.
	AppendEvent(ctx context.Context, ev Event) error

	// ListAgents returns registry rows ordered most-recently-started first,
	// filtered to status running unless includeDead is set.
	ListAgents(ctx context.Context, includeDead bool) ([]AgentRecord, error)

	// SamplesSince returns samples with timestamp >= cutoff, newest first.
	SamplesSince(ctx context.Context, sessionID string, cutoff time.Time) ([]MetricSample, error)

	// RecentSamples returns the n newest samples, newest first.
	RecentSamples(ctx context.Context, sessionID string, n int) ([]MetricSample, error)

	// RecentEvents returns the n newest events, newest first.
	RecentEvents(ctx context.Context, sessionID string, n int) ([]Event, error)

	// PurgeDead deletes every session with status dead or terminated whose
	// last_heartbeat is before cutoff, together with its samples and
	// events, in one transaction. Returns the purged session ids; an empty
	// result is a normal outcome, not an error.
	PurgeDead(ctx context.Context, cutoff time.Time) ([]string, error)

	Close() error
}
