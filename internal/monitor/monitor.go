// Package monitor implements the background-agent process monitor: a
// session registry over an injected store, plus OS-truth liveness checks.
//
// Liveness policy: whenever an operation needs to know whether a process is
// running it asks the OS at that moment (list display labels, terminate
// branch selection). The persisted status column is a state-machine record
// only: heartbeat advances running -> dead, terminate sets terminated, and
// cleanup consults it to pick purge candidates. The two views can disagree
// between a process death and the next heartbeat; that is expected.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agenticscrum/agentmon/internal/archive"
	"github.com/agenticscrum/agentmon/internal/metrics"
	"github.com/agenticscrum/agentmon/internal/probe"
	"github.com/agenticscrum/agentmon/internal/store"
)

const (
	// DefaultGracePeriod is how long Terminate waits between the graceful
	// signal and the liveness re-check.
	DefaultGracePeriod = 2 * time.Second

	// DefaultLogLines is the tail length GetLogs returns when the caller
	// does not ask for a specific count.
	DefaultLogLines = 100

	// DefaultWindowMinutes is the trailing aggregation window for
	// GetMetrics when the caller passes zero.
	DefaultWindowMinutes = 60

	reportSampleLimit = 10
	reportEventLimit  = 20
)

// Options configures a Monitor. Zero values fall back to defaults.
type Options struct {
	LogsDir     string
	GracePeriod time.Duration
	Logger      *slog.Logger
	Archive     archive.Sink // optional event archive fan-out
}

// Monitor owns the session registry. It assumes exclusive ownership of its
// store; running two monitors against one store file is unsupported.
type Monitor struct {
	store   store.Store
	logsDir string
	grace   time.Duration
	logger  *slog.Logger
	archive archive.Sink
}

// New constructs a Monitor over an already-opened store. The caller retains
// responsibility for EnsureSchema and for closing via Close.
func New(st store.Store, opts Options) *Monitor {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:   st,
		logsDir: opts.LogsDir,
		grace:   grace,
		logger:  logger,
		archive: opts.Archive,
	}
}

// Close releases the store and archive sink.
func (m *Monitor) Close() error {
	var errs []error
	if m.archive != nil {
		if err := m.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Register creates a session for an already-spawned process. The pid is
// sampled immediately, best-effort: a process we cannot inspect still
// registers, with zero metric columns. A reused session id is rejected with
// store.ErrDuplicateSession; callers generate fresh ids per attempt.
func (m *Monitor) Register(ctx context.Context, pid int, agentType, storyID, sessionID string) (RegisterResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return RegisterResult{}, fmt.Errorf("empty session id")
	}
	now := time.Now().UTC()
	sample, ok := probe.Sample(pid)
	if !ok {
		m.logger.Debug("initial sample unavailable", "session", sessionID, "pid", pid)
	}

	rec := store.AgentRecord{
		SessionID:     sessionID,
		PID:           pid,
		AgentType:     agentType,
		StoryID:       storyID,
		StartedAt:     now,
		LastHeartbeat: now,
		Status:        store.StatusRunning,
		CPUPercent:    sample.CPUPercent,
		MemoryMB:      sample.MemoryMB,
		NumFDs:        sample.NumFDs,
	}
	ev := store.Event{
		SessionID: sessionID,
		Timestamp: now,
		Type:      store.EventRegistered,
		Message:   fmt.Sprintf("agent %s registered with pid %d for %s", agentType, pid, storyID),
	}
	if err := m.store.RegisterAgent(ctx, rec, ev); err != nil {
		return RegisterResult{}, err
	}
	m.archiveEvent(ctx, ev)
	metrics.IncRegistered(agentType)
	m.logger.Info("agent registered", "session", sessionID, "pid", pid, "type", agentType, "story", storyID)
	return RegisterResult{
		SessionID: sessionID,
		PID:       pid,
		Sampled:   ok,
		Metrics:   sample,
		StartedAt: now,
	}, nil
}

// Heartbeat samples the session's process and records the result. This is
// the only transition from running to dead: a failed sample marks the row
// dead without touching its metric columns and appends no sample row.
func (m *Monitor) Heartbeat(ctx context.Context, sessionID string) (HeartbeatResult, error) {
	rec, err := m.store.GetAgent(ctx, sessionID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	now := time.Now().UTC()

	sample, ok := probe.Sample(rec.PID)
	if !ok {
		if err := m.store.SetStatus(ctx, sessionID, store.StatusDead); err != nil {
			return HeartbeatResult{}, err
		}
		metrics.IncHeartbeat(string(HeartbeatDead))
		m.logger.Debug("heartbeat found process dead", "session", sessionID, "pid", rec.PID)
		return HeartbeatResult{SessionID: sessionID, Status: HeartbeatDead, Timestamp: now}, nil
	}

	err = m.store.RecordHeartbeat(ctx, store.MetricSample{
		SessionID:  sessionID,
		Timestamp:  now,
		CPUPercent: sample.CPUPercent,
		MemoryMB:   sample.MemoryMB,
		NumFDs:     sample.NumFDs,
		IOReads:    sample.IOReads,
		IOWrites:   sample.IOWrites,
	})
	if err != nil {
		return HeartbeatResult{}, err
	}
	metrics.IncHeartbeat(string(HeartbeatAlive))
	metrics.SetAgentGauges(sessionID, rec.AgentType, sample)
	return HeartbeatResult{SessionID: sessionID, Status: HeartbeatAlive, Timestamp: now, Metrics: &sample}, nil
}

// List returns all sessions, most-recently-started first, each cross-checked
// against the live OS process table. includeDead widens the stored-status
// filter; the derived label is always OS-truth.
func (m *Monitor) List(ctx context.Context, includeDead bool) ([]AgentSummary, error) {
	recs, err := m.store.ListAgents(ctx, includeDead)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]AgentSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, m.summarize(rec, now))
	}
	return out, nil
}

func (m *Monitor) summarize(rec store.AgentRecord, now time.Time) AgentSummary {
	status := "dead"
	if probe.Alive(rec.PID) {
		status = "running"
	}
	return AgentSummary{
		SessionID:     rec.SessionID,
		PID:           rec.PID,
		AgentType:     rec.AgentType,
		StoryID:       rec.StoryID,
		Status:        status,
		StoredStatus:  rec.Status,
		StartedAt:     rec.StartedAt,
		LastHeartbeat: rec.LastHeartbeat,
		UptimeMinutes: now.Sub(rec.StartedAt).Minutes(),
		CPUPercent:    rec.CPUPercent,
		MemoryMB:      rec.MemoryMB,
		NumFDs:        rec.NumFDs,
	}
}

// GetMetrics returns the session summary, window aggregates over the
// trailing windowMinutes, the newest raw samples and the newest events.
func (m *Monitor) GetMetrics(ctx context.Context, sessionID string, windowMinutes int) (MetricsReport, error) {
	rec, err := m.store.GetAgent(ctx, sessionID)
	if err != nil {
		return MetricsReport{}, err
	}
	if windowMinutes <= 0 {
		windowMinutes = DefaultWindowMinutes
	}
	now := time.Now().UTC()
	cutoff := now.Add(-time.Duration(windowMinutes) * time.Minute)

	window, err := m.store.SamplesSince(ctx, sessionID, cutoff)
	if err != nil {
		return MetricsReport{}, err
	}
	recent, err := m.store.RecentSamples(ctx, sessionID, reportSampleLimit)
	if err != nil {
		return MetricsReport{}, err
	}
	events, err := m.store.RecentEvents(ctx, sessionID, reportEventLimit)
	if err != nil {
		return MetricsReport{}, err
	}

	return MetricsReport{
		Agent:         m.summarize(rec, now),
		WindowMinutes: windowMinutes,
		Stats:         aggregate(window),
		Samples:       recent,
		Events:        events,
	}, nil
}

func aggregate(samples []store.MetricSample) WindowStats {
	var st WindowStats
	if len(samples) == 0 {
		return st
	}
	var sumCPU, sumMem float64
	for _, s := range samples {
		sumCPU += s.CPUPercent
		sumMem += s.MemoryMB
		if s.CPUPercent > st.MaxCPU {
			st.MaxCPU = s.CPUPercent
		}
		if s.MemoryMB > st.MaxMemoryMB {
			st.MaxMemoryMB = s.MemoryMB
		}
	}
	st.SampleCount = len(samples)
	st.AvgCPU = sumCPU / float64(len(samples))
	st.AvgMemoryMB = sumMem / float64(len(samples))
	return st
}

// Terminate stops the session's process if it is still running: graceful
// signal, fixed grace wait, then a forceful kill only when force is set and
// the process survived. The session always ends up terminated with a
// terminated event, so terminating an already-dead session succeeds too.
func (m *Monitor) Terminate(ctx context.Context, sessionID string, force bool) (TerminateResult, error) {
	rec, err := m.store.GetAgent(ctx, sessionID)
	if err != nil {
		return TerminateResult{}, err
	}

	res := TerminateResult{SessionID: sessionID}
	if !probe.Alive(rec.PID) {
		res.Message = fmt.Sprintf("process %d already dead", rec.PID)
	} else {
		// a failed signal means the process vanished in between, which is
		// the outcome we wanted anyway
		if err := probe.SignalTerm(rec.PID); err != nil {
			m.logger.Debug("graceful signal failed", "session", sessionID, "pid", rec.PID, "error", err)
		}
		time.Sleep(m.grace)
		switch {
		case !probe.Alive(rec.PID):
			res.Message = fmt.Sprintf("process %d terminated gracefully", rec.PID)
		case force:
			if err := probe.SignalKill(rec.PID); err != nil {
				m.logger.Debug("kill signal failed", "session", sessionID, "pid", rec.PID, "error", err)
			}
			res.Forced = true
			res.Message = fmt.Sprintf("process %d force killed", rec.PID)
		default:
			res.Message = fmt.Sprintf("process %d still running after graceful signal; retry with force", rec.PID)
		}
	}

	ev := store.Event{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Type:      store.EventTerminated,
		Message:   res.Message,
	}
	if err := m.store.MarkTerminated(ctx, sessionID, ev); err != nil {
		return TerminateResult{}, err
	}
	m.archiveEvent(ctx, ev)
	outcome := "graceful"
	if res.Forced {
		outcome = "forced"
	}
	metrics.IncTerminated(outcome)
	m.logger.Info("agent terminated", "session", sessionID, "pid", rec.PID, "forced", res.Forced)
	return res, nil
}

// GetLogs tails the session's log file from the logs directory. The file is
// written by the supervised process itself; this is a plain read with no
// parsing.
func (m *Monitor) GetLogs(sessionID string, lines int) (LogExcerpt, error) {
	if !safeSessionID(sessionID) {
		return LogExcerpt{}, ErrLogNotFound
	}
	if lines <= 0 {
		lines = DefaultLogLines
	}
	path := filepath.Join(m.logsDir, sessionID+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LogExcerpt{}, fmt.Errorf("%w: %s", ErrLogNotFound, path)
		}
		return LogExcerpt{}, err
	}
	return LogExcerpt{
		SessionID: sessionID,
		Path:      path,
		Lines:     lines,
		Content:   tail(string(data), lines),
	}, nil
}

// CleanupDead purges sessions whose stored status is dead or terminated and
// whose last heartbeat is older than olderThanHours. Zero matches is a
// normal outcome. This is the only deletion path in the system.
func (m *Monitor) CleanupDead(ctx context.Context, olderThanHours float64) (CleanupResult, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(olderThanHours * float64(time.Hour)))
	ids, err := m.store.PurgeDead(ctx, cutoff)
	if err != nil {
		return CleanupResult{}, err
	}
	for _, id := range ids {
		metrics.DropAgentGauges(id)
	}
	metrics.AddPurged(len(ids))
	if len(ids) > 0 {
		m.logger.Info("cleaned up dead sessions", "count", len(ids))
	}
	return CleanupResult{CleanedCount: len(ids), Sessions: ids}, nil
}

// AppendEvent lets supervisors extend a session's audit trail with their
// own event types.
func (m *Monitor) AppendEvent(ctx context.Context, sessionID, eventType, message string) error {
	if _, err := m.store.GetAgent(ctx, sessionID); err != nil {
		return err
	}
	ev := store.Event{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Message:   message,
	}
	if err := m.store.AppendEvent(ctx, ev); err != nil {
		return err
	}
	m.archiveEvent(ctx, ev)
	return nil
}

func (m *Monitor) archiveEvent(ctx context.Context, ev store.Event) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Send(ctx, ev); err != nil {
		m.logger.Warn("event archive failed", "session", ev.SessionID, "type", ev.Type, "error", err)
	}
}

// tail returns the last n lines of s as one blob, preserving the original
// line contents.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// safeSessionID rejects ids that could escape the logs directory when used
// as a filename.
func safeSessionID(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}
