// Package agentmon supervises background AI-agent processes: it tracks
// registered sessions in a local database, records heartbeat metrics,
// answers liveness queries and performs termination and cleanup.
package agentmon

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agenticscrum/agentmon/internal/archive"
	cfg "github.com/agenticscrum/agentmon/internal/config"
	"github.com/agenticscrum/agentmon/internal/metrics"
	"github.com/agenticscrum/agentmon/internal/monitor"
	iapi "github.com/agenticscrum/agentmon/internal/server"
	"github.com/agenticscrum/agentmon/internal/store"
	"github.com/agenticscrum/agentmon/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Store = store.Store

type AgentRecord = store.AgentRecord

type MetricSample = store.MetricSample

type Event = store.Event

type RegisterResult = monitor.RegisterResult

type HeartbeatResult = monitor.HeartbeatResult

type AgentSummary = monitor.AgentSummary

type MetricsReport = monitor.MetricsReport

type TerminateResult = monitor.TerminateResult

type LogExcerpt = monitor.LogExcerpt

type CleanupResult = monitor.CleanupResult

type Config = cfg.Config

var (
	ErrSessionNotFound  = store.ErrSessionNotFound
	ErrDuplicateSession = store.ErrDuplicateSession
	ErrLogNotFound      = monitor.ErrLogNotFound
)

// Monitor is a thin facade over internal/monitor.Monitor providing a stable
// public API for embedding.
type Monitor struct{ inner *monitor.Monitor }

// Options configures an embedded Monitor.
type Options struct {
	LogsDir     string
	GracePeriod time.Duration
	Logger      *slog.Logger
	ArchiveDSN  string // optional event-archive destination
}

// NewStore opens a store from a DSN (sqlite path or postgres:// URL).
// The caller is responsible for EnsureSchema and Close; Open does both.
func NewStore(dsn string) (Store, error) { return factory.NewFromDSN(dsn) }

// Open builds a ready Monitor: store from dsn, schema ensured, archive sink
// attached when configured. Close releases everything.
func Open(ctx context.Context, dsn string, opts Options) (*Monitor, error) {
	st, err := factory.NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return New(st, opts)
}

// New wraps an already-opened store.
func New(st Store, opts Options) (*Monitor, error) {
	var sink archive.Sink
	if opts.ArchiveDSN != "" {
		s, err := archive.NewFromDSN(opts.ArchiveDSN)
		if err != nil {
			return nil, err
		}
		sink = s
	}
	inner := monitor.New(st, monitor.Options{
		LogsDir:     opts.LogsDir,
		GracePeriod: opts.GracePeriod,
		Logger:      opts.Logger,
		Archive:     sink,
	})
	return &Monitor{inner: inner}, nil
}

func (m *Monitor) Register(ctx context.Context, pid int, agentType, storyID, sessionID string) (RegisterResult, error) {
	return m.inner.Register(ctx, pid, agentType, storyID, sessionID)
}

func (m *Monitor) Heartbeat(ctx context.Context, sessionID string) (HeartbeatResult, error) {
	return m.inner.Heartbeat(ctx, sessionID)
}

func (m *Monitor) List(ctx context.Context, includeDead bool) ([]AgentSummary, error) {
	return m.inner.List(ctx, includeDead)
}

func (m *Monitor) GetMetrics(ctx context.Context, sessionID string, windowMinutes int) (MetricsReport, error) {
	return m.inner.GetMetrics(ctx, sessionID, windowMinutes)
}

func (m *Monitor) Terminate(ctx context.Context, sessionID string, force bool) (TerminateResult, error) {
	return m.inner.Terminate(ctx, sessionID, force)
}

func (m *Monitor) GetLogs(sessionID string, lines int) (LogExcerpt, error) {
	return m.inner.GetLogs(sessionID, lines)
}

func (m *Monitor) CleanupDead(ctx context.Context, olderThanHours float64) (CleanupResult, error) {
	return m.inner.CleanupDead(ctx, olderThanHours)
}

func (m *Monitor) AppendEvent(ctx context.Context, sessionID, eventType, message string) error {
	return m.inner.AppendEvent(ctx, sessionID, eventType, message)
}

func (m *Monitor) Close() error { return m.inner.Close() }

// LoadConfig reads the daemon TOML configuration from path.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// Handler returns the HTTP API as an http.Handler for mounting inside any
// server or mux.
func Handler(m *Monitor, basePath string, promMetrics bool) http.Handler {
	return iapi.NewRouter(m.inner, basePath, promMetrics).Handler()
}

// NewHTTPServer starts a standalone HTTP server exposing the API.
func NewHTTPServer(addr, basePath string, m *Monitor, promMetrics bool) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(m.inner, basePath, promMetrics))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
