package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenticscrum/agentmon/internal/probe"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmon",
			Subsystem: "monitor",
			Name:      "registrations_total",
			Help:      "Number of agent sessions registered.",
		}, []string{"agent_type"},
	)
	heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmon",
			Subsystem: "monitor",
			Name:      "heartbeats_total",
			Help:      "Number of heartbeat calls by outcome (alive or dead).",
		}, []string{"result"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentmon",
			Subsystem: "monitor",
			Name:      "terminations_total",
			Help:      "Number of terminate calls by outcome.",
		}, []string{"outcome"},
	)
	sessionsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentmon",
			Subsystem: "monitor",
			Name:      "sessions_purged_total",
			Help:      "Number of sessions removed by cleanup.",
		},
	)
	agentCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentmon",
			Subsystem: "agent",
			Name:      "cpu_percent",
			Help:      "Last heartbeat CPU usage percentage per session.",
		}, []string{"session_id", "agent_type"},
	)
	agentMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentmon",
			Subsystem: "agent",
			Name:      "memory_mb",
			Help:      "Last heartbeat RSS memory in MB per session.",
		}, []string{"session_id", "agent_type"},
	)
	agentNumFDs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentmon",
			Subsystem: "agent",
			Name:      "num_fds",
			Help:      "Last heartbeat open file descriptor count per session.",
		}, []string{"session_id", "agent_type"},
	)
)

// Register registers all collectors with the provided registerer.
// Safe to call multiple times; calls after a success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		registrations, heartbeats, terminations, sessionsPurged,
		agentCPUPercent, agentMemoryMB, agentNumFDs,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving the default Prometheus gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncRegistered(agentType string) { registrations.WithLabelValues(agentType).Inc() }

func IncHeartbeat(result string) { heartbeats.WithLabelValues(result).Inc() }

func IncTerminated(outcome string) { terminations.WithLabelValues(outcome).Inc() }

func AddPurged(n int) { sessionsPurged.Add(float64(n)) }

// SetAgentGauges records a session's latest sampled metrics.
func SetAgentGauges(sessionID, agentType string, m probe.Metrics) {
	agentCPUPercent.WithLabelValues(sessionID, agentType).Set(m.CPUPercent)
	agentMemoryMB.WithLabelValues(sessionID, agentType).Set(m.MemoryMB)
	agentNumFDs.WithLabelValues(sessionID, agentType).Set(float64(m.NumFDs))
}

// DropAgentGauges removes a purged session's series.
func DropAgentGauges(sessionID string) {
	match := prometheus.Labels{"session_id": sessionID}
	agentCPUPercent.DeletePartialMatch(match)
	agentMemoryMB.DeletePartialMatch(match)
	agentNumFDs.DeletePartialMatch(match)
}
