// Package metrics holds the Prometheus collectors for the Hamori server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCRequests counts Connect RPCs by procedure and result code ("ok" on success).
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamori_rpc_requests_total",
			Help: "Total number of Connect RPC requests",
		},
		[]string{"procedure", "code"},
	)

	// RPCDuration observes RPC latency.
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hamori_rpc_duration_seconds",
			Help:    "Duration of Connect RPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)

	// ExternalCalls counts calls to external providers by outcome:
	// "ok", "error", "rejected" (circuit open) or "skipped" (no credential).
	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamori_external_calls_total",
			Help: "Total number of external provider calls",
		},
		[]string{"provider", "operation", "outcome"},
	)

	// Fallbacks counts how often a defined fallback replaced a provider result.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamori_fallbacks_total",
			Help: "Total number of fallbacks applied instead of provider results",
		},
		[]string{"kind"}, // "query", "search", "transcription"
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hamori_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// ReadinessEvents counts coordinator lifecycle events.
	ReadinessEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamori_readiness_events_total",
			Help: "Total number of group readiness lifecycle events",
		},
		[]string{"event"}, // "notify", "no_ready_members", "all_ready"
	)

	// ActiveSessions tracks open readiness sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hamori_readiness_sessions_active",
			Help: "Number of open group readiness sessions",
		},
	)

	// PresenceConnections tracks connected peer devices on the presence hub.
	PresenceConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hamori_presence_connections",
			Help: "Number of peer devices connected to the presence hub",
		},
	)
)
