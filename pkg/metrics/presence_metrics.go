package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Presence metrics for heartbeat and typing traffic
var (
	PresenceHeartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_heartbeats_total",
		Help: "Total number of presence heartbeats written",
	}, []string{"state"}) // "active", "inactive"

	PresenceWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_write_failures_total",
		Help: "Total number of swallowed presence write failures",
	})

	TypingWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_typing_writes_total",
		Help: "Total number of typing marker writes",
	})

	EventClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_ws_clients_active",
		Help: "Number of connected websocket event clients",
	})

	// HTTP metrics recorded by the gateway middleware
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
)
