package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call metrics for monitoring the signaling and negotiation lifecycle
var (
	CallsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_started_total",
		Help: "Total number of calls started (offer published)",
	}, []string{"media"}) // "audio", "video"

	CallsAnsweredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_answered_total",
		Help: "Total number of calls answered (answer published)",
	})

	CallsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_rejected_total",
		Help: "Total number of calls rejected while ringing",
	})

	CallsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_ended_total",
		Help: "Total number of calls terminated",
	})

	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_active",
		Help: "Number of call handles currently open on this node",
	})

	CallMediaFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_media_failures_total",
		Help: "Total number of local media acquisition failures",
	})

	CallSignalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_signal_errors_total",
		Help: "Total number of signaling store write/read failures",
	}, []string{"operation"})

	CallCandidatesAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_ice_candidates_applied_total",
		Help: "Total number of remote ICE candidates applied",
	}, []string{"role"})
)
