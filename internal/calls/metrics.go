package calls

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "soapbox",
		Subsystem: "calls",
		Name:      "created_total",
		Help:      "Calls queued.",
	})

	callStateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soapbox",
		Subsystem: "calls",
		Name:      "state_transitions_total",
		Help:      "Call state transitions, by new state.",
	}, []string{"state"})

	callDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "soapbox",
		Subsystem: "calls",
		Name:      "duration_seconds",
		Help:      "Duration of ended calls.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	numberCheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soapbox",
		Subsystem: "numbers",
		Name:      "checkouts_total",
		Help:      "Number pool check-outs, by result (ok, unavailable).",
	}, []string{"result"})

	resultsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soapbox",
		Subsystem: "results",
		Name:      "recorded_total",
		Help:      "Results recorded, by outcome.",
	}, []string{"outcome"})
)
