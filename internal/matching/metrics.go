package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchRunsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safebirth",
			Subsystem: "matching",
			Name:      "runs_total",
			Help:      "Total matching runs, by request type and outcome.",
		},
		[]string{"request_type", "outcome"}, // outcome: matched, no_volunteers, error
	)

	alertsSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safebirth",
			Subsystem: "matching",
			Name:      "alerts_total",
			Help:      "Volunteer alerts attempted, by result.",
		},
		[]string{"result"}, // result: sent, no_transport, failed
	)

	matchedVolunteersHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "safebirth",
			Subsystem: "matching",
			Name:      "volunteers_per_request",
			Help:      "Number of volunteers selected per help request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
)
