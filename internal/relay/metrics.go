package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "safebirth",
			Subsystem: "relay",
			Name:      "sessions",
			Help:      "Currently open relay sessions.",
		},
	)

	pendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "safebirth",
			Subsystem: "relay",
			Name:      "pending_requests",
			Help:      "Send requests awaiting an sms_sent confirmation.",
		},
	)

	stalePendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "safebirth",
			Subsystem: "relay",
			Name:      "stale_pending_requests",
			Help:      "Pending send requests older than the stale threshold at the last check.",
		},
	)

	messagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safebirth",
			Subsystem: "relay",
			Name:      "messages_received_total",
			Help:      "Relay messages received, by type.",
		},
		[]string{"type"}, // type: incoming_sms, sms_sent, ping, unknown, malformed
	)

	confirmationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safebirth",
			Subsystem: "relay",
			Name:      "confirmations_total",
			Help:      "Delivery confirmations received, by status.",
		},
		[]string{"status"},
	)

	sendRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safebirth",
			Subsystem: "relay",
			Name:      "send_requests_total",
			Help:      "Outbound send requests, by outcome.",
		},
		[]string{"outcome"}, // outcome: dispatched, no_session
	)
)
