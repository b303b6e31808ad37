package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var routedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "safebirth",
		Subsystem: "router",
		Name:      "messages_total",
		Help:      "Inbound messages routed, by destination.",
	},
	[]string{"route"}, // route: handler, conversation, duplicate, error
)
