package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_events_delivered_total",
		Help: "Events accepted by the collector, by kind.",
	}, []string{"kind"})
	eventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_events_rejected_total",
		Help: "Events rejected before delivery for missing configuration.",
	})
)
