package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_retry_events_queued_total",
		Help: "Events handed to the retry queue after a failed delivery.",
	})
	eventsRedelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_retry_events_redelivered_total",
		Help: "Events successfully delivered on a redrive.",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_retry_events_dropped_total",
		Help: "Events discarded after exhausting the retry budget.",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_retry_queue_depth",
		Help: "Events currently pending in the retry queue.",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_retry_sweep_duration_seconds",
		Help:    "Wall time of one retry queue sweep.",
		Buckets: prometheus.DefBuckets,
	})
)
