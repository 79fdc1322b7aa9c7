package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bus Metrics
var (
	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nextaccounting",
		Subsystem: "realtime",
		Name:      "subscribers_active",
		Help:      "Current number of subscribers registered on the event bus",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nextaccounting",
		Subsystem: "realtime",
		Name:      "events_published_total",
		Help:      "Total number of events handed to the event bus",
	}, []string{"type"})

	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nextaccounting",
		Subsystem: "realtime",
		Name:      "deliveries_total",
		Help:      "Total number of successful per-subscriber deliveries",
	})

	SinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nextaccounting",
		Subsystem: "realtime",
		Name:      "sink_failures_total",
		Help:      "Total number of subscribers removed after a failed write",
	})
)

// Session Metrics
var (
	SessionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nextaccounting",
		Subsystem: "realtime",
		Name:      "sessions_open",
		Help:      "Current number of open streaming sessions by transport",
	}, []string{"transport"})

	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nextaccounting",
		Subsystem: "realtime",
		Name:      "heartbeats_sent_total",
		Help:      "Total number of heartbeats written to open sessions",
	})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nextaccounting",
		Subsystem: "realtime",
		Name:      "session_duration_seconds",
		Help:      "Lifetime of streaming sessions",
		Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
	})
)
