package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwave_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// OpenConnections tracks currently open realtime connections per endpoint
	// (chat|global|call).
	OpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openwave_realtime_open_connections",
			Help: "Number of open realtime connections",
		},
		[]string{"endpoint"},
	)

	// EventsDelivered counts events enqueued for delivery to subscribers.
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwave_realtime_events_delivered_total",
			Help: "Total realtime events enqueued for delivery",
		},
		[]string{"event"},
	)

	// EventsDropped counts events discarded because a subscriber could not keep up.
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openwave_realtime_events_dropped_total",
			Help: "Total realtime events dropped due to backpressure",
		},
	)

	// CallTransitions counts call state machine transitions by resulting status.
	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwave_call_transitions_total",
			Help: "Total call state transitions",
		},
		[]string{"status"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openwave_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
