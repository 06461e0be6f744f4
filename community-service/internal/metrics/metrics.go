package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "community"

var (
	// VendorRequests counts cloud-recording REST calls by operation and result.
	VendorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_vendor_requests_total",
			Help:      "Cloud recording vendor calls by operation and result",
		},
		[]string{"op", "result"},
	)

	VendorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_vendor_request_duration_seconds",
			Help:      "Latency of cloud recording vendor calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	RecordingVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_verifications_total",
			Help:      "Post-start recording verification outcomes",
		},
		[]string{"outcome"},
	)

	BroadcastTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_transitions_total",
			Help:      "Broadcast status transitions by target status",
		},
		[]string{"status"},
	)

	NotificationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_recorded_total",
			Help:      "Notification records written by category",
		},
		[]string{"category"},
	)

	NotificationsExcluded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_excluded_total",
			Help:      "Recipients dropped from fan-out because of a block",
		},
	)

	PushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Push messages by result",
		},
		[]string{"result"},
	)

	ChatMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Private chat messages by result",
		},
		[]string{"result"},
	)

	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_connected_clients",
			Help:      "Currently registered chat connections",
		},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers every collector with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			VendorRequests,
			VendorLatency,
			BreakerState,
			RecordingVerifications,
			BroadcastTransitions,
			NotificationsRecorded,
			NotificationsExcluded,
			PushDeliveries,
			ChatMessages,
			ConnectedClients,
		)
	})
}
