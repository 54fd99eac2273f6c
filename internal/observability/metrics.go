package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "signal",
			Name:      "connections",
			Help:      "Open signaling connections by role.",
		},
		[]string{"role"},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "signal",
			Name:      "events_total",
			Help:      "Inbound envelopes by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "calls",
			Name:      "transitions_total",
			Help:      "Call state machine transitions.",
		},
		[]string{"transition"},
	)
	droppedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "router",
			Name:      "dropped_frames_total",
			Help:      "Outbound frames that could not be queued.",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, connections, events, calls, droppedFrames)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func ConnectionOpened(role string) {
	RegisterMetrics()
	connections.WithLabelValues(role).Inc()
}

func ConnectionClosed(role string) {
	RegisterMetrics()
	connections.WithLabelValues(role).Dec()
}

func RecordEvent(kind, outcome string) {
	RegisterMetrics()
	events.WithLabelValues(kind, outcome).Inc()
}

func RecordCall(transition string) {
	RegisterMetrics()
	calls.WithLabelValues(transition).Inc()
}

func RecordDroppedFrame(reason string) {
	RegisterMetrics()
	droppedFrames.WithLabelValues(reason).Inc()
}
