package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.HistogramVec

	// WebSocket metrics
	WebSocketConnections prometheus.GaugeVec
	WebSocketMessages    prometheus.CounterVec

	// Realtime subscription metrics
	RealtimeStatusTransitions prometheus.CounterVec
	RealtimeRetriesTotal      prometheus.CounterVec
	RealtimeGiveUpsTotal      prometheus.CounterVec
	RealtimeEventsForwarded   prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec

	// Listing lifecycle metrics
	ListingsCreatedTotal  prometheus.CounterVec
	ReservationsTotal     prometheus.CounterVec
	ChatMessagesSentTotal prometheus.CounterVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),

			// WebSocket metrics
			WebSocketConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "websocket_connections",
					Help: "Number of currently connected WebSocket clients",
				},
				[]string{"endpoint"},
			),
			WebSocketMessages: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "websocket_messages_total",
					Help: "Total number of WebSocket messages by direction",
				},
				[]string{"direction", "type"},
			),

			// Realtime subscription metrics
			RealtimeStatusTransitions: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_status_transitions_total",
					Help: "Total realtime channel status transitions",
				},
				[]string{"channel", "status"},
			),
			RealtimeRetriesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_retries_total",
					Help: "Total realtime channel retry attempts",
				},
				[]string{"channel"},
			),
			RealtimeGiveUpsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_give_ups_total",
					Help: "Total times the realtime manager exhausted its retries",
				},
				[]string{"channel"},
			),
			RealtimeEventsForwarded: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_events_forwarded_total",
					Help: "Total change events forwarded to WebSocket clients",
				},
				[]string{"table", "event_type"},
			),

			// Cache metrics
			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),

			// Listing lifecycle metrics
			ListingsCreatedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "listings_created_total",
					Help: "Total number of listings created",
				},
				[]string{"category"},
			),
			ReservationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reservations_total",
					Help: "Total reservation flow transitions",
				},
				[]string{"action"},
			),
			ChatMessagesSentTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_messages_sent_total",
					Help: "Total number of chat messages sent",
				},
				[]string{"origin"},
			),

			// Error metrics
			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
