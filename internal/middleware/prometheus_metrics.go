package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/metrics"
	"go.uber.org/zap"
)

// MetricsMiddleware collects HTTP metrics for Prometheus
func MetricsMiddleware() gin.HandlerFunc {
	m := metrics.Get()

	return func(c *gin.Context) {
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		// Record start time
		startTime := time.Now()

		// Process request
		c.Next()

		// Record metrics
		duration := time.Since(startTime).Seconds()
		status := c.Writer.Status()
		// Use numeric status code as string (e.g., "200", "500") for Prometheus label
		// This allows Grafana queries like status=~"5.." to match 5xx errors
		statusStr := strconv.Itoa(status)

		m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration)

		logger.Log.Debug("HTTP request recorded",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Float64("duration_sec", duration),
		)
	}
}

// Cache metrics recorders
func RecordCacheHit(cacheName string) {
	m := metrics.Get()
	m.CacheHitsTotal.WithLabelValues(cacheName).Inc()
}

func RecordCacheMiss(cacheName string) {
	m := metrics.Get()
	m.CacheMissesTotal.WithLabelValues(cacheName).Inc()
}

// WebSocket metrics recorders
func RecordWebSocketConnect(endpoint string) {
	m := metrics.Get()
	m.WebSocketConnections.WithLabelValues(endpoint).Inc()
}

func RecordWebSocketDisconnect(endpoint string) {
	m := metrics.Get()
	m.WebSocketConnections.WithLabelValues(endpoint).Dec()
}

func RecordWebSocketMessage(direction, msgType string) {
	m := metrics.Get()
	m.WebSocketMessages.WithLabelValues(direction, msgType).Inc()
}

// Realtime subscription metrics recorders
func RecordRealtimeStatus(channel, status string) {
	m := metrics.Get()
	m.RealtimeStatusTransitions.WithLabelValues(channel, status).Inc()
}

func RecordRealtimeRetry(channel string) {
	m := metrics.Get()
	m.RealtimeRetriesTotal.WithLabelValues(channel).Inc()
}

func RecordRealtimeGiveUp(channel string) {
	m := metrics.Get()
	m.RealtimeGiveUpsTotal.WithLabelValues(channel).Inc()
}

func RecordRealtimeEvent(table, eventType string) {
	m := metrics.Get()
	m.RealtimeEventsForwarded.WithLabelValues(table, eventType).Inc()
}

// Listing lifecycle metrics recorders
func RecordListingCreated(category string) {
	m := metrics.Get()
	m.ListingsCreatedTotal.WithLabelValues(category).Inc()
}

func RecordReservation(action string) {
	m := metrics.Get()
	m.ReservationsTotal.WithLabelValues(action).Inc()
}

func RecordChatMessageSent(origin string) {
	m := metrics.Get()
	m.ChatMessagesSentTotal.WithLabelValues(origin).Inc()
}

// RecordError records errors by type and endpoint
func RecordError(errorType, endpoint string) {
	m := metrics.Get()
	m.ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
