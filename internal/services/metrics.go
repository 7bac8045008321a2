package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
	WebSocketMessages    *prometheus.CounterVec

	// Chat metrics
	ChatRequests       prometheus.Counter
	ChatRequestLatency prometheus.Histogram
	ChatErrors         *prometheus.CounterVec

	// Extraction metrics
	PagesExtracted  *prometheus.CounterVec
	Truncations     *prometheus.CounterVec
	ManualCacheHits *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// WebSocket active connections (gauge - can go up and down)
		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voltdesk_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		// WebSocket messages by type (counter - only goes up)
		WebSocketMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voltdesk_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		}, []string{"type", "direction"}), // direction: "inbound" or "outbound"

		// Chat requests counter
		ChatRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voltdesk_chat_requests_total",
			Help: "Total number of chat requests processed",
		}),

		// Chat request latency histogram
		ChatRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voltdesk_chat_request_duration_seconds",
			Help:    "Chat request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM responses
		}),

		// Chat errors by type
		ChatErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voltdesk_chat_errors_total",
			Help: "Total number of chat errors by type",
		}, []string{"error_type"}),

		// Pages extracted by method ("text" or "ocr")
		PagesExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voltdesk_pages_extracted_total",
			Help: "Total number of manual pages extracted by method",
		}, []string{"method"}),

		// Extraction truncations by reason ("time" or "size")
		Truncations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voltdesk_extraction_truncations_total",
			Help: "Total number of extractions truncated by budget",
		}, []string{"reason"}),

		// Manual cache outcomes ("hit" or "miss")
		ManualCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voltdesk_manual_cache_total",
			Help: "Total manual cache lookups by outcome",
		}, []string{"outcome"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.WebSocketMessages.WithLabelValues(msgType, direction).Inc()
}

// RecordChatRequest records a chat request
func (m *Metrics) RecordChatRequest() {
	m.ChatRequests.Inc()
}

// RecordChatLatency records chat request latency
func (m *Metrics) RecordChatLatency(seconds float64) {
	m.ChatRequestLatency.Observe(seconds)
}

// RecordChatError records a chat error
func (m *Metrics) RecordChatError(errorType string) {
	m.ChatErrors.WithLabelValues(errorType).Inc()
}

// RecordPageExtracted records one extracted page by method
func (m *Metrics) RecordPageExtracted(usedOCR bool) {
	method := "text"
	if usedOCR {
		method = "ocr"
	}
	m.PagesExtracted.WithLabelValues(method).Inc()
}

// RecordTruncation records a budget-truncated extraction
func (m *Metrics) RecordTruncation(reason string) {
	m.Truncations.WithLabelValues(reason).Inc()
}

// RecordManualCache records a manual cache lookup outcome
func (m *Metrics) RecordManualCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.ManualCacheHits.WithLabelValues(outcome).Inc()
}
