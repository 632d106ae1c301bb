package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Session Negotiation Metrics
	sessionsNegotiatedTotal *prometheus.CounterVec // outcome: created, reused
	sessionFallbacksTotal   prometheus.Counter     // stored session unusable, new one created

	// Call Metrics
	callTransitionsTotal *prometheus.CounterVec // from, to
	callsActive          prometheus.Gauge
	callFailuresTotal    *prometheus.CounterVec // code

	// Conversation Metrics
	conversationsCreatedTotal prometheus.Counter
	conversationsReusedTotal  prometheus.Counter

	// Message Metrics
	messagesSentTotal   *prometheus.CounterVec // status: sent, failed
	pollTicksTotal      *prometheus.CounterVec // outcome: ok, error
	pollMergedTotal     prometheus.Counter
	pollersActive       prometheus.Gauge

	// Push Notification Metrics
	pushNotificationsTotal *prometheus.CounterVec // provider, outcome

	// WebSocket Metrics
	websocketConnections prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		sessionsNegotiatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "sessions_negotiated_total",
				Help:        "Total number of negotiated meeting sessions by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		sessionFallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "session_fallbacks_total",
				Help:        "Stored session descriptors that were unusable and replaced",
				ConstLabels: labels,
			},
		),
		callTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_state_transitions_total",
				Help:        "Total number of call state transitions",
				ConstLabels: labels,
			},
			[]string{"from", "to"},
		),
		callsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of currently active call controllers",
				ConstLabels: labels,
			},
		),
		callFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_failures_total",
				Help:        "Total number of calls ending in the error state",
				ConstLabels: labels,
			},
			[]string{"code"},
		),
		conversationsCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "conversations_created_total",
				Help:        "Total number of conversations created",
				ConstLabels: labels,
			},
		),
		conversationsReusedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "conversations_reused_total",
				Help:        "Total number of get-or-create calls resolved to an existing conversation",
				ConstLabels: labels,
			},
		),
		messagesSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "messages_sent_total",
				Help:        "Total number of message sends by final status",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		pollTicksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "message_poll_ticks_total",
				Help:        "Total number of message poll ticks by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		pollMergedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "message_poll_merged_total",
				Help:        "Total number of new messages merged from poll ticks",
				ConstLabels: labels,
			},
		),
		pollersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "message_pollers_active",
				Help:        "Number of currently running message pollers",
				ConstLabels: labels,
			},
		),
		pushNotificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Total number of push notifications by provider and outcome",
				ConstLabels: labels,
			},
			[]string{"provider", "outcome"},
		),
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request with its outcome
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// HTTPRequestStarted increments the in-flight gauge
func (m *Metrics) HTTPRequestStarted() { m.httpRequestsInFlight.Inc() }

// HTTPRequestFinished decrements the in-flight gauge
func (m *Metrics) HTTPRequestFinished() { m.httpRequestsInFlight.Dec() }

// RecordSessionNegotiated records a negotiated session; outcome is "created" or "reused"
func (m *Metrics) RecordSessionNegotiated(outcome string) {
	m.sessionsNegotiatedTotal.WithLabelValues(outcome).Inc()
}

// RecordSessionFallback records a stored descriptor that had to be replaced
func (m *Metrics) RecordSessionFallback() { m.sessionFallbacksTotal.Inc() }

// RecordCallTransition records a call state transition
func (m *Metrics) RecordCallTransition(from, to string) {
	m.callTransitionsTotal.WithLabelValues(from, to).Inc()
}

// CallStarted increments the active call gauge
func (m *Metrics) CallStarted() { m.callsActive.Inc() }

// CallEnded decrements the active call gauge
func (m *Metrics) CallEnded() { m.callsActive.Dec() }

// RecordCallFailure records a call ending in the error state
func (m *Metrics) RecordCallFailure(code string) {
	m.callFailuresTotal.WithLabelValues(code).Inc()
}

// RecordConversationCreated records a newly created conversation
func (m *Metrics) RecordConversationCreated() { m.conversationsCreatedTotal.Inc() }

// RecordConversationReused records a deduplicated get-or-create hit
func (m *Metrics) RecordConversationReused() { m.conversationsReusedTotal.Inc() }

// RecordMessageSent records a message send outcome ("sent" or "failed")
func (m *Metrics) RecordMessageSent(status string) {
	m.messagesSentTotal.WithLabelValues(status).Inc()
}

// RecordPollTick records a poll tick outcome ("ok" or "error")
func (m *Metrics) RecordPollTick(outcome string) {
	m.pollTicksTotal.WithLabelValues(outcome).Inc()
}

// RecordPollMerged records new messages merged from a poll tick
func (m *Metrics) RecordPollMerged(count int) {
	m.pollMergedTotal.Add(float64(count))
}

// PollerStarted increments the active poller gauge
func (m *Metrics) PollerStarted() { m.pollersActive.Inc() }

// PollerStopped decrements the active poller gauge
func (m *Metrics) PollerStopped() { m.pollersActive.Dec() }

// RecordPushNotification records a push notification outcome
func (m *Metrics) RecordPushNotification(provider, outcome string) {
	m.pushNotificationsTotal.WithLabelValues(provider, outcome).Inc()
}

// WebSocketConnected increments the connection gauge
func (m *Metrics) WebSocketConnected() { m.websocketConnections.Inc() }

// WebSocketDisconnected decrements the connection gauge
func (m *Metrics) WebSocketDisconnected() { m.websocketConnections.Dec() }
