package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_ws_connections",
			Help: "Live websocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_online_users",
			Help: "Users with at least one live connection",
		},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_ws_inbound_events_total",
			Help: "Client events received",
		},
		[]string{"type"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_messages_sent_total",
			Help: "send_message outcomes",
		},
		[]string{"result"}, // "ok", "invalid", "forbidden", "storage_error", "rate_limited"
	)

	EventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_events_delivered_total",
			Help: "Events enqueued to connections",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_events_dropped_total",
			Help: "Events dropped on full send buffers",
		},
	)

	ConnectionsKicked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_connections_kicked_total",
			Help: "Connections closed by the backpressure policy",
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_store_latency_seconds",
			Help:    "Storage operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"op"},
	)
)
