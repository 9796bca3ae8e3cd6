package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_connections_opened_total",
			Help: "Total merchant socket connections accepted",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Total handshakes rejected with a policy violation",
		},
	)

	OnlineMerchants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_online_merchants",
			Help: "Merchants with a registered live connection",
		},
	)

	// Delivery metrics
	MessagesForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_forwarded_total",
			Help: "Messages pushed onto a work queue",
		},
		[]string{"direction"}, // "consumer" or "merchant"
	)

	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Merchant-bound messages written to an online socket",
		},
	)

	MessagesQueuedOffline = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_queued_offline_total",
			Help: "Merchant-bound messages appended to an offline queue",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Messages dropped by the bus listener",
		},
		[]string{"reason"}, // "malformed" or "unknown_recipient"
	)

	OfflineBacklogFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_offline_backlog_flushed_total",
			Help: "Buffered messages flushed to reconnecting merchants",
		},
	)

	// There is no offline eviction; this gauge is how unbounded growth
	// for departed merchants gets noticed.
	OfflineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_offline_queue_depth",
			Help: "Offline entries appended minus flushed since process start",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
