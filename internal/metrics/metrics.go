package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_bridge_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wecom_bridge_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Inbound message metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_bridge_messages_received_total",
			Help: "Total decrypted inbound messages",
		},
		[]string{"msg_type"},
	)

	SignatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_bridge_signature_failures_total",
			Help: "Total inbound signature verification failures",
		},
	)

	CorpIDMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_bridge_corpid_mismatches_total",
			Help: "Total decrypted envelopes with a foreign corp id",
		},
	)

	ReplaysBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_bridge_replays_blocked_total",
			Help: "Total deliveries dropped by the replay guard",
		},
	)

	// Dispatch metrics
	CommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_bridge_commands_dispatched_total",
			Help: "Total dispatched messages by command kind",
		},
		[]string{"command"},
	)

	// Outbound metrics
	RepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_bridge_replies_sent_total",
			Help: "Total outbound replies by kind",
		},
		[]string{"kind"},
	)

	ChunksSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_bridge_chunks_sent_total",
			Help: "Total outbound message chunks delivered",
		},
	)

	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_bridge_token_refreshes_total",
			Help: "Total access token refreshes",
		},
	)

	TokenRefreshFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_bridge_token_refresh_failures_total",
			Help: "Total failed access token refreshes",
		},
	)

	// Upstream metrics
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wecom_bridge_upstream_latency_seconds",
			Help:    "Upstream call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"target"},
	)
)
