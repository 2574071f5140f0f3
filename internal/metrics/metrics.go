package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dobro_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_ai_requests_total",
			Help: "Total relay requests by endpoint",
		},
		[]string{"endpoint"}, // chat, lisa-stylist, colortype-analyzer, virtual-tryon
	)

	TopicsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dobro_topics_created_total",
			Help: "Total conversation topics created",
		},
	)

	TopicMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_topic_messages_total",
			Help: "Total messages persisted to topics",
		},
		[]string{"role"},
	)

	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_quota_rejections_total",
			Help: "Requests rejected because a tenant quota was exhausted",
		},
		[]string{"kind"},
	)

	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dobro_escalations_total",
			Help: "Topics escalated to a human expert",
		},
	)

	// Gateway metrics
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_gateway_requests_total",
			Help: "Upstream AI gateway calls by outcome",
		},
		[]string{"mode", "outcome"}, // mode: stream|complete, outcome: ok|rate_limited|payment_required|error
	)

	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dobro_gateway_latency_seconds",
			Help:    "Time until the AI gateway responded with headers",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dobro_persistence_failures_total",
			Help: "Best-effort writes that failed and were dropped",
		},
		[]string{"op"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dobro_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DBLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dobro_db_latency_seconds",
			Help:    "Database query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"driver"},
	)
)
