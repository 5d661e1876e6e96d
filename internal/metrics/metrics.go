package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AI service metrics for production monitoring
var (
	// Query metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_queries_total",
			Help: "Total number of queries answered",
		},
		[]string{"mode", "intent"}, // mode: route/react
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insurelens_ai_query_duration_seconds",
			Help:    "End-to-end query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"mode"},
	)

	// Reasoning loop metrics
	ReasoningIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insurelens_ai_reasoning_iterations",
			Help:    "Thought/Action/Observation cycles per reasoning execution",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	ReasoningExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insurelens_ai_reasoning_exhausted_total",
			Help: "Executions that hit the iteration cap before concluding",
		},
	)

	ReasoningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insurelens_ai_reasoning_duration_seconds",
			Help:    "Wall time per reasoning execution",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
	)

	PatternsLearned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_patterns_learned_total",
			Help: "Intent patterns persisted after classifier corrections",
		},
		[]string{"intent"},
	)

	// Tool metrics
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_tool_invocations_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"}, // status: success/validation_error/execution_error/not_found
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insurelens_ai_tool_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"tool"},
	)

	ToolRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_tool_retries_total",
			Help: "Transient tool failures that were retried",
		},
		[]string{"tool"},
	)

	// Premium engine metrics
	PremiumCalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_premium_calculations_total",
			Help: "Total number of premium calculations",
		},
		[]string{"product", "policy_type", "status"},
	)

	RateTableLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_ratetable_loads_total",
			Help: "Rate table workbook load attempts",
		},
		[]string{"product", "status"},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: input/output
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insurelens_ai_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	// Budget metrics
	BudgetTokensUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "insurelens_ai_budget_tokens_used",
			Help: "Tokens consumed per conversation",
		},
		[]string{"conversation_id"},
	)

	BudgetExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_budget_exceeded_total",
			Help: "Total number of budget limit exceeded events",
		},
		[]string{"conversation_id"},
	)

	// Document search metrics
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_search_requests_total",
			Help: "Document index search requests",
		},
		[]string{"status"}, // status: success/error/cache_hit
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_cache_hits_total",
			Help: "Cache lookups that returned a live entry",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_cache_misses_total",
			Help: "Cache lookups that found nothing or an expired entry",
		},
		[]string{"cache"},
	)

	// Session metrics
	SessionTurnsTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insurelens_ai_session_turns_trimmed_total",
			Help: "Conversation turns dropped by the history bound",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "insurelens_ai_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurelens_ai_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insurelens_ai_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insurelens_ai_rate_limited_total",
			Help: "Requests rejected by the per-client rate limit",
		},
	)
)
