package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sageflow_runs_started_total",
			Help: "Total number of goal runs started",
		},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sageflow_run_duration_seconds",
			Help:    "Goal run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RunSuccessRate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sageflow_run_success_rate",
			Help:    "Per-run fraction of tasks whose chosen attempt succeeded",
			Buckets: []float64{0, 0.25, 0.5, 0.75, 0.9, 1},
		},
	)

	// Task metrics
	TasksResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sageflow_tasks_resolved_total",
			Help: "Total number of tasks resolved, by terminal state",
		},
		[]string{"state"},
	)

	TaskAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sageflow_task_attempts",
			Help:    "Number of attempts consumed per task",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	// Attempt metrics
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sageflow_attempts_total",
			Help: "Total number of execution attempts",
		},
		[]string{"provider", "model", "status"},
	)

	// Gateway metrics
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sageflow_gateway_requests_total",
			Help: "Total number of backend gateway invocations",
		},
		[]string{"provider", "status"},
	)

	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sageflow_gateway_latency_seconds",
			Help:    "Backend gateway invocation latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sageflow_breaker_transitions_total",
			Help: "Circuit breaker state transitions per provider",
		},
		[]string{"provider", "to"},
	)

	// Judge metrics
	JudgeVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sageflow_judge_verdicts_total",
			Help: "Total number of verdicts, by strategy that produced them",
		},
		[]string{"strategy", "verdict"},
	)

	JudgeStrategyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sageflow_judge_strategy_failures_total",
			Help: "Judge strategy failures that caused cascade advancement",
		},
		[]string{"strategy"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sageflow_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sageflow_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
)

// RecordAttempt records one executor attempt.
func RecordAttempt(provider, model string, succeeded bool) {
	status := "ok"
	if !succeeded {
		status = "error"
	}
	AttemptsTotal.WithLabelValues(provider, model, status).Inc()
}

// RecordGateway records a gateway invocation.
func RecordGateway(provider, status string, durationSeconds float64) {
	GatewayRequests.WithLabelValues(provider, status).Inc()
	if durationSeconds > 0 {
		GatewayLatency.WithLabelValues(provider).Observe(durationSeconds)
	}
}

// RecordVerdict records a judge verdict attributed to the strategy that fired.
func RecordVerdict(strategy string, accepted bool) {
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	JudgeVerdicts.WithLabelValues(strategy, verdict).Inc()
}

// RecordEmbedding records embedding request metrics.
func RecordEmbedding(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordTask records the terminal state and attempt count for one task.
func RecordTask(state string, attempts int) {
	TasksResolved.WithLabelValues(state).Inc()
	TaskAttempts.Observe(float64(attempts))
}
