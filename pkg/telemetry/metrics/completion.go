package metrics

import (
	"github.com/hzcy/chatbetter2api/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CompletionMetrics tracks client completion requests.
//
// Metrics:
//   - completions_total: requests by model, mode and status
//   - completion_duration_seconds: end-to-end request latency
//   - completion_attempts_total: establishment attempts by result
//   - completion_prompt_tokens: estimated prompt sizes
type CompletionMetrics struct {
	completionsTotal *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	attemptsTotal    *prometheus.CounterVec
	promptTokens     prometheus.Histogram
}

// NewCompletionMetrics creates and registers completion metrics.
func NewCompletionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CompletionMetrics {
	cm := &CompletionMetrics{
		completionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completions_total",
				Help:      "Total number of completion requests",
			},
			[]string{"model", "mode", "status"},
		),

		// Optimized for chat latencies (500ms - 5m)
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completion_duration_seconds",
				Help:      "Completion request duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"model", "mode"},
		),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completion_attempts_total",
				Help:      "Total number of conversation establishment attempts",
			},
			[]string{"result"},
		),

		promptTokens: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completion_prompt_tokens",
				Help:      "Estimated prompt tokens per request",
				Buckets:   []float64{100, 500, 1000, 2000, 4000, 8192, 16000, 32000, 128000},
			},
		),
	}

	registry.MustRegister(
		cm.completionsTotal,
		cm.duration,
		cm.attemptsTotal,
		cm.promptTokens,
	)

	return cm
}
