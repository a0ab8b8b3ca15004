package metrics

import (
	"github.com/hzcy/chatbetter2api/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics tracks background job runs.
//
// Metrics:
//   - job_runs_total: runs by job and result
//   - job_duration_seconds: run duration by job
type JobMetrics struct {
	runsTotal *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewJobMetrics creates and registers job metrics.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_runs_total",
				Help:      "Total number of background job runs by result",
			},
			[]string{"job", "result"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_duration_seconds",
				Help:      "Background job run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(jm.runsTotal, jm.duration)
	return jm
}
