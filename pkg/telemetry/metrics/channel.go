package metrics

import (
	"github.com/hzcy/chatbetter2api/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ChannelMetrics tracks real-time channels.
//
// Metrics:
//   - channels_open: live channels in the pool
//   - channel_handshakes_total: handshake outcomes
//   - channel_handshake_duration_seconds: dial plus authentication latency
//   - channel_frames_total: inbound frames by kind
//   - channel_closures_total: channel teardowns by reason
type ChannelMetrics struct {
	open              prometheus.Gauge
	handshakesTotal   *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	framesTotal       *prometheus.CounterVec
	closuresTotal     *prometheus.CounterVec
}

// NewChannelMetrics creates and registers channel metrics.
func NewChannelMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ChannelMetrics {
	cm := &ChannelMetrics{
		open: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "channels_open",
				Help:      "Number of live upstream channels",
			},
		),

		handshakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "channel_handshakes_total",
				Help:      "Total number of channel handshakes by result",
			},
			[]string{"result"},
		),

		handshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "channel_handshake_duration_seconds",
				Help:      "Channel dial and authentication latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),

		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "channel_frames_total",
				Help:      "Total number of inbound frames by kind",
			},
			[]string{"kind"},
		),

		closuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "channel_closures_total",
				Help:      "Total number of channel closures by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		cm.open,
		cm.handshakesTotal,
		cm.handshakeDuration,
		cm.framesTotal,
		cm.closuresTotal,
	)

	return cm
}
