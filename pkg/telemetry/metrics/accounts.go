package metrics

import (
	"github.com/hzcy/chatbetter2api/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AccountMetrics tracks account pool activity.
//
// Metrics:
//   - account_selections_total: selections by tier and source
//   - account_selection_failures_total: selections with no account available
//   - account_leases_in_flight: leases not yet released
//   - credential_refreshes_total: refresh outcomes
//   - account_counters_reset_total: counters cleared by the daily reset
type AccountMetrics struct {
	selectionsTotal        *prometheus.CounterVec
	selectionFailuresTotal *prometheus.CounterVec
	leasesInFlight         prometheus.Gauge
	refreshesTotal         *prometheus.CounterVec
	countersResetTotal     prometheus.Counter
}

// NewAccountMetrics creates and registers account metrics.
func NewAccountMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AccountMetrics {
	am := &AccountMetrics{
		selectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "account_selections_total",
				Help:      "Total number of account selections",
			},
			[]string{"tier", "source"},
		),

		selectionFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "account_selection_failures_total",
				Help:      "Total number of selections that found no available account",
			},
			[]string{"tier"},
		),

		leasesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "account_leases_in_flight",
				Help:      "Number of account leases not yet released",
			},
		),

		refreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "credential_refreshes_total",
				Help:      "Total number of credential refreshes by result",
			},
			[]string{"result"},
		),

		countersResetTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "account_counters_reset_total",
				Help:      "Total number of usage counters cleared by the daily reset",
			},
		),
	}

	registry.MustRegister(
		am.selectionsTotal,
		am.selectionFailuresTotal,
		am.leasesInFlight,
		am.refreshesTotal,
		am.countersResetTotal,
	)

	return am
}
