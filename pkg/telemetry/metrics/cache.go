package metrics

import (
	"github.com/hzcy/chatbetter2api/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks the account mirror and the localized file cache.
//
// Metrics:
//   - cache_hits_total: cache hits by cache name
//   - cache_misses_total: cache misses by cache name
//   - cache_errors_total: failing backend calls by cache name
//   - cache_entries: current number of entries in cache
//   - image_downloads_total: localized image downloads by result
type CacheMetrics struct {
	hitsTotal           *prometheus.CounterVec
	missesTotal         *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	entries             *prometheus.GaugeVec
	imageDownloadsTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),

		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_errors_total",
				Help:      "Total number of failing cache backend calls",
			},
			[]string{"cache"},
		),

		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_entries",
				Help:      "Current number of entries in cache",
			},
			[]string{"cache"},
		),

		imageDownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "image_downloads_total",
				Help:      "Total number of localized image lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
		cm.errorsTotal,
		cm.entries,
		cm.imageDownloadsTotal,
	)

	return cm
}

// RecordHit records a cache hit.
//
// Example:
//
//	cm.RecordHit("accounts")
func (cm *CacheMetrics) RecordHit(cacheName string) {
	cm.hitsTotal.WithLabelValues(cacheName).Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss(cacheName string) {
	cm.missesTotal.WithLabelValues(cacheName).Inc()
}

// RecordError records a failing backend call.
func (cm *CacheMetrics) RecordError(cacheName string) {
	cm.errorsTotal.WithLabelValues(cacheName).Inc()
}

// UpdateSize updates the current size of a cache.
//
// Example:
//
//	cm.UpdateSize("accounts", 42)
func (cm *CacheMetrics) UpdateSize(cacheName string, size int) {
	cm.entries.WithLabelValues(cacheName).Set(float64(size))
}
