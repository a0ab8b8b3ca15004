// Package metrics provides Prometheus metrics collection for chatbetter2api.
//
// # Overview
//
// The Collector registers every metric on its own registry and exposes a
// recording method per event. All recording methods are nil-safe so that
// components can be constructed without a collector in tests.
//
// # Metrics Categories
//
//   - Account Metrics: selections by tier and source, leases in flight, refreshes
//   - Channel Metrics: open channels, handshakes, inbound frames, closures
//   - Completion Metrics: requests, latency, establishment attempts, prompt size
//   - Upstream Metrics: HTTP calls by endpoint, circuit breaker state
//   - Cache Metrics: mirror hits, misses and errors, image downloads
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordAccountSelection("standard", "cache")
//	collector.RecordCompletion("gpt-5", "stream", "success", 3*time.Second)
//
//	mux.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// The model label is capped by a CardinalityLimiter; values beyond the cap
// are reported as "other".
package metrics
