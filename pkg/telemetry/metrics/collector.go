package metrics

import (
	"sync"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric of the proxy. All methods are safe
// to call on a nil *Collector, which records nothing; components take an
// optional collector without guarding each call.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	accountMetrics    *AccountMetrics
	channelMetrics    *ChannelMetrics
	completionMetrics *CompletionMetrics
	upstreamMetrics   *UpstreamMetrics
	cacheMetrics      *CacheMetrics
	jobMetrics        *JobMetrics

	// Cardinality tracking for the model label
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is used.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Namespace: "chatbetter2api",
//		Subsystem: "proxy",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(200),
	}

	c.accountMetrics = NewAccountMetrics(cfg, registry)
	c.channelMetrics = NewChannelMetrics(cfg, registry)
	c.completionMetrics = NewCompletionMetrics(cfg, registry)
	c.upstreamMetrics = NewUpstreamMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)
	c.jobMetrics = NewJobMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && !c.config.Disabled
}

// RecordAccountSelection records a successful selection.
//
// Parameters:
//   - tier: requested tier ("standard", "elevated")
//   - source: where the account came from ("cache", "store", "fallback")
func (c *Collector) RecordAccountSelection(tier, source string) {
	if !c.enabled() {
		return
	}
	c.accountMetrics.selectionsTotal.WithLabelValues(tier, source).Inc()
}

// RecordAccountSelectionFailure records a selection that found no account.
func (c *Collector) RecordAccountSelectionFailure(tier string) {
	if !c.enabled() {
		return
	}
	c.accountMetrics.selectionFailuresTotal.WithLabelValues(tier).Inc()
}

// SetLeasesInFlight updates the number of unreleased leases.
func (c *Collector) SetLeasesInFlight(n int64) {
	if !c.enabled() {
		return
	}
	c.accountMetrics.leasesInFlight.Set(float64(n))
}

// RecordCredentialRefresh records a credential refresh outcome
// ("success", "failure").
func (c *Collector) RecordCredentialRefresh(result string) {
	if !c.enabled() {
		return
	}
	c.accountMetrics.refreshesTotal.WithLabelValues(result).Inc()
}

// RecordJobRun records one background job run ("success", "failure").
func (c *Collector) RecordJobRun(job, result string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.jobMetrics.runsTotal.WithLabelValues(job, result).Inc()
	c.jobMetrics.duration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordCounterReset records how many counters the daily reset cleared.
func (c *Collector) RecordCounterReset(n int64) {
	if !c.enabled() {
		return
	}
	c.accountMetrics.countersResetTotal.Add(float64(n))
}

// SetChannelsOpen updates the number of live channels.
func (c *Collector) SetChannelsOpen(n int) {
	if !c.enabled() {
		return
	}
	c.channelMetrics.open.Set(float64(n))
}

// RecordHandshake records a channel handshake outcome ("success", "failure").
func (c *Collector) RecordHandshake(result string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.channelMetrics.handshakesTotal.WithLabelValues(result).Inc()
	c.channelMetrics.handshakeDuration.Observe(duration.Seconds())
}

// RecordFrame records an inbound frame by kind.
func (c *Collector) RecordFrame(kind string) {
	if !c.enabled() {
		return
	}
	c.channelMetrics.framesTotal.WithLabelValues(kind).Inc()
}

// RecordChannelClosed records a channel teardown by reason
// ("returned", "transport").
func (c *Collector) RecordChannelClosed(reason string) {
	if !c.enabled() {
		return
	}
	c.channelMetrics.closuresTotal.WithLabelValues(reason).Inc()
}

// RecordCompletion records a finished client request.
//
// Parameters:
//   - model: requested model
//   - mode: "stream" or "buffered"
//   - status: "success" or an error class
//   - duration: total request duration
func (c *Collector) RecordCompletion(model, mode, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow(model) {
		model = "other"
	}
	c.completionMetrics.completionsTotal.WithLabelValues(model, mode, status).Inc()
	c.completionMetrics.duration.WithLabelValues(model, mode).Observe(duration.Seconds())
}

// RecordAttempt records the outcome of one establishment attempt
// ("success", "failure").
func (c *Collector) RecordAttempt(result string) {
	if !c.enabled() {
		return
	}
	c.completionMetrics.attemptsTotal.WithLabelValues(result).Inc()
}

// RecordPromptTokens records the estimated prompt size.
func (c *Collector) RecordPromptTokens(tokens int) {
	if !c.enabled() {
		return
	}
	c.completionMetrics.promptTokens.Observe(float64(tokens))
}

// RecordUpstreamRequest records an upstream HTTP call.
//
// Parameters:
//   - endpoint: logical endpoint ("create_chat", "patch_chat", "silent_refresh", ...)
//   - status: HTTP status code as string, or "error" for transport failures
//   - duration: call latency
func (c *Collector) RecordUpstreamRequest(endpoint, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.upstreamMetrics.requestsTotal.WithLabelValues(endpoint, status).Inc()
	c.upstreamMetrics.duration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetBreakerState records a circuit breaker state (0 closed, 1 half-open, 2 open).
func (c *Collector) SetBreakerState(name string, state int) {
	if !c.enabled() {
		return
	}
	c.upstreamMetrics.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCacheHit records a cache hit for the named cache.
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss for the named cache.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// RecordCacheError records a failing cache backend call.
func (c *Collector) RecordCacheError(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordError(cacheName)
}

// UpdateCacheSize updates the current size of a cache.
func (c *Collector) UpdateCacheSize(cacheName string, size int) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.UpdateSize(cacheName, size)
}

// RecordImageDownload records a localized image download
// ("downloaded", "cached", "failed").
func (c *Collector) RecordImageDownload(result string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.imageDownloadsTotal.WithLabelValues(result).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
