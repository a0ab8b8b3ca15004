package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Namespace: "test",
		Subsystem: "metrics",
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.RecordAccountSelection("standard", "cache")
	c.SetLeasesInFlight(3)
	c.RecordHandshake("success", time.Second)
	c.RecordCompletion("gpt-5", "stream", "success", time.Second)
	c.RecordUpstreamRequest("create_chat", "200", time.Second)
	c.RecordCacheHit("accounts")
	c.RecordImageDownload("downloaded")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected nil collector handler to serve 404, got %d", rec.Code)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Disabled = true
	collector := NewCollector(cfg, nil)

	collector.RecordAccountSelection("standard", "store")

	if got := testutil.ToFloat64(collector.accountMetrics.selectionsTotal.WithLabelValues("standard", "store")); got != 0 {
		t.Errorf("Expected disabled collector to record nothing, got %v", got)
	}
}

func TestCollector_RecordAccountSelection(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	tests := []struct {
		tier   string
		source string
		times  int
	}{
		{tier: "standard", source: "cache", times: 3},
		{tier: "standard", source: "store", times: 1},
		{tier: "elevated", source: "fallback", times: 2},
	}

	for _, tt := range tests {
		t.Run(tt.tier+"_"+tt.source, func(t *testing.T) {
			for i := 0; i < tt.times; i++ {
				collector.RecordAccountSelection(tt.tier, tt.source)
			}
			got := testutil.ToFloat64(collector.accountMetrics.selectionsTotal.WithLabelValues(tt.tier, tt.source))
			if got != float64(tt.times) {
				t.Errorf("Expected %d selections, got %v", tt.times, got)
			}
		})
	}
}

func TestCollector_Gauges(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.SetLeasesInFlight(4)
	collector.SetChannelsOpen(2)
	collector.SetBreakerState("create_chat", 2)

	if got := testutil.ToFloat64(collector.accountMetrics.leasesInFlight); got != 4 {
		t.Errorf("Expected 4 leases in flight, got %v", got)
	}
	if got := testutil.ToFloat64(collector.channelMetrics.open); got != 2 {
		t.Errorf("Expected 2 open channels, got %v", got)
	}
	if got := testutil.ToFloat64(collector.upstreamMetrics.breakerState.WithLabelValues("create_chat")); got != 2 {
		t.Errorf("Expected breaker state 2, got %v", got)
	}
}

func TestCollector_RecordCompletion_CardinalityLimit(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.cardinalityLimiter = NewCardinalityLimiter(1)

	collector.RecordCompletion("gpt-5", "stream", "success", time.Second)
	collector.RecordCompletion("gpt-4o", "stream", "success", time.Second)

	if got := testutil.ToFloat64(collector.completionMetrics.completionsTotal.WithLabelValues("other", "stream", "success")); got != 1 {
		t.Errorf("Expected overflow model to be aggregated as other, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordAttempt("failure")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_metrics_completion_attempts_total") {
		t.Errorf("Expected attempts metric in output:\n%s", rec.Body.String())
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("Expected first two label sets to be allowed")
	}
	if cl.Allow("c") {
		t.Error("Expected third label set to be rejected")
	}
	if !cl.Allow("a") {
		t.Error("Expected existing label set to be allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Expected count 2, got %d", cl.Count())
	}
}
