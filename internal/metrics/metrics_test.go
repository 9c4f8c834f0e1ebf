package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegisterOnSeparateRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_causalcache_requests_total", Help: "test"},
		[]string{"method", "path", "status"},
	)
	gauge := prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "test_causalcache_store_size", Help: "test"},
	)

	if err := registry.Register(counter); err != nil {
		t.Fatalf("failed to register counter: %v", err)
	}
	if err := registry.Register(gauge); err != nil {
		t.Fatalf("failed to register gauge: %v", err)
	}

	counter.WithLabelValues("GET", "/get", "200").Inc()
	gauge.Set(42)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if len(families) != 2 {
		t.Errorf("expected 2 metric families, got %d", len(families))
	}
}

func TestHTTPMetrics(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/get", "200").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/get", "200").Observe(0.01)
	HTTPRequestsInFlight.Inc()
	HTTPRequestsInFlight.Dec()
}

func TestStoreSizeGauges(t *testing.T) {
	UnmergedStoreSize.Set(10)
	CausalCutStoreSize.Set(7)
	InPreparationSize.Set(2)
	VersionStoreSize.Set(3)
}

func TestDependencyResolutionCounters(t *testing.T) {
	DependencyGetTotal.Inc()
	DependencyRegetTotal.Inc()
	InPrepAgeSeconds.WithLabelValues("k1").Set(1.5)
}

func TestMigrationAndReportCounters(t *testing.T) {
	MigrationPromotedTotal.Inc()
	KeySetReportTotal.Inc()
}

func TestKVSAndPeerCounters(t *testing.T) {
	KVSOperationsTotal.WithLabelValues("get", "success").Inc()
	KVSOperationsTotal.WithLabelValues("put", "timeout").Inc()
	PeerRequestsTotal.WithLabelValues("outbound", "success").Inc()
}

func TestRateLimitAndBuildMetrics(t *testing.T) {
	RateLimitExceeded.WithLabelValues("ip").Inc()
	RateLimitRequestsTotal.WithLabelValues("ip", "allowed").Inc()
	BuildInfo.WithLabelValues("1.0.0", "abcdef", "go1.24").Set(1)
}
