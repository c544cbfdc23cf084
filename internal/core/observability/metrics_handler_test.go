package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	t.Cleanup(func() { Init(nil, false) })
	SetScenario("cache")

	ObserveHTTP("POST", "/check-coverage", 200, 0.001)
	ObserveStoreQuery(errors.New("boom"), 0.01)
	IncCacheResult("hit")
	IncCoverageResult(true, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`http_requests_total{method="POST",route="/check-coverage",scenario="cache",status="200"} 1`,
		`store_query_duration_seconds_count{outcome="error",scenario="cache"} 1`,
		`cache_results_total{outcome="hit",scenario="cache"} 1`,
		`coverage_results_total{mode="point",result="covered"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics payload missing %q; got:\n%s", want, body)
		}
	}
}

func TestDisabled_RecordsWithoutPanicking(t *testing.T) {
	Init(nil, false)
	ObserveCacheOp("get", nil, 0.001)
	AddCacheHits(2)
	AddCacheMisses(0)
	SetCacheEntries(3)
	IncSharedResolution()
	ObserveDemandScore(4)
	IncLookupEvent("dropped")
}
