package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var scenarioLabel atomic.Value

func init() {
	scenarioLabel.Store("cache")
	Init(nil, false)
}

func SetScenario(s string) {
	if s == "" {
		s = "cache"
	}
	scenarioLabel.Store(s)
}

func getScenario() string {
	if v := scenarioLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "cache"
}

type set struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	storeQuerySeconds          *prometheus.HistogramVec
	cacheResults               *prometheus.CounterVec
	cacheOps                   *prometheus.CounterVec
	cacheOpSeconds             *prometheus.HistogramVec
	cacheLookups               *prometheus.CounterVec
	cacheEvictions             prometheus.Counter
	cacheEntries               prometheus.Gauge
	sharedResolutions          prometheus.Counter
	coverageResults            *prometheus.CounterVec
	demandScore                prometheus.Histogram
	demandCells                prometheus.Gauge
	lookupEvents               *prometheus.CounterVec
}

var cur atomic.Pointer[set]

// Init creates a fresh metric set. When enabled the collectors are
// registered on reg; otherwise they are recorded but never exported.
func Init(reg prometheus.Registerer, enabled bool) {
	s := newSet()
	if enabled && reg != nil {
		reg.MustRegister(
			s.httpRequestsTotal, s.httpRequestDurationSeconds,
			s.storeQuerySeconds,
			s.cacheResults, s.cacheOps, s.cacheOpSeconds, s.cacheLookups,
			s.cacheEvictions, s.cacheEntries, s.sharedResolutions,
			s.coverageResults, s.demandScore, s.demandCells, s.lookupEvents,
		)
	}
	cur.Store(s)
}

func newSet() *set {
	return &set{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status", "scenario"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"method", "route", "status", "scenario"},
		),
		storeQuerySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_query_duration_seconds",
				Help:    "Latency of geospatial store queries in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"outcome", "scenario"},
		),
		cacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_results_total",
				Help: "Response cache results by outcome.",
			},
			[]string{"outcome", "scenario"},
		),
		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_op_total",
				Help: "Cache driver operations by op and result.",
			},
			[]string{"op", "result"},
		),
		cacheOpSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cache_operation_duration_seconds",
				Help:    "Latency of cache driver operations in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"op"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_lookups_total",
				Help: "Cache driver key lookups by result.",
			},
			[]string{"result"},
		),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries removed from the in-process cache by expiry or capacity.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Entries currently held by the in-process cache.",
		}),
		sharedResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coverage_shared_resolutions_total",
			Help: "Requests that joined an in-flight resolution for the same key.",
		}),
		coverageResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverage_results_total",
				Help: "Resolved lookups by result.",
			},
			[]string{"result", "mode"},
		),
		demandScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uncovered_demand_score",
			Help:    "Decayed uncovered-lookup score of a cell, sampled on increment.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		demandCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uncovered_demand_cells",
			Help: "Cells currently tracked for uncovered demand.",
		}),
		lookupEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lookup_events_total",
				Help: "Lookup events handed to the publisher by result.",
			},
			[]string{"result"},
		),
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	m := cur.Load()
	s := getScenario()
	st := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, route, st, s).Inc()
	m.httpRequestDurationSeconds.WithLabelValues(method, route, st, s).Observe(durationSeconds)
}

func ObserveStoreQuery(err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cur.Load().storeQuerySeconds.WithLabelValues(outcome, getScenario()).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	m := cur.Load()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cacheOps.WithLabelValues(op, result).Inc()
	m.cacheOpSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if n > 0 {
		cur.Load().cacheLookups.WithLabelValues("hit").Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		cur.Load().cacheLookups.WithLabelValues("miss").Add(float64(n))
	}
}

func AddCacheEvictions(n int) {
	if n > 0 {
		cur.Load().cacheEvictions.Add(float64(n))
	}
}

func SetCacheEntries(n int) {
	cur.Load().cacheEntries.Set(float64(n))
}

// IncCacheResult records the handler-level outcome (hit, miss, error,
// abandoned or bypass).
func IncCacheResult(outcome string) {
	cur.Load().cacheResults.WithLabelValues(outcome, getScenario()).Inc()
}

func IncSharedResolution() {
	cur.Load().sharedResolutions.Inc()
}

func IncCoverageResult(covered bool, byAddress bool) {
	result := "not_covered"
	if covered {
		result = "covered"
	}
	mode := "point"
	if byAddress {
		mode = "address"
	}
	cur.Load().coverageResults.WithLabelValues(result, mode).Inc()
}

func ObserveDemandScore(score float64) {
	cur.Load().demandScore.Observe(score)
}

func SetDemandCells(n int) {
	cur.Load().demandCells.Set(float64(n))
}

func IncLookupEvent(result string) {
	cur.Load().lookupEvents.WithLabelValues(result).Inc()
}
