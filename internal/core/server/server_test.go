package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/coverage-cache/internal/cache/memstore"
	"github.com/mohammed-shakir/coverage-cache/internal/core/config"
	"github.com/mohammed-shakir/coverage-cache/internal/core/health"
	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/coverage"
	"github.com/mohammed-shakir/coverage-cache/internal/scenarios"
	cachescn "github.com/mohammed-shakir/coverage-cache/internal/scenarios/cache"
)

type countingStore struct {
	calls atomic.Int64
	recs  []model.CoverageRecord
	err   error
}

func (s *countingStore) FindCoverage(context.Context, model.Lookup) ([]model.CoverageRecord, error) {
	s.calls.Add(1)
	return s.recs, s.err
}

// exactStore covers only lookups that match its address or point verbatim
type exactStore struct {
	mu      sync.Mutex
	address string
	point   model.Point
	seen    []model.Lookup
}

func (s *exactStore) FindCoverage(_ context.Context, l model.Lookup) ([]model.CoverageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, l)
	if (l.Point == nil && l.Address == s.address) || (l.Point != nil && *l.Point == s.point) {
		return []model.CoverageRecord{{Provider: "Acme", Product: "Fiber100", Status: "live", Price: price(20)}}, nil
	}
	return nil, nil
}

func price(f float64) *float64 { return &f }

func newTestServer(t *testing.T, st coverage.Store, ready ...health.Check) *httptest.Server {
	t.Helper()
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res := coverage.NewResolver(st, logger)
	h := cachescn.New(scenarios.Deps{Logger: logger, Resolver: res}, memstore.New(64, time.Minute), 0)

	srv := httptest.NewServer(NewRouter(cfg, logger, Deps{
		Lookup:  h,
		Metrics: http.NotFoundHandler(),
		Ready:   ready,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url+"/check-coverage", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp, b
}

func TestCheckCoverage_EndToEnd_MissThenHit(t *testing.T) {
	st := &countingStore{recs: []model.CoverageRecord{
		{Provider: "Acme", Product: "Fiber100", Status: "live", Price: price(20)},
		{Provider: "Acme", Product: "Fiber500", Status: "live", Price: price(35)},
		{Provider: "Beta", Product: "Cable50", Status: "planned", Price: price(15)},
	}}
	srv := newTestServer(t, st)

	body := `{"latitude":40.7,"longitude":-74.0,"address":null,"mediums":["fiber"]}`
	r1, b1 := post(t, srv.URL, body)
	r2, b2 := post(t, srv.URL, `{"latitude":40.7,"longitude":-74.0,"mediums":["FIBER"]}`)

	if r1.StatusCode != http.StatusOK || r2.StatusCode != http.StatusOK {
		t.Fatalf("codes=%d,%d", r1.StatusCode, r2.StatusCode)
	}
	if r1.Header.Get("X-Cache") != "MISS" || r2.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("X-Cache=%q,%q", r1.Header.Get("X-Cache"), r2.Header.Get("X-Cache"))
	}
	if r1.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("payload differs:\n%s\n%s", b1, b2)
	}
	if n := st.calls.Load(); n != 1 {
		t.Fatalf("store calls=%d want 1", n)
	}

	var got struct {
		Covered   bool                  `json:"covered"`
		Message   string                `json:"message"`
		Address   *string               `json:"address"`
		Latitude  *float64              `json:"latitude"`
		Providers []model.ProviderOffer `json:"providers"`
	}
	if err := json.Unmarshal(b1, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Covered || got.Message != model.MessageCovered || got.Address != nil {
		t.Fatalf("unexpected response: %s", b1)
	}
	if got.Latitude == nil || *got.Latitude != 40.7 {
		t.Fatalf("latitude echo missing: %s", b1)
	}
	if len(got.Providers) != 1 || got.Providers[0].Product != "Fiber100" || *got.Providers[0].Price != 20 {
		t.Fatalf("providers=%+v", got.Providers)
	}
	if !strings.Contains(string(b1), `"address":null`) {
		t.Fatalf("address must be null when not given: %s", b1)
	}
}

func TestCheckCoverage_InvalidInput_NoStoreCall(t *testing.T) {
	st := &countingStore{}
	srv := newTestServer(t, st)

	resp, b := post(t, srv.URL, `{"latitude":null,"longitude":null,"address":null}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("code=%d body=%s", resp.StatusCode, b)
	}
	if !strings.Contains(string(b), `"error"`) {
		t.Fatalf("body=%s", b)
	}
	if n := st.calls.Load(); n != 0 {
		t.Fatalf("store calls=%d want 0", n)
	}
}

func TestCheckCoverage_StoreFailure500(t *testing.T) {
	st := &countingStore{err: errors.New("connection refused")}
	srv := newTestServer(t, st)

	resp, b := post(t, srv.URL, `{"address":"Main St 1"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("code=%d body=%s", resp.StatusCode, b)
	}
	if strings.Contains(string(b), "refused") {
		t.Fatalf("internal error leaked: %s", b)
	}
}

func TestRoutes_MethodsAndProbes(t *testing.T) {
	failing := health.Check{Name: "store", Ping: func(context.Context) error { return errors.New("down") }}
	srv := newTestServer(t, &countingStore{}, failing)

	resp, err := http.Get(srv.URL + "/check-coverage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /check-coverage code=%d want 405", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz=%d want 503", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/demand/uncovered")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("demand route without tracker=%d want 404", resp.StatusCode)
	}
}

func TestCheckCoverage_EquivalentAddressesShareOneCanonicalAnswer(t *testing.T) {
	st := &exactStore{address: "1 Main St"}
	srv := newTestServer(t, st)

	r1, b1 := post(t, srv.URL, `{"latitude":null,"longitude":null,"address":"  1 Main \t St "}`)
	r2, b2 := post(t, srv.URL, `{"latitude":null,"longitude":null,"address":"1 Main St"}`)

	if r1.Header.Get("X-Cache") != "MISS" || r2.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("X-Cache=%q,%q", r1.Header.Get("X-Cache"), r2.Header.Get("X-Cache"))
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("payload differs:\n%s\n%s", b1, b2)
	}
	if !strings.Contains(string(b1), `"covered":true`) || !strings.Contains(string(b1), `"address":"1 Main St"`) {
		t.Fatalf("want covered answer for the canonical address, got %s", b1)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.seen) != 1 || st.seen[0].Address != "1 Main St" {
		t.Fatalf("store saw %+v, want one query for %q", st.seen, "1 Main St")
	}
}

func TestCheckCoverage_CoordinatesQueriedAtKeyPrecision(t *testing.T) {
	st := &exactStore{point: model.Point{Lat: 40.7, Lon: -74}}
	srv := newTestServer(t, st)

	_, b1 := post(t, srv.URL, `{"latitude":40.7000002,"longitude":-73.9999999}`)
	r2, b2 := post(t, srv.URL, `{"latitude":40.7,"longitude":-74.0}`)

	if r2.Header.Get("X-Cache") != "HIT" || !bytes.Equal(b1, b2) {
		t.Fatalf("X-Cache=%q payloads:\n%s\n%s", r2.Header.Get("X-Cache"), b1, b2)
	}
	if !strings.Contains(string(b1), `"covered":true`) || !strings.Contains(string(b1), `"latitude":40.7,"longitude":-74`) {
		t.Fatalf("want covered answer echoing the rounded point, got %s", b1)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.seen) != 1 || *st.seen[0].Point != (model.Point{Lat: 40.7, Lon: -74}) {
		t.Fatalf("store saw %+v", st.seen)
	}
}
