// Package baseline answers every lookup straight from the resolver.
package baseline

import (
	"context"
	"net/http"
	"time"

	"github.com/mohammed-shakir/coverage-cache/internal/core/config"
	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
	"github.com/mohammed-shakir/coverage-cache/internal/core/router"
	mylog "github.com/mohammed-shakir/coverage-cache/internal/logger"
	"github.com/mohammed-shakir/coverage-cache/internal/scenarios"
)

const CacheBypass = "BYPASS"

type Engine struct {
	deps scenarios.Deps
}

func init() {
	scenarios.Register("baseline", newBaseline)
}

func newBaseline(_ config.Config, d scenarios.Deps) (router.LookupHandler, error) {
	return &Engine{deps: d}, nil
}

func (e *Engine) HandleLookup(ctx context.Context, w http.ResponseWriter, _ *http.Request, l model.Lookup) {
	start := time.Now()
	ctx = mylog.WithCacheStatus(ctx, CacheBypass)

	resp, err := e.deps.Resolver.ResolveLookup(ctx, l)
	if err != nil {
		code, msg := router.StatusFor(err)
		e.deps.Logger.WarnContext(ctx, "coverage lookup failed", "err", err, "status", code)
		router.WriteError(w, code, msg)
		return
	}

	observability.IncCacheResult("bypass")
	w.Header().Set("X-Cache", CacheBypass)
	router.WriteJSON(w, http.StatusOK, resp)

	if e.deps.Observer != nil {
		e.deps.Observer.ObserveLookup(ctx, l, resp.Covered, CacheBypass)
	}
	e.deps.Logger.DebugContext(ctx, "baseline lookup served",
		"covered", resp.Covered, "dur", time.Since(start).String())
}
