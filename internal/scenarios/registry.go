// Package scenarios selects how validated lookups are served.
package scenarios

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/coverage-cache/internal/cache"
	"github.com/mohammed-shakir/coverage-cache/internal/core/config"
	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/router"
)

// Resolver turns a validated lookup into a response.
type Resolver interface {
	ResolveLookup(ctx context.Context, l model.Lookup) (model.CoverageResponse, error)
}

// LookupObserver is told about every lookup that was answered successfully.
// Implementations must not block.
type LookupObserver interface {
	ObserveLookup(ctx context.Context, l model.Lookup, covered bool, cacheStatus string)
}

// Observers fans a lookup out to several observers.
type Observers []LookupObserver

func (o Observers) ObserveLookup(ctx context.Context, l model.Lookup, covered bool, cacheStatus string) {
	for _, ob := range o {
		if ob != nil {
			ob.ObserveLookup(ctx, l, covered, cacheStatus)
		}
	}
}

type Deps struct {
	Logger   *slog.Logger
	Resolver Resolver
	// Cache is used by scenarios that cache; nil lets them open the
	// configured driver themselves.
	Cache    cache.Interface
	Observer LookupObserver
}

type Factory func(cfg config.Config, d Deps) (router.LookupHandler, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

func New(name string, cfg config.Config, d Deps) (router.LookupHandler, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Resolver == nil {
		return nil, fmt.Errorf("scenario %q: resolver is required", name)
	}
	if f, ok := reg[name]; ok {
		return f(cfg, d)
	}
	if f, ok := reg["baseline"]; ok {
		d.Logger.Warn("unknown scenario; falling back to baseline", "scenario", name)
		return f(cfg, d)
	}
	return nil, fmt.Errorf("no factory for scenario %q and no baseline registered", name)
}
