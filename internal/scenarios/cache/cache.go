// Package cache serves lookups through the response cache. Misses on the
// same key collapse into one resolution, and a resolution outlives the
// request that started it so an abandoned miss still fills the cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	cacheiface "github.com/mohammed-shakir/coverage-cache/internal/cache"
	"github.com/mohammed-shakir/coverage-cache/internal/cache/keys"
	"github.com/mohammed-shakir/coverage-cache/internal/cache/memstore"
	"github.com/mohammed-shakir/coverage-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/coverage-cache/internal/core/config"
	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
	"github.com/mohammed-shakir/coverage-cache/internal/core/router"
	mylog "github.com/mohammed-shakir/coverage-cache/internal/logger"
	"github.com/mohammed-shakir/coverage-cache/internal/scenarios"
)

const (
	HeaderCache = "X-Cache"
	CacheHit    = "HIT"
	CacheMiss   = "MISS"
)

type Engine struct {
	deps        scenarios.Deps
	store       cacheiface.Interface
	group       singleflight.Group
	fillTimeout time.Duration
}

func init() {
	scenarios.Register("cache", newCache)
}

// creates cache scenario lookup handler
func newCache(cfg config.Config, d scenarios.Deps) (router.LookupHandler, error) {
	store := d.Cache
	if store == nil {
		s, _, err := OpenStore(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		store = s
	}
	return New(d, store, cfg.StoreQueryTimeout+cfg.CacheOpTimeout), nil
}

// New wraps deps.Resolver with store. fillTimeout bounds a detached
// resolution; zero means the resolver's own timeout is the only bound.
func New(d scenarios.Deps, store cacheiface.Interface, fillTimeout time.Duration) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Engine{deps: d, store: store, fillTimeout: fillTimeout}
}

// OpenStore builds the driver selected by CACHE_DRIVER. The returned close
// func releases driver resources.
func OpenStore(ctx context.Context, cfg config.Config) (cacheiface.Interface, func() error, error) {
	switch cfg.CacheDriver {
	case config.CacheDriverRedis:
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("redis client: %w", err)
		}
		return redisstore.NewCache(rc, cfg.CacheTTL, cfg.CacheOpTimeout), rc.Close, nil
	default:
		return memstore.New(cfg.CacheSize, cfg.CacheTTL), func() error { return nil }, nil
	}
}

type filled struct {
	body    []byte
	covered bool
}

func (e *Engine) HandleLookup(ctx context.Context, w http.ResponseWriter, _ *http.Request, l model.Lookup) {
	start := time.Now()
	key := keys.Key(l)

	if b, ok := e.lookup(ctx, key); ok {
		ctx = mylog.WithCacheStatus(ctx, CacheHit)
		observability.IncCacheResult("hit")
		w.Header().Set(HeaderCache, CacheHit)
		router.WriteRaw(w, http.StatusOK, b)

		if e.deps.Observer != nil {
			e.deps.Observer.ObserveLookup(ctx, l, coveredFrom(b), CacheHit)
		}
		e.deps.Logger.DebugContext(ctx, "cache hit", "key", key, "dur", time.Since(start).String())
		return
	}

	ctx = mylog.WithCacheStatus(ctx, CacheMiss)
	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		return e.fill(detached, key, l)
	})

	select {
	case <-ctx.Done():
		// the fill keeps running and still populates the cache
		observability.IncCacheResult("abandoned")
		e.deps.Logger.DebugContext(ctx, "caller left before resolution finished", "key", key)
		return
	case res := <-ch:
		if res.Shared {
			observability.IncSharedResolution()
		}
		if res.Err != nil {
			observability.IncCacheResult("error")
			code, msg := router.StatusFor(res.Err)
			e.deps.Logger.WarnContext(ctx, "coverage lookup failed", "err", res.Err, "status", code)
			router.WriteError(w, code, msg)
			return
		}
		f, _ := res.Val.(filled)
		observability.IncCacheResult("miss")
		w.Header().Set(HeaderCache, CacheMiss)
		router.WriteRaw(w, http.StatusOK, f.body)

		if e.deps.Observer != nil {
			e.deps.Observer.ObserveLookup(ctx, l, f.covered, CacheMiss)
		}
		e.deps.Logger.DebugContext(ctx, "cache miss filled",
			"key", key, "shared", res.Shared, "covered", f.covered,
			"dur", time.Since(start).String())
	}
}

// cache errors degrade to a miss
func (e *Engine) lookup(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.deps.Logger.WarnContext(ctx, "cache get failed, resolving from store", "key", key, "err", err)
		return nil, false
	}
	if !ok || len(b) == 0 {
		return nil, false
	}
	return b, true
}

// resolves, encodes and stores one response. Errors are never cached.
func (e *Engine) fill(ctx context.Context, key string, l model.Lookup) (filled, error) {
	if e.fillTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fillTimeout)
		defer cancel()
	}

	resp, err := e.deps.Resolver.ResolveLookup(ctx, l)
	if err != nil {
		return filled{}, err
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return filled{}, fmt.Errorf("encode coverage response: %w", err)
	}
	if err := e.store.Set(ctx, key, body); err != nil {
		e.deps.Logger.WarnContext(ctx, "cache set failed", "key", key, "err", err)
	}
	return filled{body: body, covered: resp.Covered}, nil
}

func coveredFrom(b []byte) bool {
	var v struct {
		Covered bool `json:"covered"`
	}
	_ = json.Unmarshal(b, &v)
	return v.Covered
}
