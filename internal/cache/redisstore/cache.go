package redisstore

import (
	"context"
	"time"

	"github.com/mohammed-shakir/coverage-cache/internal/cache"
)

// Cache binds a Client to the fixed response TTL and a per-op timeout.
type Cache struct {
	cli     *Client
	ttl     time.Duration
	timeout time.Duration
}

var (
	_ cache.Interface = (*Cache)(nil)
	_ cache.Pinger    = (*Cache)(nil)
)

func NewCache(c *Client, ttl, opTimeout time.Duration) *Cache {
	return &Cache{cli: c, ttl: ttl, timeout: opTimeout}
}

// returns context with timeout if set
func (a *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.cli.Get(ctx, key)
}

func (a *Cache) Set(ctx context.Context, key string, val []byte) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.cli.Set(ctx, key, val, a.ttl)
}

func (a *Cache) Ping(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.cli.Ping(ctx)
}
