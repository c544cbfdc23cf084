// Package cache defines the response cache used in front of the coverage resolver.
package cache

import "context"

// Interface stores encoded coverage responses under canonical lookup keys.
// The TTL is fixed by the implementation; Set resets it.
type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
}

// Pinger is implemented by drivers that talk to an external process.
type Pinger interface {
	Ping(ctx context.Context) error
}
