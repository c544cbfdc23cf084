// Package memstore is the in-process cache driver: a size-bounded LRU whose
// entries expire after a fixed TTL.
package memstore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/coverage-cache/internal/cache"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
)

const DefaultSize = 10000

type Store struct {
	lru *expirable.LRU[string, []byte]
	ttl time.Duration
}

var _ cache.Interface = (*Store)(nil)

// New returns a store holding at most size entries for ttl each.
// size <= 0 falls back to DefaultSize.
func New(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	onEvict := func(_ string, _ []byte) {
		observability.AddCacheEvictions(1)
	}
	return &Store{
		lru: expirable.NewLRU[string, []byte](size, onEvict, ttl),
		ttl: ttl,
	}
}

// Get never returns an expired entry; expirable checks the deadline on read.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	v, ok := s.lru.Get(key)
	observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
	if ok {
		observability.AddCacheHits(1)
	} else {
		observability.AddCacheMisses(1)
	}
	return v, ok, nil
}

// Set stores val and restarts its TTL. val must not be modified afterwards.
func (s *Store) Set(_ context.Context, key string, val []byte) error {
	start := time.Now()
	s.lru.Add(key, val)
	observability.ObserveCacheOp("set", nil, time.Since(start).Seconds())
	observability.SetCacheEntries(s.lru.Len())
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }

func (s *Store) TTL() time.Duration { return s.ttl }
