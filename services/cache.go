package services

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cacheKey struct {
	chainID uint64
	account common.Address
	name    string
}

// ReadCache memoizes pure ledger reads for a short time. Entries are keyed by
// chain, account and read name, and the whole cache is dropped whenever the
// active account changes. A nil *ReadCache disables caching.
type ReadCache struct {
	entries *expirable.LRU[cacheKey, any]
	metrics *MetricsService

	mu         sync.Mutex
	account    common.Address
	hasAccount bool
}

// NewReadCache creates a cache holding at most size entries for ttl each.
func NewReadCache(size int, ttl time.Duration, metrics *MetricsService) *ReadCache {
	return &ReadCache{
		entries: expirable.NewLRU[cacheKey, any](size, nil, ttl),
		metrics: metrics,
	}
}

// ObserveAccount records the active account and invalidates the cache when it
// differs from the previously observed one.
func (c *ReadCache) ObserveAccount(account common.Address) {
	if c == nil {
		return
	}

	c.mu.Lock()
	changed := c.hasAccount && c.account != account
	c.account = account
	c.hasAccount = true
	c.mu.Unlock()

	if changed {
		c.InvalidateOnAccountChange()
	}
}

// InvalidateOnAccountChange drops every cached entry.
func (c *ReadCache) InvalidateOnAccountChange() {
	if c == nil {
		return
	}

	c.entries.Purge()
}

// Len returns the number of live entries.
func (c *ReadCache) Len() int {
	if c == nil {
		return 0
	}

	return c.entries.Len()
}

// cachedRead returns the cached value for key or loads and stores it.
// Load errors are not cached.
func cachedRead[T any](
	ctx context.Context,
	c *ReadCache,
	key cacheKey,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return load(ctx)
	}

	if v, ok := c.entries.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.RecordCacheLookup(true)
			return typed, nil
		}
	}

	c.metrics.RecordCacheLookup(false)

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	c.entries.Add(key, v)

	return v, nil
}
