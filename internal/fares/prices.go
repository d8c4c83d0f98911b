package fares

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTierNotFound reports a tier name with no configured price.
var ErrTierNotFound = errors.New("ticket tier not found")

// PriceProvider resolves a tier name to its unit price in minor units.
type PriceProvider interface {
	PriceOf(ctx context.Context, tierName string) (int64, error)
}

// StaticPrices is a fixed in-memory price table, used in tests and as a
// bootstrap default.
type StaticPrices map[string]int64

func (s StaticPrices) PriceOf(_ context.Context, tierName string) (int64, error) {
	price, ok := s[tierName]
	if !ok {
		return 0, ErrTierNotFound
	}
	return price, nil
}

// CachedPrices wraps a PriceProvider with a TTL cache. Tier prices change
// rarely but are read on every gate entry and exit.
type CachedPrices struct {
	Source PriceProvider

	mu    sync.RWMutex
	store map[string]priceEntry
	ttl   time.Duration
}

type priceEntry struct {
	price int64
	ts    time.Time
}

func NewCachedPrices(source PriceProvider, ttl time.Duration) *CachedPrices {
	return &CachedPrices{Source: source, store: make(map[string]priceEntry), ttl: ttl}
}

func (c *CachedPrices) PriceOf(ctx context.Context, tierName string) (int64, error) {
	c.mu.RLock()
	e, ok := c.store[tierName]
	c.mu.RUnlock()
	if ok && time.Since(e.ts) <= c.ttl {
		return e.price, nil
	}

	price, err := c.Source.PriceOf(ctx, tierName)
	if err != nil {
		// Serve a stale entry rather than fail a settlement on a
		// transient datastore error.
		if ok && !errors.Is(err, ErrTierNotFound) {
			return e.price, nil
		}
		return 0, err
	}

	c.mu.Lock()
	c.store[tierName] = priceEntry{price: price, ts: time.Now()}
	c.mu.Unlock()
	return price, nil
}
