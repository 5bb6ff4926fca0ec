// Package oracle provides core.PriceOracle implementations and the feed
// that keeps them current. Prices are debt units per collateral unit at the
// 1e6 amount scale. Freshness is judged by the coordinator, not here.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"VaultLedger/internal/core"
)

var ErrNoPrice = errors.New("no price observed")

// PriceStore is where the feed writes observations.
type PriceStore interface {
	// SetPrice records price for asset. An observation older than the
	// stored one is ignored and reported with stored=false.
	SetPrice(ctx context.Context, asset string, price int64, observedAt time.Time) (stored bool, err error)
}

// StaticOracle always returns the same price, observed now. For local runs
// without a feed.
type StaticOracle struct {
	Price int64
	Clock core.Clock
}

func (o StaticOracle) GetPrice(ctx context.Context, asset string) (int64, time.Time, error) {
	clock := o.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	return o.Price, clock.Now(), nil
}

type observation struct {
	price      int64
	observedAt time.Time
}

// MemoryPriceCache keeps the latest observation per asset in process.
type MemoryPriceCache struct {
	mu     sync.RWMutex
	prices map[string]observation
}

func NewMemoryPriceCache() *MemoryPriceCache {
	return &MemoryPriceCache{prices: make(map[string]observation)}
}

func (c *MemoryPriceCache) SetPrice(ctx context.Context, asset string, price int64, observedAt time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.prices[asset]; ok && observedAt.Before(cur.observedAt) {
		return false, nil
	}
	c.prices[asset] = observation{price: price, observedAt: observedAt}
	return true, nil
}

func (c *MemoryPriceCache) GetPrice(ctx context.Context, asset string) (int64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obs, ok := c.prices[asset]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w for %s", ErrNoPrice, asset)
	}
	return obs.price, obs.observedAt, nil
}

var (
	_ core.PriceOracle = StaticOracle{}
	_ core.PriceOracle = (*MemoryPriceCache)(nil)
	_ PriceStore       = (*MemoryPriceCache)(nil)
)
