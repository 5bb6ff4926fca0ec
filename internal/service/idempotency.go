package service

import (
	"container/list"
	"context"
	"fmt"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"

	"github.com/rs/zerolog"
)

// ReceiptStore is the second dedup tier. It keeps receipts of committed
// requests beyond the LRU window and across restarts.
type ReceiptStore interface {
	Load(ctx context.Context, key string) (core.Receipt, bool, error)
	Save(ctx context.Context, key string, r core.Receipt) error
}

// IdempotencyChecker implements two-tier request deduplication. A request id
// that already committed returns its original receipt instead of running
// again. Rejected requests are not recorded, so a client may retry them.
//
// Not thread-safe: only called from the service executor.
type IdempotencyChecker struct {
	lru     *IdempotencyLRU
	store   ReceiptStore // optional
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewIdempotencyChecker(capacity int, store ReceiptStore, metrics *observability.Metrics, logger zerolog.Logger) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:     NewIdempotencyLRU(capacity),
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

func dedupKey(op, requestID string) string {
	return fmt.Sprintf("%s:%s", op, requestID)
}

// Lookup returns the receipt of an earlier commit of (op, requestID).
func (ic *IdempotencyChecker) Lookup(ctx context.Context, op, requestID string) (core.Receipt, bool) {
	key := dedupKey(op, requestID)

	if r, ok := ic.lru.Get(key); ok {
		ic.recordDuplicate(op, "lru")
		return r, true
	}

	if ic.store != nil {
		r, ok, err := ic.store.Load(ctx, key)
		if err != nil {
			// A store outage must not block the vault; treat as unseen.
			ic.logger.Warn().Err(err).Str("key", key).Msg("receipt store lookup failed")
			return core.Receipt{}, false
		}
		if ok {
			ic.recordDuplicate(op, "store")
			ic.lru.Add(key, r)
			return r, true
		}
	}
	return core.Receipt{}, false
}

// MarkProcessed records the receipt of a committed request.
func (ic *IdempotencyChecker) MarkProcessed(ctx context.Context, op, requestID string, r core.Receipt) {
	key := dedupKey(op, requestID)
	ic.lru.Add(key, r)
	if ic.store != nil {
		if err := ic.store.Save(ctx, key, r); err != nil {
			ic.logger.Warn().Err(err).Str("key", key).Msg("receipt store write failed")
		}
	}
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
		ic.metrics.DedupLRUEvictions.Set(float64(ic.lru.Evictions()))
	}
}

func (ic *IdempotencyChecker) recordDuplicate(op, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(op).Inc()
	}
	ic.logger.Debug().Str("op", op).Str("tier", tier).Msg("duplicate request")
}

// --- LRU Implementation ---

// IdempotencyLRU maps request keys to receipts, evicting the least recently
// used entry beyond capacity.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key     string
	receipt core.Receipt
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Get returns the receipt for key and promotes it.
func (lru *IdempotencyLRU) Get(key string) (core.Receipt, bool) {
	elem, exists := lru.cache[key]
	if !exists {
		return core.Receipt{}, false
	}
	lru.lruList.MoveToFront(elem)
	return elem.Value.(*lruEntry).receipt, true
}

// Add inserts or refreshes key.
func (lru *IdempotencyLRU) Add(key string, r core.Receipt) {
	if elem, exists := lru.cache[key]; exists {
		elem.Value.(*lruEntry).receipt = r
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&lruEntry{key: key, receipt: r})
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		delete(lru.cache, elem.Value.(*lruEntry).key)
		lru.evictions++
	}
}

func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
