package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"VaultLedger/internal/core"

	"github.com/redis/go-redis/v9"
)

// RedisReceiptStore keeps committed receipts at "vault:receipt:{op}:{id}"
// with a TTL, so retries after a restart still deduplicate.
type RedisReceiptStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReceiptStore(rdb *redis.Client, ttl time.Duration) *RedisReceiptStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisReceiptStore{rdb: rdb, ttl: ttl}
}

func receiptKey(key string) string {
	return "vault:receipt:" + key
}

func (s *RedisReceiptStore) Load(ctx context.Context, key string) (core.Receipt, bool, error) {
	raw, err := s.rdb.Get(ctx, receiptKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Receipt{}, false, nil
	}
	if err != nil {
		return core.Receipt{}, false, fmt.Errorf("redis: get receipt %s: %w", key, err)
	}
	var r core.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return core.Receipt{}, false, fmt.Errorf("redis: decode receipt %s: %w", key, err)
	}
	return r, true, nil
}

// Save stores r unless key is already present; the first commit wins.
func (s *RedisReceiptStore) Save(ctx context.Context, key string, r core.Receipt) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", key, err)
	}
	if err := s.rdb.SetNX(ctx, receiptKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set receipt %s: %w", key, err)
	}
	return nil
}

var _ ReceiptStore = (*RedisReceiptStore)(nil)
