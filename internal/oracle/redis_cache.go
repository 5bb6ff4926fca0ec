package oracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"VaultLedger/internal/core"

	"github.com/redis/go-redis/v9"
)

// setIfNewerLua writes the price hash only when the incoming timestamp is not
// older than the stored one. Returns 1 when written.
const setIfNewerLua = `
local ts = redis.call('HGET', KEYS[1], 'ts')
if ts and tonumber(ts) > tonumber(ARGV[2]) then
    return 0
end
redis.call('HSET', KEYS[1], 'price', ARGV[1], 'ts', ARGV[2])
return 1
`

// RedisPriceCache stores the latest observation of each asset as a hash at
// "vault:price:{asset}" with fields "price" (1e6 integer) and "ts" (Unix
// nanoseconds). Several vault processes can share one feed this way.
type RedisPriceCache struct {
	rdb    *redis.Client
	setSc  *redis.Script
	prefix string
}

func NewRedisPriceCache(rdb *redis.Client) *RedisPriceCache {
	return &RedisPriceCache{
		rdb:    rdb,
		setSc:  redis.NewScript(setIfNewerLua),
		prefix: "vault:price:",
	}
}

// ConnectRedis opens a client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 3,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (c *RedisPriceCache) key(asset string) string {
	return c.prefix + asset
}

func (c *RedisPriceCache) SetPrice(ctx context.Context, asset string, price int64, observedAt time.Time) (bool, error) {
	n, err := c.setSc.Run(ctx, c.rdb, []string{c.key(asset)},
		strconv.FormatInt(price, 10),
		strconv.FormatInt(observedAt.UnixNano(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: set price %s: %w", asset, err)
	}
	return n == 1, nil
}

func (c *RedisPriceCache) GetPrice(ctx context.Context, asset string) (int64, time.Time, error) {
	vals, err := c.rdb.HGetAll(ctx, c.key(asset)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w for %s", ErrNoPrice, asset)
	}
	price, err := strconv.ParseInt(priceStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", asset, err)
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w for %s", ErrNoPrice, asset)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", asset, err)
	}
	return price, time.Unix(0, ts), nil
}

var (
	_ core.PriceOracle = (*RedisPriceCache)(nil)
	_ PriceStore       = (*RedisPriceCache)(nil)
)
