package oracle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStaticOracle(t *testing.T) {
	o := oracle.StaticOracle{Price: 2_000_000, Clock: core.ClockFunc(func() time.Time { return t0 })}
	price, at, err := o.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), price)
	assert.Equal(t, t0, at)
}

func TestMemoryPriceCache_KeepsNewest(t *testing.T) {
	ctx := context.Background()
	c := oracle.NewMemoryPriceCache()

	_, _, err := c.GetPrice(ctx, "ETH")
	require.ErrorIs(t, err, oracle.ErrNoPrice)

	stored, err := c.SetPrice(ctx, "ETH", 100, t0)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = c.SetPrice(ctx, "ETH", 90, t0.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, stored)

	price, at, err := c.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, int64(100), price)
	assert.Equal(t, t0, at)
}

type failingStore struct{}

func (failingStore) SetPrice(context.Context, string, int64, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

func TestNATSFeed_Handle(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := oracle.NewMemoryPriceCache()
	feed := oracle.NewNATSFeed(nil, cache, metrics, zerolog.Nop())

	tests := []struct {
		name    string
		subject string
		data    string
		wantErr bool
		result  string
	}{
		{"accepted", "vault.prices.ETH", `{"asset":"ETH","price":"1850.25","observed_at":"2026-03-01T12:00:00Z"}`, false, "accepted"},
		{"asset from subject", "vault.prices.ETH", `{"price":"1851","observed_at":"2026-03-01T12:00:01Z"}`, false, "accepted"},
		{"outdated", "vault.prices.ETH", `{"price":"1700","observed_at":"2026-03-01T11:59:00Z"}`, false, "outdated"},
		{"subject mismatch", "vault.prices.ETH", `{"asset":"BTC","price":"1"}`, true, "invalid"},
		{"zero price", "vault.prices.ETH", `{"price":"0"}`, true, "invalid"},
		{"too precise", "vault.prices.ETH", `{"price":"1.0000001"}`, true, "invalid"},
		{"malformed", "vault.prices.ETH", `{not json`, true, "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := promtest.ToFloat64(metrics.PriceUpdates.WithLabelValues(tt.result))
			err := feed.Handle(ctx, tt.subject, []byte(tt.data), t0)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, before+1, promtest.ToFloat64(metrics.PriceUpdates.WithLabelValues(tt.result)))
		})
	}

	price, at, err := cache.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, int64(1_851_000_000), price)
	assert.True(t, at.Equal(t0.Add(time.Second)))
}

func TestNATSFeed_DefaultsObservedAt(t *testing.T) {
	cache := oracle.NewMemoryPriceCache()
	feed := oracle.NewNATSFeed(nil, cache, nil, zerolog.Nop())

	require.NoError(t, feed.Handle(context.Background(), "vault.prices.ETH", []byte(`{"price":"2"}`), t0))
	_, at, err := cache.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, t0, at)
}

func TestNATSFeed_StoreErrorIsRetryable(t *testing.T) {
	feed := oracle.NewNATSFeed(nil, failingStore{}, nil, zerolog.Nop())
	err := feed.Handle(context.Background(), "vault.prices.ETH", []byte(`{"price":"2"}`), t0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisPriceCache_Integration(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx := context.Background()
	c := oracle.NewRedisPriceCache(rdb)

	_, _, err := c.GetPrice(ctx, "ETH")
	require.ErrorIs(t, err, oracle.ErrNoPrice)

	stored, err := c.SetPrice(ctx, "ETH", 1_500_000, t0)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = c.SetPrice(ctx, "ETH", 1_400_000, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, stored)

	price, at, err := c.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), price)
	assert.True(t, at.Equal(t0))
}
