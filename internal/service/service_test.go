package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/service"
	"VaultLedger/internal/state"
	"VaultLedger/internal/tokens"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unit = 1_000_000

type fixedOracle struct{ price int64 }

func (o fixedOracle) GetPrice(ctx context.Context, asset string) (int64, time.Time, error) {
	return o.price, time.Now(), nil
}

type memReceipts struct {
	mu    sync.Mutex
	items map[string]core.Receipt
}

func (m *memReceipts) Load(ctx context.Context, key string) (core.Receipt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[key]
	return r, ok, nil
}

func (m *memReceipts) Save(ctx context.Context, key string, r core.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = r
	return nil
}

type harness struct {
	svc        *service.Service
	collateral *tokens.CollateralCustody
	debt       *tokens.DebtToken
	metrics    *observability.Metrics
	admin      uuid.UUID
	cancel     context.CancelFunc
	done       chan error
}

func newHarness(t *testing.T, receipts service.ReceiptStore) *harness {
	t.Helper()
	h := &harness{
		collateral: tokens.NewCollateralCustody(),
		debt:       tokens.NewDebtToken(),
		metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		admin:      uuid.New(),
		done:       make(chan error, 1),
	}
	vc, err := core.NewVaultCoordinator(core.Config{
		Params:          state.DefaultVaultParams(),
		CollateralAsset: "ETH",
		Admins:          []uuid.UUID{h.admin},
	}, core.Deps{
		Collateral: h.collateral,
		Debt:       h.debt,
		Oracle:     fixedOracle{price: 1 * unit},
		Metrics:    h.metrics,
	})
	require.NoError(t, err)

	h.svc, err = service.New(vc, service.Options{
		QueueSize:     16,
		DedupCapacity: 8,
		NodeID:        1,
		Receipts:      receipts,
		Metrics:       h.metrics,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.svc.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
	h.done <- nil
}

func TestService_DuplicateRequestReturnsOriginalReceipt(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, h.collateral.Fund(owner, 100*unit))

	first, err := h.svc.Deposit(ctx, "dep-1", owner, 40*unit)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, "dep-1", first.RequestID)

	again, err := h.svc.Deposit(ctx, "dep-1", owner, 40*unit)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Receipt, again.Receipt)

	view, err := h.svc.GetPosition(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(40*unit), view.Collateral)
	assert.Equal(t, int64(60*unit), h.collateral.Balance(owner))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IdempotencyDuplicates.WithLabelValues("deposit")))
}

func TestService_RejectedRequestCanBeRetried(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()

	_, err := h.svc.Deposit(ctx, "dep-2", owner, 10*unit)
	require.Error(t, err)

	require.NoError(t, h.collateral.Fund(owner, 10*unit))
	res, err := h.svc.Deposit(ctx, "dep-2", owner, 10*unit)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(10*unit), res.Collateral)
}

func TestService_SameIDDifferentOperationsAreIndependent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, h.collateral.Fund(owner, 10*unit))

	_, err := h.svc.Deposit(ctx, "shared", owner, 10*unit)
	require.NoError(t, err)
	res, err := h.svc.Withdraw(ctx, "shared", owner, 4*unit)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(6*unit), res.Collateral)
}

func TestService_GeneratesRequestIDs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, h.collateral.Fund(owner, 10*unit))

	a, err := h.svc.Deposit(ctx, "", owner, 5*unit)
	require.NoError(t, err)
	b, err := h.svc.Deposit(ctx, "", owner, 5*unit)
	require.NoError(t, err)

	assert.NotEmpty(t, a.RequestID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.False(t, b.Duplicate)
	assert.Equal(t, int64(10*unit), b.Collateral)
}

func TestService_ReceiptStoreSurvivesLRUEviction(t *testing.T) {
	store := &memReceipts{items: make(map[string]core.Receipt)}
	h := newHarness(t, store)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, h.collateral.Fund(owner, 100*unit))

	first, err := h.svc.Deposit(ctx, "old", owner, unit)
	require.NoError(t, err)
	// DedupCapacity is 8: push "old" out of the LRU.
	for i := range 10 {
		_, err := h.svc.Deposit(ctx, uuid.NewString(), owner, unit)
		require.NoError(t, err, "deposit %d", i)
	}

	again, err := h.svc.Deposit(ctx, "old", owner, unit)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Sequence, again.Sequence)

	view, err := h.svc.GetPosition(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(11*unit), view.Collateral)
}

func TestService_ConcurrentCallersSerialize(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	const owners = 20
	var wg sync.WaitGroup
	errs := make(chan error, owners)
	for range owners {
		owner := uuid.New()
		require.NoError(t, h.collateral.Fund(owner, 1000*unit))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Deposit(ctx, "", owner, 1000*unit)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := h.svc.GetVaultStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(owners*1000*unit), stats.TotalCollateral)
	assert.Equal(t, owners, stats.ActivePositions)
	assert.Equal(t, int64(owners), stats.Sequence)
}

func TestService_AdminCalls(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, h.collateral.Fund(owner, 10*unit))

	require.NoError(t, h.svc.Pause(ctx, h.admin))
	_, err := h.svc.Deposit(ctx, "", owner, unit)
	require.ErrorIs(t, err, core.ErrVaultPaused)

	ok, msg := h.svc.Probe()
	assert.False(t, ok)
	assert.Equal(t, "vault paused", msg)

	require.NoError(t, h.svc.Unpause(ctx, h.admin))
	ok, _ = h.svc.Probe()
	assert.True(t, ok)

	require.ErrorIs(t, h.svc.Pause(ctx, owner), core.ErrUnauthorized)

	res, err := h.svc.SetParam(ctx, "p-1", h.admin, state.ParamLiquidationPenalty, 500)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	params, err := h.svc.GetParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), params.LiquidationPenalty)
}

func TestService_StoppedExecutorRejectsCalls(t *testing.T) {
	h := newHarness(t, nil)
	h.cancel()
	err := <-h.done
	require.NoError(t, err)
	h.done <- nil

	_, err = h.svc.GetVaultStats(context.Background())
	require.ErrorIs(t, err, service.ErrStopped)
}

func TestService_CallerContextCancelled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.GetVaultStats(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIdempotencyLRU_Evicts(t *testing.T) {
	lru := service.NewIdempotencyLRU(2)
	lru.Add("a", core.Receipt{Sequence: 1})
	lru.Add("b", core.Receipt{Sequence: 2})
	_, ok := lru.Get("a") // a is now most recent
	require.True(t, ok)
	lru.Add("c", core.Receipt{Sequence: 3})

	_, ok = lru.Get("b")
	assert.False(t, ok)
	r, ok := lru.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), r.Sequence)
	assert.Equal(t, 2, lru.Size())
	assert.Equal(t, int64(1), lru.Evictions())
}
