package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"
	"VaultLedger/internal/tokens"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unit = 1_000_000

// --- Test helpers ---

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeOracle struct {
	clock *manualClock
	price int64
	age   time.Duration
	err   error
}

func (o *fakeOracle) GetPrice(ctx context.Context, asset string) (int64, time.Time, error) {
	if o.err != nil {
		return 0, time.Time{}, o.err
	}
	return o.price, o.clock.Now().Add(-o.age), nil
}

type recorder struct{ envs []*event.Envelope }

func (r *recorder) Emit(env *event.Envelope) { r.envs = append(r.envs, env) }

func (r *recorder) types() []event.EventType {
	out := make([]event.EventType, len(r.envs))
	for i, e := range r.envs {
		out[i] = e.EventType
	}
	return out
}

type fixture struct {
	vc         *core.VaultCoordinator
	collateral *tokens.CollateralCustody
	debt       *tokens.DebtToken
	oracle     *fakeOracle
	clock      *manualClock
	events     *recorder
	admin      uuid.UUID
}

type fixtureOption func(*core.Deps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &fixture{
		collateral: tokens.NewCollateralCustody(),
		debt:       tokens.NewDebtToken(),
		oracle:     &fakeOracle{clock: clock, price: 1 * unit},
		clock:      clock,
		events:     &recorder{},
		admin:      uuid.New(),
	}
	deps := core.Deps{
		Collateral: f.collateral,
		Debt:       f.debt,
		Oracle:     f.oracle,
		Events:     f.events,
		Clock:      clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	vc, err := core.NewVaultCoordinator(core.Config{
		Params:          state.DefaultVaultParams(),
		CollateralAsset: "ETH",
		Admins:          []uuid.UUID{f.admin},
	}, deps)
	require.NoError(t, err)
	f.vc = vc
	return f
}

// open funds owner, deposits collateral and borrows debt at a price of 2.0,
// then restores the oracle to 1.0.
func (f *fixture) open(t *testing.T, owner uuid.UUID, collateral, debt int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.collateral.Fund(owner, collateral))
	_, err := f.vc.Deposit(ctx, owner, collateral)
	require.NoError(t, err)
	if debt > 0 {
		f.oracle.price = 2 * unit
		_, err = f.vc.IncreaseDebt(ctx, owner, owner, debt)
		require.NoError(t, err)
	}
	f.oracle.price = 1 * unit
}

func (f *fixture) view(t *testing.T, owner uuid.UUID) core.PositionView {
	t.Helper()
	v, err := f.vc.GetPosition(context.Background(), owner)
	require.NoError(t, err)
	return v
}

// --- Deposit / Withdraw ---

func TestDeposit_OpensPosition(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	require.NoError(t, f.collateral.Fund(owner, 100*unit))

	ctx := core.WithRequestID(context.Background(), "req-1")
	r, err := f.vc.Deposit(ctx, owner, 100*unit)
	require.NoError(t, err)

	assert.Equal(t, int64(0), r.Sequence)
	assert.Equal(t, int64(100*unit), r.Collateral)
	assert.Equal(t, []event.EventType{event.EventTypePositionOpened, event.EventTypeDeposited}, f.events.types())
	assert.Len(t, f.events.envs[0].Journals, 1)
	assert.Empty(t, f.events.envs[1].Journals)
	assert.Equal(t, "req-1", f.events.envs[0].RequestID)
	assert.Equal(t, int64(100*unit), f.collateral.Custody())

	v := f.view(t, owner)
	assert.Equal(t, state.PositionStatusActive, v.Status)
	assert.Equal(t, int64(1), v.Generation)
}

func TestDeposit_InvalidAmount(t *testing.T) {
	f := newFixture(t)
	for _, amount := range []int64{0, -1} {
		_, err := f.vc.Deposit(context.Background(), uuid.New(), amount)
		assert.ErrorIs(t, err, core.ErrInvalidAmount)
	}
	assert.Equal(t, int64(0), f.vc.Sequence())
	assert.Empty(t, f.events.envs)
}

func TestDeposit_TransferFailureLeavesNoState(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New() // unfunded

	_, err := f.vc.Deposit(context.Background(), owner, 10*unit)
	require.ErrorIs(t, err, core.ErrExternalTransfer)

	_, err = f.vc.GetPosition(context.Background(), owner)
	assert.ErrorIs(t, err, core.ErrPositionNotFound)
	assert.Equal(t, int64(0), f.vc.Sequence())
}

func TestWithdraw_NoPosition(t *testing.T) {
	f := newFixture(t)
	_, err := f.vc.Withdraw(context.Background(), uuid.New(), unit)
	assert.ErrorIs(t, err, core.ErrPositionNotFound)
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.open(t, owner, 100*unit, 0)

	_, err := f.vc.Withdraw(context.Background(), owner, 100*unit+1)
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
}

func TestWithdraw_Undercollateralized(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.open(t, owner, 1500*unit, 1000*unit)

	_, err := f.vc.Withdraw(context.Background(), owner, 1)
	require.ErrorIs(t, err, core.ErrUndercollateralizedOperation)
	assert.Contains(t, err.Error(), "below minimum 150.00%")
	assert.Equal(t, int64(1500*unit), f.view(t, owner).Collateral)
}

func TestWithdraw_FullCloseAndReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	f.open(t, owner, 50*unit, 0)

	r, err := f.vc.Withdraw(ctx, owner, 50*unit)
	require.NoError(t, err)
	assert.True(t, r.Closed)
	assert.Equal(t, state.PositionStatusClosed, f.view(t, owner).Status)

	_, err = f.vc.Withdraw(ctx, owner, 1)
	assert.ErrorIs(t, err, core.ErrPositionNotFound)

	_, err = f.vc.Deposit(ctx, owner, 10*unit)
	require.NoError(t, err)
	v := f.view(t, owner)
	assert.Equal(t, state.PositionStatusActive, v.Status)
	assert.Equal(t, int64(2), v.Generation)
	assert.Len(t, f.vc.PositionHistory(owner), 1)
}

// --- Debt ---

func TestIncreaseDebt_AtMinimumRatioSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	f.open(t, owner, 1500*unit, 0)

	_, err := f.vc.IncreaseDebt(ctx, owner, owner, 1000*unit)
	require.NoError(t, err)
	assert.Equal(t, int64(1000*unit), f.debt.Balance(owner))

	ratio, err := f.vc.GetRatio(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(15_000), ratio)

	maxMint, err := f.vc.GetMaxMintable(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxMint)
}

func TestIncreaseDebt_Unauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, issuer := uuid.New(), uuid.New()
	f.open(t, owner, 1500*unit, 0)

	_, err := f.vc.IncreaseDebt(ctx, issuer, owner, unit)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	require.NoError(t, f.vc.Grant(ctx, f.admin, issuer, core.CapIssueDebt))
	_, err = f.vc.IncreaseDebt(ctx, issuer, owner, unit)
	require.NoError(t, err)
	assert.Equal(t, int64(unit), f.debt.Balance(owner))
}

func TestIncreaseDebt_DebtCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, f.vc.SetDebtCeiling(ctx, f.admin, 1000*unit))
	f.open(t, a, 3000*unit, 600*unit)
	f.open(t, b, 3000*unit, 0)

	_, err := f.vc.IncreaseDebt(ctx, b, b, 400*unit+1)
	require.ErrorIs(t, err, core.ErrDebtCeilingExceeded)

	_, err = f.vc.IncreaseDebt(ctx, b, b, 400*unit)
	require.NoError(t, err)
}

func TestIncreaseDebt_MintFailureRollsBack(t *testing.T) {
	failing := &failingIssuer{err: errors.New("issuer offline")}
	f := newFixture(t, func(d *core.Deps) { d.Debt = failing })
	owner := uuid.New()
	f.open(t, owner, 1500*unit, 0)
	seq := f.vc.Sequence()

	_, err := f.vc.IncreaseDebt(context.Background(), owner, owner, 100*unit)
	require.ErrorIs(t, err, core.ErrExternalTransfer)

	v := f.view(t, owner)
	assert.Equal(t, int64(0), v.Principal)
	assert.Equal(t, seq, f.vc.Sequence())
	require.NoError(t, f.vc.CheckInvariants())
}

func TestDecreaseDebt_InsufficientDebt(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.open(t, owner, 1500*unit, 100*unit)

	_, err := f.vc.DecreaseDebt(context.Background(), owner, 100*unit+1)
	assert.ErrorIs(t, err, core.ErrInsufficientDebt)
}

func TestDecreaseDebt_RepayAndWithdrawCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	f.open(t, owner, 1500*unit, 100*unit)

	_, err := f.vc.DecreaseDebt(ctx, owner, 100*unit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.debt.Supply())

	r, err := f.vc.Withdraw(ctx, owner, 1500*unit)
	require.NoError(t, err)
	assert.True(t, r.Closed)

	stats, err := f.vc.GetVaultStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalCollateral)
	assert.Equal(t, int64(0), stats.TotalDebt)
	assert.Equal(t, 0, stats.ActivePositions)
}

func TestInterestAccrual_OneYear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	f.open(t, owner, 3000*unit, 1000*unit)

	f.clock.Advance(time.Duration(fpmath.SecondsPerYear) * time.Second)

	interest, err := f.vc.AccruedInterest(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(20*unit), interest)
	assert.Equal(t, int64(1000*unit), f.view(t, owner).Principal, "reads must not fold interest")

	// The owner must hold the interest in debt tokens to repay it.
	other := uuid.New()
	f.open(t, other, 3000*unit, 20*unit)
	require.NoError(t, f.debt.Transfer(other, owner, 20*unit))

	r, err := f.vc.DecreaseDebt(ctx, owner, 1020*unit)
	require.NoError(t, err)
	assert.Equal(t, int64(20*unit), r.InterestFolded)
	assert.Equal(t, int64(0), r.Principal)

	stats, err := f.vc.GetVaultStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20*unit), stats.StabilityFees)
	require.NoError(t, f.vc.CheckInvariants())
}

// --- Scenarios ---

func TestScenarioA_PartialLiquidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, liquidator := uuid.New(), uuid.New()
	f.open(t, owner, 1150*unit, 1000*unit)
	require.NoError(t, f.debt.Transfer(owner, liquidator, 500*unit))

	ok, err := f.vc.IsLiquidatable(ctx, owner)
	require.NoError(t, err)
	assert.True(t, ok)

	ratio, err := f.vc.GetRatio(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(11_500), ratio)

	r, err := f.vc.Liquidate(ctx, liquidator, owner, 500*unit)
	require.NoError(t, err)
	require.NotNil(t, r.Liquidation)
	assert.Equal(t, int64(550*unit), r.Liquidation.SeizedCollateral)
	assert.Equal(t, int64(50*unit), r.Liquidation.Penalty)
	assert.False(t, r.Closed)

	v := f.view(t, owner)
	assert.Equal(t, int64(600*unit), v.Collateral)
	assert.Equal(t, int64(500*unit), v.EffectiveDebt)

	ratio, err = f.vc.GetRatio(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(12_000), ratio)

	ok, err = f.vc.IsLiquidatable(ctx, owner)
	require.NoError(t, err)
	assert.False(t, ok, "exactly at threshold is not liquidatable")

	_, err = f.vc.Liquidate(ctx, liquidator, owner, unit)
	assert.ErrorIs(t, err, core.ErrNotLiquidatable)

	assert.Equal(t, int64(550*unit), f.collateral.Balance(liquidator))
	assert.Equal(t, int64(0), f.debt.Balance(liquidator))
	assert.Len(t, f.vc.LiquidationRecords(owner, 0), 1)
	require.NoError(t, f.vc.CheckInvariants())
}

func TestScenarioB_UndercollateralizedIncrease(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	f.open(t, owner, 1500*unit, 1000*unit)

	_, err := f.vc.IncreaseDebt(context.Background(), owner, owner, 100*unit)
	require.ErrorIs(t, err, core.ErrUndercollateralizedOperation)
	assert.Contains(t, err.Error(), "136.36%")
	assert.Equal(t, int64(1000*unit), f.view(t, owner).Principal)
	assert.Equal(t, int64(1000*unit), f.debt.Supply())
}

func TestScenarioC_OrderIndependence(t *testing.T) {
	owners := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}

	for _, order := range orders {
		f := newFixture(t)
		for _, i := range order {
			require.NoError(t, f.collateral.Fund(owners[i], 1000*unit))
			_, err := f.vc.Deposit(context.Background(), owners[i], 1000*unit)
			require.NoError(t, err)
		}
		stats, err := f.vc.GetVaultStats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4000*unit), stats.TotalCollateral, "order %v", order)
		assert.Equal(t, 4, stats.ActivePositions)
		for _, owner := range owners {
			assert.Equal(t, int64(1000*unit), f.view(t, owner).Collateral)
		}
	}
}

func TestScenarioD_DepositWithdrawCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, anchor := uuid.New(), uuid.New()
	f.open(t, anchor, 10*unit, 0) // keeps the vault non-empty
	require.NoError(t, f.collateral.Fund(owner, 500*unit))
	_, err := f.vc.Deposit(ctx, owner, 1)
	require.NoError(t, err)

	before := f.view(t, owner)
	wallet := f.collateral.Balance(owner)
	custody := f.collateral.Custody()

	for i := 0; i < 3; i++ {
		_, err := f.vc.Deposit(ctx, owner, 500*unit-1)
		require.NoError(t, err)
		_, err = f.vc.Withdraw(ctx, owner, 500*unit-1)
		require.NoError(t, err)
	}

	after := f.view(t, owner)
	assert.Equal(t, before.Collateral, after.Collateral)
	assert.Equal(t, before.Principal, after.Principal)
	assert.Equal(t, wallet, f.collateral.Balance(owner))
	assert.Equal(t, custody, f.collateral.Custody())
	require.NoError(t, f.vc.CheckInvariants())
}

// --- Liquidation ---

func TestLiquidation_Boundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	f.open(t, owner, 1200*unit, 1000*unit)

	ok, err := f.vc.IsLiquidatable(ctx, owner)
	require.NoError(t, err)
	assert.False(t, ok)

	f.oracle.price = unit - 1
	ok, err = f.vc.IsLiquidatable(ctx, owner)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := f.vc.ListLiquidatable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{owner}, list)
}

func TestLiquidation_ShortfallWritesOffBadDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, liquidator := uuid.New(), uuid.New()
	f.open(t, owner, 1000*unit, 1000*unit)
	require.NoError(t, f.debt.Transfer(owner, liquidator, 1000*unit))
	f.oracle.price = unit / 2

	plan, err := f.vc.CalculateLiquidation(ctx, owner, 1000*unit)
	require.NoError(t, err)
	assert.True(t, plan.Shortfall)
	assert.Equal(t, int64(454_545_454), plan.Repay)

	r, err := f.vc.Liquidate(ctx, liquidator, owner, 1000*unit)
	require.NoError(t, err)
	assert.True(t, r.Closed)
	assert.Equal(t, int64(1000*unit), r.Liquidation.SeizedCollateral)
	assert.Equal(t, int64(454_545_454), r.Liquidation.RepaidDebt)
	assert.Equal(t, int64(545_454_546), r.Liquidation.BadDebt)

	stats, err := f.vc.GetVaultStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(545_454_546), stats.BadDebt)
	assert.Equal(t, int64(0), stats.TotalDebt)
	assert.Equal(t, int64(0), stats.TotalCollateral)
	assert.Equal(t, int64(1000*unit-454_545_454), f.debt.Balance(liquidator))

	last := f.events.envs[len(f.events.envs)-1]
	assert.Equal(t, event.EventTypePositionClosed, last.EventType)
	require.NoError(t, f.vc.CheckInvariants())
}

func TestLiquidation_ExhaustedCollateralWritesOffRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, liquidator := uuid.New(), uuid.New()
	f.open(t, owner, 1100*unit, 1000*unit)
	require.NoError(t, f.debt.Transfer(owner, liquidator, 500*unit))
	f.oracle.price = unit / 2

	// Repaying 500 seizes exactly the 1100 posted.
	r, err := f.vc.Liquidate(ctx, liquidator, owner, 500*unit)
	require.NoError(t, err)
	assert.True(t, r.Closed)
	assert.Equal(t, int64(1100*unit), r.Liquidation.SeizedCollateral)
	assert.Equal(t, int64(500*unit), r.Liquidation.RepaidDebt)
	assert.Equal(t, int64(500*unit), r.Liquidation.BadDebt)
	assert.Equal(t, int64(0), r.Principal)

	ok, err := f.vc.IsLiquidatable(ctx, owner)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.vc.Liquidate(ctx, liquidator, owner, unit)
	assert.ErrorIs(t, err, core.ErrPositionNotFound)

	stats, err := f.vc.GetVaultStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalCollateral)
	assert.Equal(t, int64(0), stats.TotalDebt)
	assert.Equal(t, int64(500*unit), stats.BadDebt)
	assert.Equal(t, 0, stats.ActivePositions)
	assert.Equal(t, int64(1100*unit), f.collateral.Balance(liquidator))
	assert.Equal(t, int64(0), f.debt.Balance(liquidator))
	require.NoError(t, f.vc.CheckInvariants())
}

func TestLiquidation_RepayCappedAtDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, liquidator := uuid.New(), uuid.New()
	f.open(t, owner, 2300*unit, 1000*unit)
	require.NoError(t, f.debt.Transfer(owner, liquidator, 1000*unit))
	f.oracle.price = unit / 2 // ratio 115%

	r, err := f.vc.Liquidate(ctx, liquidator, owner, 5000*unit)
	require.NoError(t, err)
	assert.Equal(t, int64(1000*unit), r.Liquidation.RepaidDebt)
	assert.Equal(t, int64(0), r.Principal)
	assert.Equal(t, int64(0), r.Liquidation.BadDebt)
	assert.Equal(t, int64(2200*unit), r.Liquidation.SeizedCollateral)
	assert.Equal(t, int64(100*unit), r.Collateral)
	assert.False(t, r.Closed, "leftover collateral keeps the position open")
}

func TestLiquidation_TransferOutFailureCompensates(t *testing.T) {
	custody := &failingCustody{CollateralCustody: tokens.NewCollateralCustody()}
	f := newFixture(t, func(d *core.Deps) { d.Collateral = custody })
	f.collateral = custody.CollateralCustody
	ctx := context.Background()
	owner, liquidator := uuid.New(), uuid.New()
	f.open(t, owner, 1150*unit, 1000*unit)
	require.NoError(t, f.debt.Transfer(owner, liquidator, 500*unit))

	custody.failOut = errors.New("custody frozen")
	_, err := f.vc.Liquidate(ctx, liquidator, owner, 500*unit)
	require.ErrorIs(t, err, core.ErrExternalTransfer)

	assert.Equal(t, int64(500*unit), f.debt.Balance(liquidator), "burned tokens are re-minted")
	assert.Equal(t, int64(1150*unit), f.view(t, owner).Collateral)
	assert.Empty(t, f.vc.LiquidationRecords(uuid.Nil, 0))
}

// --- Oracle ---

func TestStalePrice_FailsClosed(t *testing.T) {
	cases := []struct {
		name  string
		setup func(o *fakeOracle)
	}{
		{"stale", func(o *fakeOracle) { o.age = 2 * time.Hour }},
		{"zero", func(o *fakeOracle) { o.price = 0 }},
		{"error", func(o *fakeOracle) { o.err = errors.New("feed down") }},
		{"future", func(o *fakeOracle) { o.age = -time.Minute }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			owner, liquidator := uuid.New(), uuid.New()
			f.open(t, owner, 1500*unit, 1000*unit)
			seq := f.vc.Sequence()

			tc.setup(f.oracle)
			_, err := f.vc.IncreaseDebt(ctx, owner, owner, unit)
			assert.ErrorIs(t, err, core.ErrStalePriceData)
			_, err = f.vc.Liquidate(ctx, liquidator, owner, unit)
			assert.ErrorIs(t, err, core.ErrStalePriceData)
			_, err = f.vc.Withdraw(ctx, owner, unit)
			assert.ErrorIs(t, err, core.ErrStalePriceData)

			assert.Equal(t, seq, f.vc.Sequence())
			assert.False(t, f.vc.Paused())
		})
	}
}

// --- Guards ---

func TestReentrancy_Rejected(t *testing.T) {
	custody := &reentrantCustody{CollateralCustody: tokens.NewCollateralCustody()}
	f := newFixture(t, func(d *core.Deps) { d.Collateral = custody })
	owner := uuid.New()
	require.NoError(t, custody.Fund(owner, 100*unit))

	custody.hook = func(ctx context.Context) error {
		_, err := f.vc.Deposit(ctx, owner, unit)
		return err
	}
	_, err := f.vc.Deposit(context.Background(), owner, 10*unit)
	require.NoError(t, err)
	assert.ErrorIs(t, custody.hookErr, core.ErrReentrancyDetected)
	assert.Equal(t, int64(10*unit), f.view(t, owner).Collateral)
}

func TestPause_BlocksMutationsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, stranger := uuid.New(), uuid.New()
	f.open(t, owner, 100*unit, 0)

	require.ErrorIs(t, f.vc.Pause(ctx, stranger), core.ErrUnauthorized)
	require.NoError(t, f.vc.Pause(ctx, f.admin))

	_, err := f.vc.Deposit(ctx, owner, unit)
	assert.ErrorIs(t, err, core.ErrVaultPaused)
	_, err = f.vc.Withdraw(ctx, owner, unit)
	assert.ErrorIs(t, err, core.ErrVaultPaused)

	_, err = f.vc.GetPosition(ctx, owner)
	assert.NoError(t, err)
	healthy, msg := f.vc.HealthCheck()
	assert.False(t, healthy)
	assert.Equal(t, "vault paused", msg)

	require.NoError(t, f.vc.Unpause(ctx, f.admin))
	_, err = f.vc.Withdraw(ctx, owner, unit)
	assert.NoError(t, err)
}

// --- Admin ---

func TestSetParam_EmitsConfigUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.vc.SetParam(ctx, uuid.New(), state.ParamLiquidationPenalty, 500)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = f.vc.SetParam(ctx, f.admin, state.ParamLiquidationThreshold, 9_000)
	require.ErrorIs(t, err, core.ErrInvalidParams)

	require.NoError(t, f.vc.SetLiquidationPenalty(ctx, f.admin, 500))
	assert.Equal(t, int64(500), f.vc.GetParams().LiquidationPenalty)

	last := f.events.envs[len(f.events.envs)-1]
	upd, ok := last.Payload.(*event.VaultConfigUpdated)
	require.True(t, ok)
	assert.Equal(t, state.ParamLiquidationPenalty, upd.Param)
	assert.Equal(t, int64(1_000), upd.OldValue)
	assert.Equal(t, int64(500), upd.NewValue)
}

func TestSetStabilityFee_AccruesAtOldRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	f.open(t, owner, 3000*unit, 1000*unit)

	f.clock.Advance(time.Duration(fpmath.SecondsPerYear) * time.Second)
	require.NoError(t, f.vc.SetStabilityFee(ctx, f.admin, 0))
	f.clock.Advance(time.Duration(fpmath.SecondsPerYear) * time.Second)

	interest, err := f.vc.AccruedInterest(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(20*unit), interest)
}

func TestRevoke_LastAdminRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.vc.Revoke(ctx, f.admin, f.admin, core.CapAdmin)
	require.ErrorIs(t, err, core.ErrInvalidParams)

	other := uuid.New()
	require.NoError(t, f.vc.Grant(ctx, f.admin, other, core.CapAdmin))
	require.NoError(t, f.vc.Revoke(ctx, other, f.admin, core.CapAdmin))
	assert.False(t, f.vc.HasCapability(f.admin, core.CapAdmin))
}

// --- Hash chain & snapshot ---

func TestStateHash_Chains(t *testing.T) {
	f := newFixture(t)
	f.open(t, uuid.New(), 100*unit, 10*unit)

	envs := f.events.envs
	require.NotEmpty(t, envs)
	for i := 1; i < len(envs); i++ {
		if envs[i].Sequence == envs[i-1].Sequence {
			assert.Equal(t, envs[i-1].StateHash, envs[i].StateHash)
			continue
		}
		assert.Equal(t, envs[i-1].StateHash, envs[i].PrevHash)
	}
	assert.Equal(t, envs[len(envs)-1].StateHash, f.vc.StateHash())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, liquidator := uuid.New(), uuid.New(), uuid.New()
	f.open(t, a, 1150*unit, 1000*unit)
	f.open(t, b, 400*unit, 0)
	require.NoError(t, f.debt.Transfer(a, liquidator, 500*unit))
	f.clock.Advance(24 * time.Hour)
	_, err := f.vc.Liquidate(ctx, liquidator, a, 100*unit)
	require.NoError(t, err)

	snap, err := f.vc.CreateSnapshot()
	require.NoError(t, err)

	g := newFixture(t)
	g.clock.now = f.clock.now
	require.NoError(t, g.vc.RestoreSnapshot(snap))

	assert.Equal(t, f.vc.Sequence(), g.vc.Sequence())
	assert.Equal(t, f.vc.StateHash(), g.vc.StateHash())
	assert.Equal(t, f.view(t, a), g.view(t, a))
	assert.Equal(t, f.view(t, b), g.view(t, b))
	assert.Equal(t, f.vc.LiquidationRecords(uuid.Nil, 0), g.vc.LiquidationRecords(uuid.Nil, 0))
	assert.True(t, g.vc.HasCapability(f.admin, core.CapAdmin))

	// The next operation produces the same hash on both.
	require.NoError(t, g.collateral.Fund(b, 5*unit))
	require.NoError(t, f.collateral.Fund(b, 5*unit))
	r1, err := f.vc.Deposit(ctx, b, 5*unit)
	require.NoError(t, err)
	r2, err := g.vc.Deposit(ctx, b, 5*unit)
	require.NoError(t, err)
	assert.Equal(t, r1.StateHash, r2.StateHash)
}

// --- Collaborator doubles ---

type failingIssuer struct{ err error }

func (i *failingIssuer) Mint(context.Context, uuid.UUID, int64) error { return i.err }
func (i *failingIssuer) Burn(context.Context, uuid.UUID, int64) error { return i.err }

type failingCustody struct {
	*tokens.CollateralCustody
	failOut error
}

func (c *failingCustody) TransferOut(ctx context.Context, to uuid.UUID, amount int64) error {
	if c.failOut != nil {
		return c.failOut
	}
	return c.CollateralCustody.TransferOut(ctx, to, amount)
}

type reentrantCustody struct {
	*tokens.CollateralCustody
	hook    func(ctx context.Context) error
	hookErr error
}

func (c *reentrantCustody) TransferIn(ctx context.Context, from uuid.UUID, amount int64) error {
	if c.hook != nil {
		hook := c.hook
		c.hook = nil
		c.hookErr = hook(ctx)
	}
	return c.CollateralCustody.TransferIn(ctx, from, amount)
}
