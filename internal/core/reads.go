package core

import (
	"context"
	"encoding/hex"
	"fmt"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// PositionView is an owner's position as of the current time, interest
// previewed but not committed.
type PositionView struct {
	Owner           uuid.UUID
	Generation      int64
	Status          state.PositionStatus
	Collateral      int64
	Principal       int64
	EffectiveDebt   int64
	AccruedInterest int64
	IndexSnapshot   string // decimal ray
	OpenedAt        int64
	ClosedAt        int64
}

// VaultStats summarizes the vault. AverageRatioBps is only meaningful when
// PriceAvailable is set.
type VaultStats struct {
	Sequence        int64
	StateHash       string
	TotalCollateral int64
	TotalPrincipal  int64
	TotalDebt       int64
	ActivePositions int
	IndebtedOwners  int
	BadDebt         int64
	StabilityFees   int64
	InterestIndex   string
	Price           int64
	PriceAvailable  bool
	AverageRatioBps int64
	Liquidations    int
	Paused          bool
	Params          state.VaultParams
}

// read enters the guard for a read-only call so token callbacks cannot
// observe state mid-operation.
func (vc *VaultCoordinator) read(name string) (func(), error) {
	if err := vc.guard.enter(name); err != nil {
		return nil, err
	}
	return vc.guard.exit, nil
}

func (vc *VaultCoordinator) GetPosition(ctx context.Context, owner uuid.UUID) (PositionView, error) {
	done, err := vc.read("get_position")
	if err != nil {
		return PositionView{}, err
	}
	defer done()
	return vc.positionView(owner)
}

func (vc *VaultCoordinator) positionView(owner uuid.UUID) (PositionView, error) {
	pos := vc.positions.Get(owner)
	if pos == nil {
		return PositionView{}, fmt.Errorf("%w: %s has never opened a position", ErrPositionNotFound, owner)
	}
	index, err := vc.interest.Preview(vc.clock.Now())
	if err != nil {
		return PositionView{}, err
	}
	debt, err := vc.debt.EffectiveDebt(owner, index)
	if err != nil {
		return PositionView{}, err
	}
	principal := vc.debt.Principal(owner)
	return PositionView{
		Owner:           owner,
		Generation:      pos.Generation,
		Status:          pos.Status,
		Collateral:      vc.collateral.Balance(owner),
		Principal:       principal,
		EffectiveDebt:   debt,
		AccruedInterest: debt - principal,
		IndexSnapshot:   vc.debt.Snapshot(owner).Dec(),
		OpenedAt:        pos.OpenedAt,
		ClosedAt:        pos.ClosedAt,
	}, nil
}

// GetRatio returns the collateral ratio in basis points, InfiniteRatio when
// the position has no debt.
func (vc *VaultCoordinator) GetRatio(ctx context.Context, owner uuid.UUID) (int64, error) {
	done, err := vc.read("get_ratio")
	if err != nil {
		return 0, err
	}
	defer done()

	view, err := vc.positionView(owner)
	if err != nil {
		return 0, err
	}
	if view.EffectiveDebt == 0 {
		return fpmath.InfiniteRatio, nil
	}
	price, err := vc.price(ctx, vc.clock.Now())
	if err != nil {
		return 0, err
	}
	return fpmath.CollateralRatioBps(view.Collateral, price, view.EffectiveDebt), nil
}

// GetMaxMintable returns collateral * price / minRatio - effectiveDebt,
// floored at zero.
func (vc *VaultCoordinator) GetMaxMintable(ctx context.Context, owner uuid.UUID) (int64, error) {
	done, err := vc.read("get_max_mintable")
	if err != nil {
		return 0, err
	}
	defer done()

	view, err := vc.positionView(owner)
	if err != nil {
		return 0, err
	}
	price, err := vc.price(ctx, vc.clock.Now())
	if err != nil {
		return 0, err
	}
	limit := fpmath.MaxDebtAt(view.Collateral, price, vc.params.Get().MinCollateralRatio)
	return max(limit-view.EffectiveDebt, 0), nil
}

// AccruedInterest returns interest owed by owner and not yet folded into
// principal.
func (vc *VaultCoordinator) AccruedInterest(ctx context.Context, owner uuid.UUID) (int64, error) {
	done, err := vc.read("accrued_interest")
	if err != nil {
		return 0, err
	}
	defer done()

	view, err := vc.positionView(owner)
	if err != nil {
		return 0, err
	}
	return view.AccruedInterest, nil
}

// IsLiquidatable reports whether owner's position is below the liquidation
// threshold at the current price.
func (vc *VaultCoordinator) IsLiquidatable(ctx context.Context, owner uuid.UUID) (bool, error) {
	done, err := vc.read("is_liquidatable")
	if err != nil {
		return false, err
	}
	defer done()

	view, err := vc.positionView(owner)
	if err != nil {
		return false, err
	}
	if view.EffectiveDebt == 0 {
		return false, nil
	}
	price, err := vc.price(ctx, vc.clock.Now())
	if err != nil {
		return false, err
	}
	return state.IsLiquidatable(view.Collateral, view.EffectiveDebt, price, vc.params.Get().LiquidationThreshold), nil
}

// CalculateLiquidation quotes repaying repay of owner's debt without
// checking eligibility or changing state.
func (vc *VaultCoordinator) CalculateLiquidation(ctx context.Context, owner uuid.UUID, repay int64) (state.LiquidationPlan, error) {
	done, err := vc.read("calculate_liquidation")
	if err != nil {
		return state.LiquidationPlan{}, err
	}
	defer done()

	view, err := vc.positionView(owner)
	if err != nil {
		return state.LiquidationPlan{}, err
	}
	price, err := vc.price(ctx, vc.clock.Now())
	if err != nil {
		return state.LiquidationPlan{}, err
	}
	params := vc.params.Get()
	return state.Quote(state.LiquidationInput{
		Collateral:    view.Collateral,
		EffectiveDebt: view.EffectiveDebt,
		Price:         price,
		Repay:         repay,
		ThresholdBps:  params.LiquidationThreshold,
		PenaltyBps:    params.LiquidationPenalty,
	})
}

// ListLiquidatable returns every owner currently eligible for liquidation,
// sorted.
func (vc *VaultCoordinator) ListLiquidatable(ctx context.Context) ([]uuid.UUID, error) {
	done, err := vc.read("list_liquidatable")
	if err != nil {
		return nil, err
	}
	defer done()

	now := vc.clock.Now()
	price, err := vc.price(ctx, now)
	if err != nil {
		return nil, err
	}
	index, err := vc.interest.Preview(now)
	if err != nil {
		return nil, err
	}
	threshold := vc.params.Get().LiquidationThreshold

	out := make([]uuid.UUID, 0)
	for _, owner := range vc.debt.Owners() {
		debt, err := vc.debt.EffectiveDebt(owner, index)
		if err != nil {
			return nil, err
		}
		if state.IsLiquidatable(vc.collateral.Balance(owner), debt, price, threshold) {
			out = append(out, owner)
		}
	}
	return out, nil
}

// GetVaultStats summarizes the vault. A failed price read leaves
// PriceAvailable unset instead of failing the call.
func (vc *VaultCoordinator) GetVaultStats(ctx context.Context) (VaultStats, error) {
	done, err := vc.read("vault_stats")
	if err != nil {
		return VaultStats{}, err
	}
	defer done()

	now := vc.clock.Now()
	index, err := vc.interest.Preview(now)
	if err != nil {
		return VaultStats{}, err
	}
	total, err := vc.debt.TotalDebt(index)
	if err != nil {
		return VaultStats{}, err
	}
	tip := vc.hasher.GetPrevHash()

	stats := VaultStats{
		Sequence:        vc.journals.Sequence(),
		StateHash:       hex.EncodeToString(tip[:]),
		TotalCollateral: vc.collateral.Total(),
		TotalPrincipal:  vc.debt.TotalPrincipal(),
		TotalDebt:       total,
		ActivePositions: vc.positions.ActiveCount(),
		IndebtedOwners:  len(vc.debt.Owners()),
		BadDebt:         vc.book.BadDebt(),
		StabilityFees:   vc.book.StabilityFeesEarned(),
		InterestIndex:   index.Dec(),
		Liquidations:    vc.liquidations.Count(),
		Paused:          vc.paused,
		Params:          vc.params.Get(),
	}
	if price, err := vc.price(ctx, now); err == nil {
		stats.Price = price
		stats.PriceAvailable = true
		stats.AverageRatioBps = fpmath.CollateralRatioBps(stats.TotalCollateral, price, total)
	}
	return stats, nil
}

// HealthCheck reports whether the vault is serving normally.
func (vc *VaultCoordinator) HealthCheck() (bool, string) {
	done, err := vc.read("health_check")
	if err != nil {
		return false, err.Error()
	}
	defer done()

	if vc.paused {
		return false, "vault paused"
	}
	if err := vc.validator.ValidateAll(vc.interest.Index()); err != nil {
		return false, fmt.Sprintf("invariant check failed: %v", err)
	}
	return true, "ok"
}

// CheckInvariants runs the full ledger reconciliation at the committed index.
func (vc *VaultCoordinator) CheckInvariants() error {
	done, err := vc.read("check_invariants")
	if err != nil {
		return err
	}
	defer done()
	return vc.validator.ValidateAll(vc.interest.Index())
}

func (vc *VaultCoordinator) GetParams() state.VaultParams {
	return vc.params.Get()
}

// LiquidationRecords returns the liquidation log, filtered by owner
// (uuid.Nil for all), at most limit entries from the tail (0 for all).
func (vc *VaultCoordinator) LiquidationRecords(owner uuid.UUID, limit int) []state.LiquidationRecord {
	return vc.liquidations.Records(owner, limit)
}

// PositionHistory returns owner's closed positions, oldest first.
func (vc *VaultCoordinator) PositionHistory(owner uuid.UUID) []state.Position {
	return vc.positions.History(owner)
}

func (vc *VaultCoordinator) HasCapability(caller uuid.UUID, c Capability) bool {
	return vc.access.Has(caller, c)
}

func (vc *VaultCoordinator) Paused() bool {
	return vc.paused
}

// Sequence returns the sequence the next committed operation will carry.
func (vc *VaultCoordinator) Sequence() int64 {
	return vc.journals.Sequence()
}

func (vc *VaultCoordinator) StateHash() [32]byte {
	return vc.hasher.GetPrevHash()
}
