package state

import (
	"errors"
	"fmt"

	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

var (
	ErrNotLiquidatable        = errors.New("position not liquidatable")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
)

// LiquidationInput is the position and parameter state a liquidation is
// planned against. Debt is effective debt at the current index.
type LiquidationInput struct {
	Collateral    int64
	EffectiveDebt int64
	Price         int64
	Repay         int64
	ThresholdBps  int64
	PenaltyBps    int64
}

// LiquidationPlan is the full outcome of a liquidation, computed before any
// ledger or token is touched.
type LiquidationPlan struct {
	Repay               int64 // debt burned from the liquidator
	Seized              int64 // collateral transferred to the liquidator
	Penalty             int64 // part of Seized beyond the value of Repay
	BadDebt             int64 // debt written off to the protocol on shortfall
	Shortfall           bool
	RemainingCollateral int64
	RemainingDebt       int64
	Closes              bool
}

// LiquidationRecord is one entry of the append-only liquidation log.
type LiquidationRecord struct {
	ID               uuid.UUID
	Sequence         int64
	Owner            uuid.UUID
	Liquidator       uuid.UUID
	RepaidDebt       int64
	SeizedCollateral int64
	Penalty          int64
	BadDebt          int64
	Price            int64
	Timestamp        int64 // epoch microseconds
}

// IsLiquidatable reports debt > 0 and ratio strictly below threshold.
func IsLiquidatable(collateral, debt, price, thresholdBps int64) bool {
	return debt > 0 && fpmath.RatioBelow(collateral, price, debt, thresholdBps)
}

// Quote computes the outcome of repaying in.Repay without checking
// eligibility.
//
// Shortfall policy: when the penalized seizure takes all collateral left
// while debt remains, all collateral is seized, the repayment shrinks to
// what that collateral covers, and the remaining debt is written off as
// protocol bad debt. The position closes. The liquidator always burns at
// least one base unit for the collateral it receives.
func Quote(in LiquidationInput) (LiquidationPlan, error) {
	if in.Repay <= 0 {
		return LiquidationPlan{}, fmt.Errorf("%w: repay amount must be > 0, got %d", ledger.ErrInvalidAmount, in.Repay)
	}
	if in.Price <= 0 {
		return LiquidationPlan{}, fmt.Errorf("liquidation quote: price must be > 0, got %d", in.Price)
	}
	if in.EffectiveDebt <= 0 {
		return LiquidationPlan{}, fmt.Errorf("%w: position has no debt", ErrNotLiquidatable)
	}
	if in.Collateral <= 0 {
		return LiquidationPlan{}, fmt.Errorf("%w: no collateral left against debt %s",
			ErrInsufficientCollateral, fpmath.FormatAmount(in.EffectiveDebt))
	}

	plan := LiquidationPlan{Repay: min(in.Repay, in.EffectiveDebt)}

	seized, err := fpmath.SeizeAmount(plan.Repay, in.PenaltyBps, in.Price)
	if err != nil {
		return LiquidationPlan{}, fmt.Errorf("seize amount: %w", err)
	}

	if seized > in.Collateral || (seized == in.Collateral && plan.Repay < in.EffectiveDebt) {
		covered, err := fpmath.RepayCoveredBy(in.Collateral, in.PenaltyBps, in.Price)
		if err != nil {
			return LiquidationPlan{}, fmt.Errorf("shortfall repayment: %w", err)
		}
		plan.Shortfall = true
		plan.Repay = min(max(covered, 1), in.EffectiveDebt)
		plan.Seized = in.Collateral
		plan.BadDebt = in.EffectiveDebt - plan.Repay
	} else {
		plan.Seized = seized
	}

	base, err := fpmath.MulDiv(plan.Repay, fpmath.PriceConfig.Scale, in.Price, fpmath.RoundDown)
	if err != nil {
		return LiquidationPlan{}, fmt.Errorf("repaid value: %w", err)
	}
	plan.Penalty = max(plan.Seized-base, 0)

	plan.RemainingCollateral = in.Collateral - plan.Seized
	plan.RemainingDebt = in.EffectiveDebt - plan.Repay - plan.BadDebt
	plan.Closes = plan.RemainingCollateral == 0 && plan.RemainingDebt == 0
	return plan, nil
}

// Plan checks eligibility and quotes the liquidation.
func Plan(in LiquidationInput) (LiquidationPlan, error) {
	if !IsLiquidatable(in.Collateral, in.EffectiveDebt, in.Price, in.ThresholdBps) {
		if in.EffectiveDebt <= 0 {
			return LiquidationPlan{}, fmt.Errorf("%w: position has no debt", ErrNotLiquidatable)
		}
		ratio := fpmath.CollateralRatioBps(in.Collateral, in.Price, in.EffectiveDebt)
		return LiquidationPlan{}, fmt.Errorf("%w: ratio %s is not below liquidation threshold %s",
			ErrNotLiquidatable, fpmath.FormatBps(ratio), fpmath.FormatBps(in.ThresholdBps))
	}
	return Quote(in)
}

// LiquidationEngine keeps the append-only liquidation log.
type LiquidationEngine struct {
	records []LiquidationRecord
}

func NewLiquidationEngine() *LiquidationEngine {
	return &LiquidationEngine{}
}

// Append records a completed liquidation.
func (le *LiquidationEngine) Append(rec LiquidationRecord) {
	le.records = append(le.records, rec)
}

// Records returns the log, optionally filtered by owner (uuid.Nil = all),
// newest last, at most limit entries from the tail (0 = no limit).
func (le *LiquidationEngine) Records(owner uuid.UUID, limit int) []LiquidationRecord {
	out := make([]LiquidationRecord, 0)
	for _, rec := range le.records {
		if owner == uuid.Nil || rec.Owner == owner {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Count returns the number of records.
func (le *LiquidationEngine) Count() int {
	return len(le.records)
}

// Restore replaces the log (used for snapshot restore).
func (le *LiquidationEngine) Restore(records []LiquidationRecord) {
	le.records = append([]LiquidationRecord(nil), records...)
}
