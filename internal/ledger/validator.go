package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker    *BalanceTracker
	collateral *CollateralLedger
	debt       *DebtLedger
}

func NewInvariantValidator(tracker *BalanceTracker, collateral *CollateralLedger, debt *DebtLedger) *InvariantValidator {
	return &InvariantValidator{
		tracker:    tracker,
		collateral: collateral,
		debt:       debt,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the book is zero-sum per asset
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}

// ValidateCollateralTotal verifies totalCollateral equals the sum of owner
// collateral balances.
func (v *InvariantValidator) ValidateCollateralTotal() error {
	sum := v.tracker.SumOwnerBalances(SubTypeCollateral)
	if sum != v.collateral.Total() {
		return fmt.Errorf("collateral total %d != sum of owner balances %d", v.collateral.Total(), sum)
	}
	return nil
}

// ValidatePrincipalTotal verifies the booked principal total is exact.
func (v *InvariantValidator) ValidatePrincipalTotal() error {
	sum := v.tracker.SumOwnerBalances(SubTypeDebt)
	if sum != v.debt.TotalPrincipal() {
		return fmt.Errorf("principal total %d != sum of owner principal %d", v.debt.TotalPrincipal(), sum)
	}
	return nil
}

// ValidateEffectiveDebt verifies the index-derived total against the sum of
// per-owner effective debt. Each owner's figure is rounded up on its own, so
// the sum may exceed the total by at most one unit per indebted owner.
func (v *InvariantValidator) ValidateEffectiveDebt(index *uint256.Int) error {
	total, err := v.debt.TotalDebt(index)
	if err != nil {
		return fmt.Errorf("total debt: %w", err)
	}

	owners := v.debt.Owners()
	var sum int64
	for _, owner := range owners {
		eff, err := v.debt.EffectiveDebt(owner, index)
		if err != nil {
			return fmt.Errorf("effective debt of %s: %w", owner, err)
		}
		sum += eff
	}

	if diff := sum - total; diff < 0 || diff > int64(len(owners)) {
		return fmt.Errorf("effective debt total %d drifted from owner sum %d across %d owners", total, sum, len(owners))
	}
	return nil
}

// ValidateNonNegative checks owner-scoped balances never go negative
func (v *InvariantValidator) ValidateNonNegative() error {
	for key, balance := range v.tracker.balances {
		if key.Scope == AccountScopeOwner && balance < 0 {
			return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
		}
	}
	return nil
}

// ValidateAll runs every ledger invariant.
func (v *InvariantValidator) ValidateAll(index *uint256.Int) error {
	checks := []func() error{
		v.ValidateGlobalBalance,
		v.ValidateNonNegative,
		v.ValidateCollateralTotal,
		v.ValidatePrincipalTotal,
		func() error { return v.ValidateEffectiveDebt(index) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
