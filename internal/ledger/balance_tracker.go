package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker is the double-entry book behind the collateral and debt
// ledgers. Every balance movement in the vault is a journal applied here.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// OwnerCollateral returns the collateral booked to owner.
func (bt *BalanceTracker) OwnerCollateral(owner uuid.UUID) int64 {
	return bt.GetBalance(collateralAccount(owner))
}

// OwnerPrincipal returns the debt principal booked to owner.
func (bt *BalanceTracker) OwnerPrincipal(owner uuid.UUID) int64 {
	return bt.GetBalance(debtAccount(owner))
}

// StabilityFeesEarned returns interest folded into principal so far.
func (bt *BalanceTracker) StabilityFeesEarned() int64 {
	return -bt.GetBalance(stabilityFeeAccount())
}

// BadDebt returns debt written off by shortfall liquidations so far.
func (bt *BalanceTracker) BadDebt() int64 {
	return bt.GetBalance(badDebtAccount())
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// SumOwnerBalances sums every owner-scoped balance of subType.
func (bt *BalanceTracker) SumOwnerBalances(subType AccountSubType) int64 {
	var sum int64
	for key, balance := range bt.balances {
		if key.Scope == AccountScopeOwner && key.SubType == subType {
			sum += balance
		}
	}
	return sum
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing and persistence)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances with a previously taken snapshot.
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		if v != 0 {
			bt.balances[k] = v
		}
	}
}
