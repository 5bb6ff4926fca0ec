package ledger

import (
	"errors"
	"fmt"

	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientDebt    = errors.New("insufficient debt")
)

// CollateralLedger books per-owner collateral and the vault total. It holds
// no business rules: ratio checks belong to the caller.
type CollateralLedger struct {
	book  *BalanceTracker
	total int64
}

func NewCollateralLedger(book *BalanceTracker) *CollateralLedger {
	return &CollateralLedger{book: book}
}

// Balance returns the collateral booked to owner.
func (cl *CollateralLedger) Balance(owner uuid.UUID) int64 {
	return cl.book.OwnerCollateral(owner)
}

// Total returns totalCollateral.
func (cl *CollateralLedger) Total() int64 {
	return cl.total
}

// CanCredit validates a credit without applying it.
func (cl *CollateralLedger) CanCredit(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: collateral credit must be > 0, got %d", ErrInvalidAmount, amount)
	}
	if _, err := fpmath.AddChecked(cl.total, amount); err != nil {
		return fmt.Errorf("collateral total: %w", err)
	}
	return nil
}

// CanDebit validates a debit without applying it.
func (cl *CollateralLedger) CanDebit(owner uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: collateral debit must be > 0, got %d", ErrInvalidAmount, amount)
	}
	if balance := cl.Balance(owner); amount > balance {
		return fmt.Errorf("%w: debit of %s exceeds collateral balance %s",
			ErrInsufficientBalance, fpmath.FormatAmount(amount), fpmath.FormatAmount(balance))
	}
	return nil
}

// Credit books amount to owner against the external deposits account. The
// owner balance and the total move together.
func (cl *CollateralLedger) Credit(batch *Batch, owner uuid.UUID, amount int64) error {
	if err := cl.CanCredit(amount); err != nil {
		return err
	}

	j := batch.add(
		collateralAccount(owner),
		NewExternalAccountKey(SubTypeExternalDeposits, AssetCollateral),
		amount,
		JournalTypeDeposit,
	)
	cl.book.ApplyJournal(j)
	cl.total += amount
	return nil
}

// Debit removes amount from owner. counter is SubTypeExternalWithdrawals for
// an owner withdrawal or SubTypeExternalSeized for a liquidation.
func (cl *CollateralLedger) Debit(batch *Batch, owner uuid.UUID, amount int64, counter AccountSubType) error {
	var jt JournalType
	switch counter {
	case SubTypeExternalWithdrawals:
		jt = JournalTypeWithdrawal
	case SubTypeExternalSeized:
		jt = JournalTypeSeizure
	default:
		return fmt.Errorf("collateral debit: unsupported counter account %d", counter)
	}

	if err := cl.CanDebit(owner, amount); err != nil {
		return err
	}

	j := batch.add(
		NewExternalAccountKey(counter, AssetCollateral),
		collateralAccount(owner),
		amount,
		jt,
	)
	cl.book.ApplyJournal(j)
	cl.total -= amount
	return nil
}

// Recount rebuilds the total from the book after a restore.
func (cl *CollateralLedger) Recount() {
	cl.total = cl.book.SumOwnerBalances(SubTypeCollateral)
}
