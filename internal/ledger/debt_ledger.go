package ledger

import (
	"fmt"
	"sort"

	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// DebtLedger books per-owner principal, the index snapshot each principal was
// last touched at, and two aggregates:
//
//	totalPrincipal: exact sum of booked principal
//	totalScaled:    sum of principal normalized to index 1.0, so the
//	                effective total at any index is one multiplication
type DebtLedger struct {
	book           *BalanceTracker
	snapshots      map[uuid.UUID]*uint256.Int
	scaled         map[uuid.UUID]*uint256.Int
	totalPrincipal int64
	totalScaled    *uint256.Int
}

// DebtEntry is the persisted form of one owner's debt bookkeeping.
type DebtEntry struct {
	Owner    uuid.UUID
	Snapshot string // decimal ray
}

func NewDebtLedger(book *BalanceTracker) *DebtLedger {
	return &DebtLedger{
		book:        book,
		snapshots:   make(map[uuid.UUID]*uint256.Int),
		scaled:      make(map[uuid.UUID]*uint256.Int),
		totalScaled: new(uint256.Int),
	}
}

// Principal returns the booked principal of owner, net of unfolded interest.
func (dl *DebtLedger) Principal(owner uuid.UUID) int64 {
	return dl.book.OwnerPrincipal(owner)
}

// Snapshot returns the index owner's principal was last touched at.
func (dl *DebtLedger) Snapshot(owner uuid.UUID) *uint256.Int {
	if s, ok := dl.snapshots[owner]; ok {
		return new(uint256.Int).Set(s)
	}
	return fpmath.OneRay()
}

// EffectiveDebt returns principal * index / snapshot, rounded up.
func (dl *DebtLedger) EffectiveDebt(owner uuid.UUID, index *uint256.Int) (int64, error) {
	principal := dl.Principal(owner)
	if principal == 0 {
		return 0, nil
	}
	return fpmath.EffectiveDebt(principal, index, dl.snapshots[owner])
}

func (dl *DebtLedger) TotalPrincipal() int64 {
	return dl.totalPrincipal
}

// TotalDebt returns the effective debt of the whole vault at index.
func (dl *DebtLedger) TotalDebt(index *uint256.Int) (int64, error) {
	return fpmath.DebtFromScaled(dl.totalScaled, index)
}

// Owners returns every owner carrying principal, in a stable order.
func (dl *DebtLedger) Owners() []uuid.UUID {
	owners := make([]uuid.UUID, 0, len(dl.snapshots))
	for owner := range dl.snapshots {
		if dl.Principal(owner) > 0 {
			owners = append(owners, owner)
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].String() < owners[j].String()
	})
	return owners
}

// Touch folds interest owed since the last snapshot into principal, booked
// against the system stability-fee account, and advances the snapshot to
// index. Returns the interest folded.
func (dl *DebtLedger) Touch(batch *Batch, owner uuid.UUID, index *uint256.Int) (int64, error) {
	principal := dl.Principal(owner)
	snapshot, known := dl.snapshots[owner]

	if known && index.Lt(snapshot) {
		return 0, fmt.Errorf("index %s is behind snapshot %s for %s", index.Dec(), snapshot.Dec(), owner)
	}

	var owed int64
	if principal > 0 {
		effective, err := fpmath.EffectiveDebt(principal, index, snapshot)
		if err != nil {
			return 0, fmt.Errorf("touch %s: %w", owner, err)
		}
		owed = effective - principal
	}

	if owed > 0 {
		total, err := fpmath.AddChecked(dl.totalPrincipal, owed)
		if err != nil {
			return 0, fmt.Errorf("debt total: %w", err)
		}
		j := batch.add(debtAccount(owner), stabilityFeeAccount(), owed, JournalTypeInterestAccrual)
		dl.book.ApplyJournal(j)
		dl.totalPrincipal = total
	}

	dl.snapshots[owner] = new(uint256.Int).Set(index)
	dl.rescale(owner)
	return owed, nil
}

// Increase books new principal. owner must have been touched at index.
func (dl *DebtLedger) Increase(batch *Batch, owner uuid.UUID, amount int64, index *uint256.Int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debt increase must be > 0, got %d", ErrInvalidAmount, amount)
	}
	if err := dl.requireTouched(owner, index); err != nil {
		return err
	}
	total, err := fpmath.AddChecked(dl.totalPrincipal, amount)
	if err != nil {
		return fmt.Errorf("debt total: %w", err)
	}

	j := batch.add(debtAccount(owner), NewExternalAccountKey(SubTypeExternalDebtIssued, AssetDebt), amount, JournalTypeDebtIssue)
	dl.book.ApplyJournal(j)
	dl.totalPrincipal = total
	dl.rescale(owner)
	return nil
}

// CanDecrease validates a repayment against owner's effective debt at index.
func (dl *DebtLedger) CanDecrease(owner uuid.UUID, amount int64, index *uint256.Int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debt decrease must be > 0, got %d", ErrInvalidAmount, amount)
	}
	effective, err := dl.EffectiveDebt(owner, index)
	if err != nil {
		return err
	}
	if amount > effective {
		return fmt.Errorf("%w: repayment of %s exceeds effective debt %s",
			ErrInsufficientDebt, fpmath.FormatAmount(amount), fpmath.FormatAmount(effective))
	}
	return nil
}

// Decrease books a repayment. owner must have been touched at index.
func (dl *DebtLedger) Decrease(batch *Batch, owner uuid.UUID, amount int64, index *uint256.Int) error {
	return dl.reduce(batch, owner, amount, index, NewExternalAccountKey(SubTypeExternalDebtRepaid, AssetDebt), JournalTypeDebtRepay)
}

// WriteOff removes unrecoverable principal against the system bad-debt account.
func (dl *DebtLedger) WriteOff(batch *Batch, owner uuid.UUID, amount int64, index *uint256.Int) error {
	return dl.reduce(batch, owner, amount, index, badDebtAccount(), JournalTypeBadDebtWriteOff)
}

func (dl *DebtLedger) reduce(batch *Batch, owner uuid.UUID, amount int64, index *uint256.Int, counter AccountKey, jt JournalType) error {
	if err := dl.requireTouched(owner, index); err != nil {
		return err
	}
	if err := dl.CanDecrease(owner, amount, index); err != nil {
		return err
	}

	j := batch.add(counter, debtAccount(owner), amount, jt)
	dl.book.ApplyJournal(j)
	dl.totalPrincipal -= amount
	dl.rescale(owner)
	return nil
}

// Forget drops the snapshot of an owner whose position closed with no debt.
func (dl *DebtLedger) Forget(owner uuid.UUID) {
	if dl.Principal(owner) != 0 {
		return
	}
	if old, ok := dl.scaled[owner]; ok {
		dl.totalScaled.Sub(dl.totalScaled, old)
	}
	delete(dl.scaled, owner)
	delete(dl.snapshots, owner)
}

func (dl *DebtLedger) requireTouched(owner uuid.UUID, index *uint256.Int) error {
	snapshot, ok := dl.snapshots[owner]
	if !ok || !snapshot.Eq(index) {
		return fmt.Errorf("debt of %s not accrued to index %s", owner, index.Dec())
	}
	return nil
}

func (dl *DebtLedger) rescale(owner uuid.UUID) {
	if old, ok := dl.scaled[owner]; ok {
		dl.totalScaled.Sub(dl.totalScaled, old)
	}
	s := fpmath.ScaledDebt(dl.Principal(owner), dl.snapshots[owner])
	dl.scaled[owner] = s
	dl.totalScaled.Add(dl.totalScaled, s)
}

// Entries exports the snapshots for persistence, sorted by owner.
func (dl *DebtLedger) Entries() []DebtEntry {
	entries := make([]DebtEntry, 0, len(dl.snapshots))
	for owner, s := range dl.snapshots {
		entries = append(entries, DebtEntry{Owner: owner, Snapshot: s.Dec()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Owner.String() < entries[j].Owner.String()
	})
	return entries
}

// Restore rebuilds snapshots and aggregates from persisted entries. The book
// must already hold the restored balances.
func (dl *DebtLedger) Restore(entries []DebtEntry) error {
	dl.snapshots = make(map[uuid.UUID]*uint256.Int, len(entries))
	dl.scaled = make(map[uuid.UUID]*uint256.Int, len(entries))
	dl.totalScaled = new(uint256.Int)

	for _, e := range entries {
		s, err := fpmath.ParseRay(e.Snapshot)
		if err != nil {
			return fmt.Errorf("restore debt of %s: %w", e.Owner, err)
		}
		dl.snapshots[e.Owner] = s
		dl.rescale(e.Owner)
	}

	dl.totalPrincipal = dl.book.SumOwnerBalances(SubTypeDebt)
	return nil
}
