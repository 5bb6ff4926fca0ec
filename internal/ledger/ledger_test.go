package ledger_test

import (
	"errors"
	"testing"
	"time"

	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type testLedgers struct {
	book       *ledger.BalanceTracker
	gen        *ledger.JournalGenerator
	collateral *ledger.CollateralLedger
	debt       *ledger.DebtLedger
	validator  *ledger.InvariantValidator
}

func newTestLedgers() *testLedgers {
	book := ledger.NewBalanceTracker()
	collateral := ledger.NewCollateralLedger(book)
	debt := ledger.NewDebtLedger(book)
	return &testLedgers{
		book:       book,
		gen:        ledger.NewJournalGenerator(1),
		collateral: collateral,
		debt:       debt,
		validator:  ledger.NewInvariantValidator(book, collateral, debt),
	}
}

func (l *testLedgers) batch() *ledger.Batch {
	b := l.gen.Begin("test", time.Unix(0, 0))
	l.gen.Advance()
	return b
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_OwnerPath(t *testing.T) {
	owner := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewOwnerAccountKey(owner, ledger.SubTypeCollateral, ledger.AssetCollateral)

	path := key.AccountPath()
	expected := "owner:550e8400-e29b-41d4-a716-446655440000:collateral:COLLATERAL"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	key := ledger.NewSystemAccountKey("vault", ledger.SubTypeSystemBadDebt, ledger.AssetDebt)

	if path := key.AccountPath(); path != "system:bad_debt:DEBT" {
		t.Errorf("got %q, want %q", path, "system:bad_debt:DEBT")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalSeized, ledger.AssetCollateral)

	if path := key.AccountPath(); path != "external:seized:COLLATERAL" {
		t.Errorf("got %q, want %q", path, "external:seized:COLLATERAL")
	}
}

func TestGetAssetID(t *testing.T) {
	if id, ok := ledger.GetAssetID("DEBT"); !ok || id != ledger.AssetDebt {
		t.Errorf("DEBT should map to AssetDebt, got %d %v", id, ok)
	}
	if _, ok := ledger.GetAssetID("DOGE"); ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func validJournal(batchID uuid.UUID) ledger.Journal {
	return ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		DebitAccount:  ledger.NewOwnerAccountKey(uuid.New(), ledger.SubTypeCollateral, ledger.AssetCollateral),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.AssetCollateral),
		AssetID:       ledger.AssetCollateral,
		Amount:        1_000_000,
	}
}

func TestBatchValidate(t *testing.T) {
	batchID := uuid.New()

	tests := []struct {
		name    string
		mutate  func(j *ledger.Journal)
		wantErr bool
	}{
		{"valid", func(j *ledger.Journal) {}, false},
		{"zero amount", func(j *ledger.Journal) { j.Amount = 0 }, true},
		{"negative amount", func(j *ledger.Journal) { j.Amount = -100 }, true},
		{"self transfer", func(j *ledger.Journal) { j.CreditAccount = j.DebitAccount }, true},
		{"mismatched batch", func(j *ledger.Journal) { j.BatchID = uuid.New() }, true},
		{"cross asset", func(j *ledger.Journal) { j.AssetID = ledger.AssetDebt }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := validJournal(batchID)
			tt.mutate(&j)
			batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{j}}

			err := batch.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{BatchID: uuid.New()}
	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_SnapshotIsCopy(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	batchID := uuid.New()
	j := validJournal(batchID)
	bt.ApplyJournal(j)

	snap := bt.Snapshot()
	for k := range snap {
		snap[k] = 0
	}

	if bt.GetBalance(j.DebitAccount) != 1_000_000 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

func TestBalanceTracker_Restore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	j := validJournal(uuid.New())
	bt.ApplyJournal(j)

	restored := ledger.NewBalanceTracker()
	restored.Restore(bt.Snapshot())

	if restored.GetBalance(j.DebitAccount) != 1_000_000 {
		t.Errorf("restored balance: got %d", restored.GetBalance(j.DebitAccount))
	}
	if restored.GetBalance(j.CreditAccount) != -1_000_000 {
		t.Errorf("restored counter balance: got %d", restored.GetBalance(j.CreditAccount))
	}
}

// ============================================================================
// Test: CollateralLedger
// ============================================================================

func TestCollateralLedger_CreditDebit(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()

	if err := l.collateral.Credit(l.batch(), owner, 1_500_000); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := l.collateral.Debit(l.batch(), owner, 500_000, ledger.SubTypeExternalWithdrawals); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	if got := l.collateral.Balance(owner); got != 1_000_000 {
		t.Errorf("balance: got %d, want 1_000_000", got)
	}
	if got := l.collateral.Total(); got != 1_000_000 {
		t.Errorf("total: got %d, want 1_000_000", got)
	}
	if err := l.validator.ValidateAll(fpmath.OneRay()); err != nil {
		t.Errorf("invariants: %v", err)
	}
}

func TestCollateralLedger_RejectsNonPositive(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()

	for _, amount := range []int64{0, -1} {
		err := l.collateral.Credit(l.batch(), owner, amount)
		if !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Credit(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCollateralLedger_InsufficientBalance(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()
	_ = l.collateral.Credit(l.batch(), owner, 100)

	batch := l.batch()
	err := l.collateral.Debit(batch, owner, 101, ledger.SubTypeExternalWithdrawals)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(batch.Journals) != 0 {
		t.Error("failed debit must not write a journal")
	}
	if l.collateral.Balance(owner) != 100 || l.collateral.Total() != 100 {
		t.Error("failed debit must not move balances")
	}
}

func TestCollateralLedger_SeizureCounterAccount(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()
	_ = l.collateral.Credit(l.batch(), owner, 1_000)

	batch := l.batch()
	if err := l.collateral.Debit(batch, owner, 400, ledger.SubTypeExternalSeized); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if batch.Journals[0].JournalType != ledger.JournalTypeSeizure {
		t.Errorf("journal type: got %s", batch.Journals[0].JournalType)
	}
	seized := ledger.NewExternalAccountKey(ledger.SubTypeExternalSeized, ledger.AssetCollateral)
	if l.book.GetBalance(seized) != 400 {
		t.Errorf("seized account: got %d", l.book.GetBalance(seized))
	}
}

// ============================================================================
// Test: DebtLedger
// ============================================================================

var (
	oneRay     = fpmath.OneRay()
	twoPercent = uint256.MustFromDecimal("1020000000000000000000000000")
)

func TestDebtLedger_IncreaseRequiresTouch(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()

	if err := l.debt.Increase(l.batch(), owner, 1_000, oneRay); err == nil {
		t.Fatal("increase before touch should fail")
	}

	b := l.batch()
	if _, err := l.debt.Touch(b, owner, oneRay); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := l.debt.Increase(b, owner, 1_000, oneRay); err != nil {
		t.Fatalf("Increase: %v", err)
	}
	if l.debt.Principal(owner) != 1_000 || l.debt.TotalPrincipal() != 1_000 {
		t.Errorf("principal: got %d / total %d", l.debt.Principal(owner), l.debt.TotalPrincipal())
	}
}

func TestDebtLedger_TouchFoldsInterest(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()

	b := l.batch()
	_, _ = l.debt.Touch(b, owner, oneRay)
	_ = l.debt.Increase(b, owner, 1_000_000_000, oneRay)

	eff, _ := l.debt.EffectiveDebt(owner, twoPercent)
	if eff != 1_020_000_000 {
		t.Fatalf("effective before touch: got %d", eff)
	}

	owed, err := l.debt.Touch(l.batch(), owner, twoPercent)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if owed != 20_000_000 {
		t.Errorf("owed: got %d, want 20_000_000", owed)
	}
	if l.debt.Principal(owner) != 1_020_000_000 {
		t.Errorf("principal after fold: got %d", l.debt.Principal(owner))
	}
	if l.book.StabilityFeesEarned() != 20_000_000 {
		t.Errorf("fees earned: got %d", l.book.StabilityFeesEarned())
	}
	if err := l.validator.ValidateAll(twoPercent); err != nil {
		t.Errorf("invariants: %v", err)
	}
}

func TestDebtLedger_TouchRejectsIndexRegression(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()
	_, _ = l.debt.Touch(l.batch(), owner, twoPercent)

	if _, err := l.debt.Touch(l.batch(), owner, oneRay); err == nil {
		t.Error("touching at an older index should fail")
	}
}

func TestDebtLedger_DecreaseBeyondDebt(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()
	b := l.batch()
	_, _ = l.debt.Touch(b, owner, oneRay)
	_ = l.debt.Increase(b, owner, 500, oneRay)

	err := l.debt.Decrease(l.batch(), owner, 501, oneRay)
	if !errors.Is(err, ledger.ErrInsufficientDebt) {
		t.Fatalf("expected ErrInsufficientDebt, got %v", err)
	}
	if l.debt.Principal(owner) != 500 {
		t.Error("failed decrease must not move principal")
	}
}

func TestDebtLedger_WriteOff(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()
	b := l.batch()
	_, _ = l.debt.Touch(b, owner, oneRay)
	_ = l.debt.Increase(b, owner, 500, oneRay)

	if err := l.debt.WriteOff(l.batch(), owner, 200, oneRay); err != nil {
		t.Fatalf("WriteOff: %v", err)
	}
	if l.book.BadDebt() != 200 {
		t.Errorf("bad debt: got %d, want 200", l.book.BadDebt())
	}
	if l.debt.TotalPrincipal() != 300 {
		t.Errorf("total principal: got %d, want 300", l.debt.TotalPrincipal())
	}
}

func TestDebtLedger_TotalDebtTracksIndex(t *testing.T) {
	l := newTestLedgers()
	owners := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	amounts := []int64{1_000_000_000, 333_333_333, 7}

	b := l.batch()
	for i, owner := range owners {
		_, _ = l.debt.Touch(b, owner, oneRay)
		_ = l.debt.Increase(b, owner, amounts[i], oneRay)
	}

	total, err := l.debt.TotalDebt(oneRay)
	if err != nil {
		t.Fatalf("TotalDebt: %v", err)
	}
	if total != 1_333_333_340 {
		t.Errorf("total at 1.0: got %d, want exact 1_333_333_340", total)
	}

	if err := l.validator.ValidateEffectiveDebt(twoPercent); err != nil {
		t.Errorf("effective debt after accrual: %v", err)
	}
}

func TestDebtLedger_EntriesRestore(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()
	b := l.batch()
	_, _ = l.debt.Touch(b, owner, twoPercent)
	_ = l.debt.Increase(b, owner, 1_000, twoPercent)

	book := ledger.NewBalanceTracker()
	book.Restore(l.book.Snapshot())
	restored := ledger.NewDebtLedger(book)
	if err := restored.Restore(l.debt.Entries()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.TotalPrincipal() != 1_000 {
		t.Errorf("restored principal total: got %d", restored.TotalPrincipal())
	}
	if !restored.Snapshot(owner).Eq(twoPercent) {
		t.Errorf("restored snapshot: got %s", restored.Snapshot(owner).Dec())
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_DetectsDrift(t *testing.T) {
	l := newTestLedgers()
	owner := uuid.New()
	_ = l.collateral.Credit(l.batch(), owner, 1_000)

	// A journal applied behind the collateral ledger's back breaks the total.
	l.book.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		DebitAccount:  ledger.NewOwnerAccountKey(owner, ledger.SubTypeCollateral, ledger.AssetCollateral),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.AssetCollateral),
		AssetID:       ledger.AssetCollateral,
		Amount:        1,
	})

	if err := l.validator.ValidateCollateralTotal(); err == nil {
		t.Error("expected collateral total drift to be detected")
	}
	if err := l.validator.ValidateGlobalBalance(); err != nil {
		t.Errorf("book itself is still zero-sum: %v", err)
	}
}
