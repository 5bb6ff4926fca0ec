package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// invariantCheckInterval is how often (in operations) the full ledger
// reconciliation runs after a commit.
const invariantCheckInterval = 1000

// Config is the static configuration of one vault instance.
type Config struct {
	Params          state.VaultParams
	CollateralAsset string      // asset name passed to the oracle
	Admins          []uuid.UUID // granted every capability at construction
}

// Deps are the external collaborators of the coordinator.
type Deps struct {
	Collateral CollateralTokenLedger
	Debt       DebtTokenIssuer
	Oracle     PriceOracle
	Events     EventLog               // optional
	Clock      Clock                  // optional, defaults to SystemClock
	Metrics    *observability.Metrics // optional
}

// VaultCoordinator is the single entry point for every vault operation. It
// is a single-writer state machine: callers serialize access (see
// internal/service). Each mutating operation validates against a preview of
// the interest index and the oracle price, performs the external token
// movements, and only then books the ledger changes, so a failure at any
// step leaves no state behind.
type VaultCoordinator struct {
	asset string

	book         *ledger.BalanceTracker
	collateral   *ledger.CollateralLedger
	debt         *ledger.DebtLedger
	journals     *ledger.JournalGenerator
	validator    *ledger.InvariantValidator
	positions    *state.PositionDirectory
	interest     *state.InterestAccrual
	params       *state.VaultParamsManager
	liquidations *state.LiquidationEngine
	access       *AccessControl
	hasher       *StateHasher

	guard  reentrancyGuard
	paused bool

	collateralToken CollateralTokenLedger
	debtToken       DebtTokenIssuer
	oracle          PriceOracle
	events          EventLog
	clock           Clock
	metrics         *observability.Metrics
}

func NewVaultCoordinator(cfg Config, deps Deps) (*VaultCoordinator, error) {
	params, err := state.NewVaultParamsManager(cfg.Params)
	if err != nil {
		return nil, err
	}
	if cfg.CollateralAsset == "" {
		return nil, fmt.Errorf("%w: collateral asset name is required", ErrInvalidParams)
	}
	if deps.Collateral == nil || deps.Debt == nil || deps.Oracle == nil {
		return nil, errors.New("collateral token, debt token and oracle are required")
	}
	if deps.Events == nil {
		deps.Events = discardLog{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}

	book := ledger.NewBalanceTracker()
	collateral := ledger.NewCollateralLedger(book)
	debt := ledger.NewDebtLedger(book)

	vc := &VaultCoordinator{
		asset:           cfg.CollateralAsset,
		book:            book,
		collateral:      collateral,
		debt:            debt,
		journals:        ledger.NewJournalGenerator(0),
		validator:       ledger.NewInvariantValidator(book, collateral, debt),
		positions:       state.NewPositionDirectory(),
		interest:        state.NewInterestAccrual(cfg.Params.StabilityFee, deps.Clock.Now()),
		params:          params,
		liquidations:    state.NewLiquidationEngine(),
		access:          NewAccessControl(),
		hasher:          NewStateHasher(),
		collateralToken: deps.Collateral,
		debtToken:       deps.Debt,
		oracle:          deps.Oracle,
		events:          deps.Events,
		clock:           deps.Clock,
		metrics:         deps.Metrics,
	}
	for _, admin := range cfg.Admins {
		vc.access.Grant(admin, CapAdmin)
		vc.access.Grant(admin, CapIssueDebt)
		vc.access.Grant(admin, CapPause)
	}
	return vc, nil
}

// Receipt describes a committed operation.
type Receipt struct {
	Sequence       int64
	RequestID      string
	Owner          uuid.UUID
	Collateral     int64 // owner collateral after the operation
	Principal      int64 // owner principal after the operation
	InterestFolded int64
	Closed         bool
	Liquidation    *state.LiquidationRecord
	StateHash      [32]byte
}

// operation carries the per-call context from begin to finish.
type operation struct {
	name      string
	ctx       context.Context
	requestID string
	now       time.Time
	started   time.Time
	batch     *ledger.Batch
	payloads  []event.Event
	owner     uuid.UUID
	touched   map[uuid.UUID]bool
}

func (vc *VaultCoordinator) begin(ctx context.Context, name string, userMutation bool) (*operation, error) {
	if err := vc.guard.enter(name); err != nil {
		vc.reject(name, err)
		return nil, err
	}
	if userMutation && vc.paused {
		vc.guard.exit()
		err := fmt.Errorf("%w: %s rejected while the vault is paused", ErrVaultPaused, name)
		vc.reject(name, err)
		return nil, err
	}

	now := vc.clock.Now()
	requestID := RequestID(ctx)
	return &operation{
		name:      name,
		ctx:       ctx,
		requestID: requestID,
		now:       now,
		started:   time.Now(),
		batch:     vc.journals.Begin(requestID, now),
		touched:   make(map[uuid.UUID]bool),
	}, nil
}

// end releases the guard and records the outcome. err points at the named
// result of the public operation.
func (vc *VaultCoordinator) end(op *operation, err *error) {
	vc.guard.exit()
	if *err != nil {
		vc.reject(op.name, *err)
		return
	}
	if vc.metrics != nil {
		vc.metrics.CoreOpsApplied.WithLabelValues(op.name).Inc()
		vc.metrics.CoreOpDuration.WithLabelValues(op.name).Observe(time.Since(op.started).Seconds())
	}
}

func (vc *VaultCoordinator) reject(name string, err error) {
	if vc.metrics != nil {
		vc.metrics.CoreOpsRejected.WithLabelValues(name, Reason(err)).Inc()
	}
}

func (op *operation) touch(owner uuid.UUID) {
	op.touched[owner] = true
}

func (op *operation) emit(p event.Event) {
	op.payloads = append(op.payloads, p)
}

// must panics on a ledger error after validation passed: the operation has
// already moved external tokens and cannot be reported as a clean failure.
func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("FATAL: commit failed after validation: %v", err))
	}
}

// Deposit moves amount of collateral into custody and credits owner,
// opening a position if owner has none.
func (vc *VaultCoordinator) Deposit(ctx context.Context, owner uuid.UUID, amount int64) (r Receipt, err error) {
	op, err := vc.begin(ctx, "deposit", true)
	if err != nil {
		return Receipt{}, err
	}
	defer vc.end(op, &err)

	if err := vc.collateral.CanCredit(amount); err != nil {
		return Receipt{}, err
	}

	if err := vc.collateralToken.TransferIn(ctx, owner, amount); err != nil {
		return Receipt{}, fmt.Errorf("%w: collateral transfer in of %s from %s: %v",
			ErrExternalTransfer, fpmath.FormatAmount(amount), owner, err)
	}

	// Commit
	op.owner = owner
	op.touch(owner)
	if vc.positions.NeedsOpen(owner) {
		pos, err := vc.positions.Open(owner, op.now.UnixMicro())
		must(err)
		op.emit(&event.PositionOpened{Owner: owner, Generation: pos.Generation})
	}
	must(vc.collateral.Credit(op.batch, owner, amount))
	op.emit(&event.Deposited{Owner: owner, Amount: amount, Collateral: vc.collateral.Balance(owner)})

	return vc.finish(op), nil
}

// Withdraw returns amount of collateral to owner. With debt outstanding the
// remaining collateral must keep the position at or above the minimum ratio.
func (vc *VaultCoordinator) Withdraw(ctx context.Context, owner uuid.UUID, amount int64) (r Receipt, err error) {
	op, err := vc.begin(ctx, "withdraw", true)
	if err != nil {
		return Receipt{}, err
	}
	defer vc.end(op, &err)

	if amount <= 0 {
		return Receipt{}, fmt.Errorf("%w: withdrawal must be > 0, got %d", ErrInvalidAmount, amount)
	}
	if _, err := vc.positions.Active(owner); err != nil {
		return Receipt{}, err
	}
	if err := vc.collateral.CanDebit(owner, amount); err != nil {
		return Receipt{}, err
	}

	if vc.debt.Principal(owner) > 0 {
		index, err := vc.interest.Preview(op.now)
		if err != nil {
			return Receipt{}, err
		}
		debt, err := vc.debt.EffectiveDebt(owner, index)
		if err != nil {
			return Receipt{}, err
		}
		price, err := vc.price(ctx, op.now)
		if err != nil {
			return Receipt{}, err
		}
		remaining := vc.collateral.Balance(owner) - amount
		if err := vc.requireMinRatio("withdrawal", remaining, price, debt); err != nil {
			return Receipt{}, err
		}
	}

	if err := vc.collateralToken.TransferOut(ctx, owner, amount); err != nil {
		return Receipt{}, fmt.Errorf("%w: collateral transfer out of %s to %s: %v",
			ErrExternalTransfer, fpmath.FormatAmount(amount), owner, err)
	}

	// Commit
	op.owner = owner
	op.touch(owner)
	must(vc.collateral.Debit(op.batch, owner, amount, ledger.SubTypeExternalWithdrawals))
	op.emit(&event.Withdrawn{Owner: owner, Amount: amount, Collateral: vc.collateral.Balance(owner)})
	closed := vc.closeIfEmpty(op, owner, "repaid")

	r = vc.finish(op)
	r.Closed = closed
	return r, nil
}

// IncreaseDebt mints amount of the debt asset to owner. caller must be the
// owner or hold CapIssueDebt.
func (vc *VaultCoordinator) IncreaseDebt(ctx context.Context, caller, owner uuid.UUID, amount int64) (r Receipt, err error) {
	op, err := vc.begin(ctx, "increase_debt", true)
	if err != nil {
		return Receipt{}, err
	}
	defer vc.end(op, &err)

	if amount <= 0 {
		return Receipt{}, fmt.Errorf("%w: debt increase must be > 0, got %d", ErrInvalidAmount, amount)
	}
	if caller != owner && !vc.access.Has(caller, CapIssueDebt) {
		return Receipt{}, fmt.Errorf("%w: %s may not issue debt against %s without capability %q",
			ErrUnauthorized, caller, owner, CapIssueDebt)
	}
	if _, err := vc.positions.Active(owner); err != nil {
		return Receipt{}, err
	}

	index, err := vc.interest.Preview(op.now)
	if err != nil {
		return Receipt{}, err
	}
	current, err := vc.debt.EffectiveDebt(owner, index)
	if err != nil {
		return Receipt{}, err
	}
	next, err := fpmath.AddChecked(current, amount)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: debt of %s would overflow", ErrInvalidAmount, owner)
	}

	params := vc.params.Get()
	if params.DebtCeiling > 0 {
		total, err := vc.debt.TotalDebt(index)
		if err != nil {
			return Receipt{}, err
		}
		if total > params.DebtCeiling-amount {
			return Receipt{}, fmt.Errorf("%w: vault debt would reach %s, ceiling is %s",
				ErrDebtCeilingExceeded, fpmath.FormatAmount(total+amount), fpmath.FormatAmount(params.DebtCeiling))
		}
	}

	price, err := vc.price(ctx, op.now)
	if err != nil {
		return Receipt{}, err
	}
	if err := vc.requireMinRatio("debt increase", vc.collateral.Balance(owner), price, next); err != nil {
		return Receipt{}, err
	}

	if err := vc.debtToken.Mint(ctx, owner, amount); err != nil {
		return Receipt{}, fmt.Errorf("%w: mint of %s to %s: %v",
			ErrExternalTransfer, fpmath.FormatAmount(amount), owner, err)
	}

	// Commit
	op.owner = owner
	op.touch(owner)
	vc.interest.Commit(index, op.now)
	folded, err := vc.debt.Touch(op.batch, owner, index)
	must(err)
	must(vc.debt.Increase(op.batch, owner, amount, index))
	op.emit(&event.DebtIncreased{
		Owner:          owner,
		Caller:         caller,
		Amount:         amount,
		Principal:      vc.debt.Principal(owner),
		InterestFolded: folded,
	})

	r = vc.finish(op)
	r.InterestFolded = folded
	return r, nil
}

// DecreaseDebt burns amount of the debt asset from owner and repays it,
// interest first folded into principal.
func (vc *VaultCoordinator) DecreaseDebt(ctx context.Context, owner uuid.UUID, amount int64) (r Receipt, err error) {
	op, err := vc.begin(ctx, "decrease_debt", true)
	if err != nil {
		return Receipt{}, err
	}
	defer vc.end(op, &err)

	if amount <= 0 {
		return Receipt{}, fmt.Errorf("%w: debt decrease must be > 0, got %d", ErrInvalidAmount, amount)
	}
	if _, err := vc.positions.Active(owner); err != nil {
		return Receipt{}, err
	}
	index, err := vc.interest.Preview(op.now)
	if err != nil {
		return Receipt{}, err
	}
	if err := vc.debt.CanDecrease(owner, amount, index); err != nil {
		return Receipt{}, err
	}

	if err := vc.debtToken.Burn(ctx, owner, amount); err != nil {
		return Receipt{}, fmt.Errorf("%w: burn of %s from %s: %v",
			ErrExternalTransfer, fpmath.FormatAmount(amount), owner, err)
	}

	// Commit
	op.owner = owner
	op.touch(owner)
	vc.interest.Commit(index, op.now)
	folded, err := vc.debt.Touch(op.batch, owner, index)
	must(err)
	must(vc.debt.Decrease(op.batch, owner, amount, index))
	op.emit(&event.DebtDecreased{
		Owner:          owner,
		Amount:         amount,
		Principal:      vc.debt.Principal(owner),
		InterestFolded: folded,
	})
	closed := vc.closeIfEmpty(op, owner, "repaid")

	r = vc.finish(op)
	r.InterestFolded = folded
	r.Closed = closed
	return r, nil
}

// Liquidate repays up to repay of owner's debt with debt tokens burned from
// liquidator and transfers the penalized collateral equivalent to liquidator.
// When the collateral left cannot cover the seizure, all of it is seized,
// the repayment shrinks to what it covers, and the rest of the debt is
// written off as bad debt.
func (vc *VaultCoordinator) Liquidate(ctx context.Context, liquidator, owner uuid.UUID, repay int64) (r Receipt, err error) {
	op, err := vc.begin(ctx, "liquidate", true)
	if err != nil {
		return Receipt{}, err
	}
	defer vc.end(op, &err)

	if repay <= 0 {
		return Receipt{}, fmt.Errorf("%w: repay amount must be > 0, got %d", ErrInvalidAmount, repay)
	}
	if _, err := vc.positions.Active(owner); err != nil {
		return Receipt{}, err
	}

	index, err := vc.interest.Preview(op.now)
	if err != nil {
		return Receipt{}, err
	}
	debt, err := vc.debt.EffectiveDebt(owner, index)
	if err != nil {
		return Receipt{}, err
	}
	if debt == 0 {
		return Receipt{}, fmt.Errorf("%w: %s has no debt", ErrNotLiquidatable, owner)
	}
	price, err := vc.price(ctx, op.now)
	if err != nil {
		return Receipt{}, err
	}

	params := vc.params.Get()
	plan, err := state.Plan(state.LiquidationInput{
		Collateral:    vc.collateral.Balance(owner),
		EffectiveDebt: debt,
		Price:         price,
		Repay:         repay,
		ThresholdBps:  params.LiquidationThreshold,
		PenaltyBps:    params.LiquidationPenalty,
	})
	if err != nil {
		return Receipt{}, err
	}
	if plan.Seized == 0 {
		return Receipt{}, fmt.Errorf("%w: repaying %s seizes no collateral at price %s",
			ErrInvalidAmount, fpmath.FormatAmount(plan.Repay), fpmath.FormatPrice(price))
	}

	if plan.Repay > 0 {
		if err := vc.debtToken.Burn(ctx, liquidator, plan.Repay); err != nil {
			return Receipt{}, fmt.Errorf("%w: burn of %s from liquidator %s: %v",
				ErrExternalTransfer, fpmath.FormatAmount(plan.Repay), liquidator, err)
		}
	}
	if err := vc.collateralToken.TransferOut(ctx, liquidator, plan.Seized); err != nil {
		err = fmt.Errorf("%w: collateral transfer out of %s to liquidator %s: %v",
			ErrExternalTransfer, fpmath.FormatAmount(plan.Seized), liquidator, err)
		if plan.Repay > 0 {
			if cerr := vc.debtToken.Mint(ctx, liquidator, plan.Repay); cerr != nil {
				err = errors.Join(err, fmt.Errorf("restore burned debt tokens to %s: %w", liquidator, cerr))
			}
		}
		return Receipt{}, err
	}

	// Commit
	op.owner = owner
	op.touch(owner)
	vc.interest.Commit(index, op.now)
	_, err = vc.debt.Touch(op.batch, owner, index)
	must(err)
	if plan.Repay > 0 {
		must(vc.debt.Decrease(op.batch, owner, plan.Repay, index))
	}
	if plan.BadDebt > 0 {
		must(vc.debt.WriteOff(op.batch, owner, plan.BadDebt, index))
	}
	must(vc.collateral.Debit(op.batch, owner, plan.Seized, ledger.SubTypeExternalSeized))

	rec := state.LiquidationRecord{
		ID:               uuid.New(),
		Sequence:         vc.journals.Sequence(),
		Owner:            owner,
		Liquidator:       liquidator,
		RepaidDebt:       plan.Repay,
		SeizedCollateral: plan.Seized,
		Penalty:          plan.Penalty,
		BadDebt:          plan.BadDebt,
		Price:            price,
		Timestamp:        op.now.UnixMicro(),
	}
	vc.liquidations.Append(rec)
	op.emit(&event.Liquidated{
		LiquidationID:    rec.ID,
		Owner:            owner,
		Liquidator:       liquidator,
		RepaidDebt:       rec.RepaidDebt,
		SeizedCollateral: rec.SeizedCollateral,
		Penalty:          rec.Penalty,
		BadDebt:          rec.BadDebt,
		Price:            price,
	})
	closed := vc.closeIfEmpty(op, owner, "liquidated")

	if vc.metrics != nil {
		outcome := "partial"
		switch {
		case plan.Shortfall:
			outcome = "shortfall"
		case closed:
			outcome = "closed"
		}
		vc.metrics.Liquidations.WithLabelValues(outcome).Inc()
		vc.metrics.LiquidatedDebt.Add(float64(plan.Repay))
		vc.metrics.SeizedCollateral.Add(float64(plan.Seized))
	}

	r = vc.finish(op)
	r.Closed = closed
	r.Liquidation = &rec
	return r, nil
}

// closeIfEmpty closes owner's position once collateral and principal are
// both zero.
func (vc *VaultCoordinator) closeIfEmpty(op *operation, owner uuid.UUID, reason string) bool {
	if vc.collateral.Balance(owner) != 0 || vc.debt.Principal(owner) != 0 {
		return false
	}
	pos, err := vc.positions.Close(owner, op.now.UnixMicro())
	must(err)
	vc.debt.Forget(owner)
	op.emit(&event.PositionClosed{Owner: owner, Generation: pos.Generation, Reason: reason})
	return true
}

// requireMinRatio rejects a resulting position below the minimum ratio.
func (vc *VaultCoordinator) requireMinRatio(action string, collateral, price, debt int64) error {
	minRatio := vc.params.Get().MinCollateralRatio
	if !fpmath.RatioBelow(collateral, price, debt, minRatio) {
		return nil
	}
	return fmt.Errorf("%w: %s would drop ratio to %s, below minimum %s",
		ErrUndercollateralizedOperation, action,
		fpmath.FormatBps(fpmath.CollateralRatioBps(collateral, price, debt)),
		fpmath.FormatBps(minRatio))
}

// maxPriceClockSkew is how far ahead of the vault clock an oracle timestamp
// may be.
const maxPriceClockSkew = 5 * time.Second

// price reads the oracle and fails closed on errors, non-positive prices,
// prices older than MaxPriceAge and prices stamped in the future.
func (vc *VaultCoordinator) price(ctx context.Context, now time.Time) (int64, error) {
	price, observedAt, err := vc.oracle.GetPrice(ctx, vc.asset)
	if err != nil {
		vc.oracleFailure("error")
		return 0, fmt.Errorf("%w: oracle read for %s failed: %v", ErrStalePriceData, vc.asset, err)
	}
	if price <= 0 {
		vc.oracleFailure("non_positive")
		return 0, fmt.Errorf("%w: oracle price for %s is %s", ErrStalePriceData, vc.asset, fpmath.FormatPrice(price))
	}
	age := now.Sub(observedAt)
	if age < -maxPriceClockSkew {
		vc.oracleFailure("future")
		return 0, fmt.Errorf("%w: price for %s is observed %s in the future", ErrStalePriceData, vc.asset, -age)
	}
	if maxAge := vc.params.Get().MaxPriceAge; age > maxAge {
		vc.oracleFailure("stale")
		return 0, fmt.Errorf("%w: price for %s is %s old, max age %s", ErrStalePriceData, vc.asset, age, maxAge)
	}
	if vc.metrics != nil {
		vc.metrics.OraclePriceAge.Set(max(age, 0).Seconds())
	}
	return price, nil
}

func (vc *VaultCoordinator) oracleFailure(reason string) {
	if vc.metrics != nil {
		vc.metrics.OracleFailures.WithLabelValues(reason).Inc()
	}
}

// finish validates the committed batch, advances the hash chain and the
// sequence, and emits the operation's envelopes.
func (vc *VaultCoordinator) finish(op *operation) Receipt {
	seq := vc.journals.Sequence()

	if !op.batch.Empty() {
		if err := vc.validator.ValidateBatchBalance(op.batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
	}
	for owner := range op.touched {
		for _, sub := range []ledger.AccountSubType{ledger.SubTypeCollateral, ledger.SubTypeDebt} {
			asset := ledger.AssetCollateral
			if sub == ledger.SubTypeDebt {
				asset = ledger.AssetDebt
			}
			if err := vc.book.ValidateNonNegative(ledger.NewOwnerAccountKey(owner, sub, asset)); err != nil {
				panic(fmt.Sprintf("FATAL: invariant violated at seq %d: %v", seq, err))
			}
		}
	}
	if seq > 0 && seq%invariantCheckInterval == 0 {
		if err := vc.validator.ValidateAll(vc.interest.Index()); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated at seq %d: %v", seq, err))
		}
	}

	prev := vc.hasher.GetPrevHash()
	hash := vc.hasher.ComputeHash(seq, vc.stateDigest(op))

	for i, payload := range op.payloads {
		env := &event.Envelope{
			Sequence:  seq,
			RequestID: op.requestID,
			EventType: payload.EventType(),
			Owner:     op.owner,
			Timestamp: op.now,
			Payload:   payload,
			StateHash: hash,
			PrevHash:  prev,
		}
		if i == 0 {
			env.Journals = op.batch.Journals
		}
		vc.events.Emit(env)
	}

	vc.journals.Advance()
	vc.observe(op)

	return Receipt{
		Sequence:   seq,
		RequestID:  op.requestID,
		Owner:      op.owner,
		Collateral: vc.collateral.Balance(op.owner),
		Principal:  vc.debt.Principal(op.owner),
		StateHash:  hash,
	}
}

// stateDigest covers the touched owners' balances, snapshots and position
// records plus the vault-wide state.
func (vc *VaultCoordinator) stateDigest(op *operation) []byte {
	owners := make([]uuid.UUID, 0, len(op.touched))
	for owner := range op.touched {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })

	digest := make([]byte, 0, 128+len(owners)*96)
	for _, owner := range owners {
		digest = append(digest, owner[:]...)
		digest = binary.LittleEndian.AppendUint64(digest, uint64(vc.collateral.Balance(owner)))
		digest = binary.LittleEndian.AppendUint64(digest, uint64(vc.debt.Principal(owner)))
		snap := vc.debt.Snapshot(owner).Bytes32()
		digest = append(digest, snap[:]...)
		if pos := vc.positions.Get(owner); pos != nil {
			digest = append(digest, pos.CanonicalBytes()...)
		}
	}

	digest = binary.LittleEndian.AppendUint64(digest, uint64(vc.collateral.Total()))
	digest = binary.LittleEndian.AppendUint64(digest, uint64(vc.debt.TotalPrincipal()))
	index := vc.interest.Index().Bytes32()
	digest = append(digest, index[:]...)
	digest = binary.LittleEndian.AppendUint64(digest, uint64(vc.interest.LastAccrual()))

	p := vc.params.Get()
	for _, v := range []int64{p.MinCollateralRatio, p.LiquidationThreshold, p.LiquidationPenalty, p.StabilityFee, p.DebtCeiling, int64(p.MaxPriceAge)} {
		digest = binary.LittleEndian.AppendUint64(digest, uint64(v))
	}
	if vc.paused {
		digest = append(digest, 1)
	} else {
		digest = append(digest, 0)
	}
	return digest
}

func (vc *VaultCoordinator) observe(op *operation) {
	m := vc.metrics
	if m == nil {
		return
	}
	for _, j := range op.batch.Journals {
		m.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
	}
	index := vc.interest.Index()
	m.CoreSequence.Set(float64(vc.journals.Sequence()))
	m.TotalCollateral.Set(float64(vc.collateral.Total()))
	m.TotalPrincipal.Set(float64(vc.debt.TotalPrincipal()))
	if total, err := vc.debt.TotalDebt(index); err == nil {
		m.TotalDebt.Set(float64(total))
	}
	m.InterestIndex.Set(rayToFloat(index))
	m.ActivePositions.Set(float64(vc.positions.ActiveCount()))
	m.BadDebt.Set(float64(vc.book.BadDebt()))
	m.StabilityFees.Set(float64(vc.book.StabilityFeesEarned()))
	if vc.paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}

func rayToFloat(v *uint256.Int) float64 {
	f, _ := fpmath.RayToDecimal(v).Float64()
	return f
}
