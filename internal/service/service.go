// Package service serializes every vault call through one executor
// goroutine. The coordinator is a single-writer state machine without locks;
// this is the only place allowed to call it once the process is serving.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/state"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStopped is returned for calls submitted after the executor exited.
var ErrStopped = errors.New("vault service stopped")

const executorChannel = "executor"

// Options configures a Service.
type Options struct {
	QueueSize     int          // pending calls before submitters block
	DedupCapacity int          // request receipts kept in memory
	NodeID        int64        // snowflake node, 0-1023
	Receipts      ReceiptStore // optional second dedup tier
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// Result is the outcome of a mutating call. Duplicate is set when the
// request id already committed and Receipt is the original one.
type Result struct {
	core.Receipt
	Duplicate bool
}

type Service struct {
	vc      *core.VaultCoordinator
	ops     chan func()
	stopped chan struct{}
	dedup   *IdempotencyChecker
	ids     *snowflake.Node
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func New(vc *core.VaultCoordinator, opts Options) (*Service, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.DedupCapacity <= 0 {
		opts.DedupCapacity = 100_000
	}
	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", opts.NodeID, err)
	}
	return &Service{
		vc:      vc,
		ops:     make(chan func(), opts.QueueSize),
		stopped: make(chan struct{}),
		dedup:   NewIdempotencyChecker(opts.DedupCapacity, opts.Receipts, opts.Metrics, opts.Logger),
		ids:     node,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}, nil
}

// Run executes submitted calls one at a time until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)
	s.logger.Info().Int64("sequence", s.vc.Sequence()).Msg("vault executor started")

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Int64("sequence", s.vc.Sequence()).Msg("vault executor stopped")
			return nil
		case fn := <-s.ops:
			fn()
		case <-ticker.C:
			if s.metrics != nil {
				s.metrics.SetChannelMetrics(executorChannel, len(s.ops), cap(s.ops))
			}
		}
	}
}

// submit queues fn and waits until it ran. If ctx ends first the call may
// still run later; its outcome is then only visible through dedup.
func (s *Service) submit(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case s.ops <- wrapped:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the executor and returns its result.
func call[T any](ctx context.Context, s *Service, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if serr := s.submit(ctx, func() { out, err = fn() }); serr != nil {
		var zero T
		return zero, serr
	}
	return out, err
}

// NewRequestID returns a fresh snowflake id.
func (s *Service) NewRequestID() string {
	return s.ids.Generate().String()
}

// mutate runs one state-changing call under requestID, generating an id
// when the client sent none and replaying the receipt of an earlier commit.
func (s *Service) mutate(ctx context.Context, op, requestID string, fn func(ctx context.Context) (core.Receipt, error)) (Result, error) {
	clientID := requestID != ""
	if !clientID {
		requestID = s.NewRequestID()
	}
	ctx = core.WithRequestID(ctx, requestID)

	return call(ctx, s, func() (Result, error) {
		if clientID {
			if r, ok := s.dedup.Lookup(ctx, op, requestID); ok {
				return Result{Receipt: r, Duplicate: true}, nil
			}
		}

		r, err := fn(ctx)
		log := s.logger.With().Str("op", op).Str("request_id", requestID).Logger()
		if err != nil {
			log.Info().Str("reason", core.Reason(err)).Err(err).Msg("operation rejected")
			return Result{}, err
		}
		log.Debug().Int64("sequence", r.Sequence).Str("owner", r.Owner.String()).Msg("operation committed")

		if clientID {
			s.dedup.MarkProcessed(ctx, op, requestID, r)
		}
		return Result{Receipt: r}, nil
	})
}

// --- Mutations ---

func (s *Service) Deposit(ctx context.Context, requestID string, owner uuid.UUID, amount int64) (Result, error) {
	return s.mutate(ctx, "deposit", requestID, func(ctx context.Context) (core.Receipt, error) {
		return s.vc.Deposit(ctx, owner, amount)
	})
}

func (s *Service) Withdraw(ctx context.Context, requestID string, owner uuid.UUID, amount int64) (Result, error) {
	return s.mutate(ctx, "withdraw", requestID, func(ctx context.Context) (core.Receipt, error) {
		return s.vc.Withdraw(ctx, owner, amount)
	})
}

// Borrow issues debt to owner on behalf of caller.
func (s *Service) Borrow(ctx context.Context, requestID string, caller, owner uuid.UUID, amount int64) (Result, error) {
	return s.mutate(ctx, "increase_debt", requestID, func(ctx context.Context) (core.Receipt, error) {
		return s.vc.IncreaseDebt(ctx, caller, owner, amount)
	})
}

func (s *Service) Repay(ctx context.Context, requestID string, owner uuid.UUID, amount int64) (Result, error) {
	return s.mutate(ctx, "decrease_debt", requestID, func(ctx context.Context) (core.Receipt, error) {
		return s.vc.DecreaseDebt(ctx, owner, amount)
	})
}

func (s *Service) Liquidate(ctx context.Context, requestID string, liquidator, owner uuid.UUID, repay int64) (Result, error) {
	return s.mutate(ctx, "liquidate", requestID, func(ctx context.Context) (core.Receipt, error) {
		return s.vc.Liquidate(ctx, liquidator, owner, repay)
	})
}

// --- Admin ---

func (s *Service) SetParam(ctx context.Context, requestID string, caller uuid.UUID, name string, value int64) (Result, error) {
	return s.mutate(ctx, "set_param", requestID, func(ctx context.Context) (core.Receipt, error) {
		return s.vc.SetParam(ctx, caller, name, value)
	})
}

func (s *Service) Pause(ctx context.Context, caller uuid.UUID) error {
	return s.admin(ctx, "pause", func(ctx context.Context) error { return s.vc.Pause(ctx, caller) })
}

func (s *Service) Unpause(ctx context.Context, caller uuid.UUID) error {
	return s.admin(ctx, "unpause", func(ctx context.Context) error { return s.vc.Unpause(ctx, caller) })
}

func (s *Service) Grant(ctx context.Context, caller, target uuid.UUID, c core.Capability) error {
	return s.admin(ctx, "grant", func(ctx context.Context) error { return s.vc.Grant(ctx, caller, target, c) })
}

func (s *Service) Revoke(ctx context.Context, caller, target uuid.UUID, c core.Capability) error {
	return s.admin(ctx, "revoke", func(ctx context.Context) error { return s.vc.Revoke(ctx, caller, target, c) })
}

func (s *Service) admin(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx = core.WithRequestID(ctx, s.NewRequestID())
	_, err := call(ctx, s, func() (struct{}, error) {
		err := fn(ctx)
		if err != nil {
			s.logger.Warn().Str("op", op).Err(err).Msg("admin call rejected")
		} else {
			s.logger.Info().Str("op", op).Msg("admin call applied")
		}
		return struct{}{}, err
	})
	return err
}

// --- Reads ---

func (s *Service) GetPosition(ctx context.Context, owner uuid.UUID) (core.PositionView, error) {
	return call(ctx, s, func() (core.PositionView, error) { return s.vc.GetPosition(ctx, owner) })
}

func (s *Service) GetRatio(ctx context.Context, owner uuid.UUID) (int64, error) {
	return call(ctx, s, func() (int64, error) { return s.vc.GetRatio(ctx, owner) })
}

func (s *Service) GetMaxMintable(ctx context.Context, owner uuid.UUID) (int64, error) {
	return call(ctx, s, func() (int64, error) { return s.vc.GetMaxMintable(ctx, owner) })
}

func (s *Service) AccruedInterest(ctx context.Context, owner uuid.UUID) (int64, error) {
	return call(ctx, s, func() (int64, error) { return s.vc.AccruedInterest(ctx, owner) })
}

func (s *Service) IsLiquidatable(ctx context.Context, owner uuid.UUID) (bool, error) {
	return call(ctx, s, func() (bool, error) { return s.vc.IsLiquidatable(ctx, owner) })
}

func (s *Service) CalculateLiquidation(ctx context.Context, owner uuid.UUID, repay int64) (state.LiquidationPlan, error) {
	return call(ctx, s, func() (state.LiquidationPlan, error) { return s.vc.CalculateLiquidation(ctx, owner, repay) })
}

func (s *Service) ListLiquidatable(ctx context.Context) ([]uuid.UUID, error) {
	return call(ctx, s, func() ([]uuid.UUID, error) { return s.vc.ListLiquidatable(ctx) })
}

func (s *Service) GetVaultStats(ctx context.Context) (core.VaultStats, error) {
	return call(ctx, s, func() (core.VaultStats, error) { return s.vc.GetVaultStats(ctx) })
}

func (s *Service) GetParams(ctx context.Context) (state.VaultParams, error) {
	return call(ctx, s, func() (state.VaultParams, error) { return s.vc.GetParams(), nil })
}

func (s *Service) LiquidationRecords(ctx context.Context, owner uuid.UUID, limit int) ([]state.LiquidationRecord, error) {
	return call(ctx, s, func() ([]state.LiquidationRecord, error) { return s.vc.LiquidationRecords(owner, limit), nil })
}

func (s *Service) PositionHistory(ctx context.Context, owner uuid.UUID) ([]state.Position, error) {
	return call(ctx, s, func() ([]state.Position, error) { return s.vc.PositionHistory(owner), nil })
}

// PositionDetail is a position with its price-dependent figures, read in a
// single executor turn. PriceErr is set instead of failing the read when
// the oracle price is stale.
type PositionDetail struct {
	core.PositionView
	Sequence     int64
	Ratio        int64
	MaxMintable  int64
	Liquidatable bool
	PriceErr     error
}

func (s *Service) PositionDetail(ctx context.Context, owner uuid.UUID) (PositionDetail, error) {
	return call(ctx, s, func() (PositionDetail, error) {
		view, err := s.vc.GetPosition(ctx, owner)
		if err != nil {
			return PositionDetail{}, err
		}
		d := PositionDetail{PositionView: view, Sequence: s.vc.Sequence()}

		d.Ratio, err = s.vc.GetRatio(ctx, owner)
		if err == nil {
			d.MaxMintable, err = s.vc.GetMaxMintable(ctx, owner)
		}
		if err == nil {
			d.Liquidatable, err = s.vc.IsLiquidatable(ctx, owner)
		}
		if errors.Is(err, core.ErrStalePriceData) {
			d.PriceErr = err
		} else if err != nil {
			return PositionDetail{}, err
		}
		return d, nil
	})
}

// LiquidationQuote prices repaying repay of owner's debt and reports whether
// the position is eligible right now.
type LiquidationQuote struct {
	state.LiquidationPlan
	Liquidatable bool
	Sequence     int64
}

func (s *Service) QuoteLiquidation(ctx context.Context, owner uuid.UUID, repay int64) (LiquidationQuote, error) {
	return call(ctx, s, func() (LiquidationQuote, error) {
		plan, err := s.vc.CalculateLiquidation(ctx, owner, repay)
		if err != nil {
			return LiquidationQuote{}, err
		}
		ok, err := s.vc.IsLiquidatable(ctx, owner)
		if err != nil {
			return LiquidationQuote{}, err
		}
		return LiquidationQuote{LiquidationPlan: plan, Liquidatable: ok, Sequence: s.vc.Sequence()}, nil
	})
}

// Snapshot captures the vault state between two calls.
func (s *Service) Snapshot(ctx context.Context) (*core.SnapshotState, error) {
	return call(ctx, s, func() (*core.SnapshotState, error) { return s.vc.CreateSnapshot() })
}

// Sequence returns the sequence of the next committed call.
func (s *Service) Sequence(ctx context.Context) (int64, error) {
	return call(ctx, s, func() (int64, error) { return s.vc.Sequence(), nil })
}

// Probe adapts HealthCheck to observability.VaultProbe.
func (s *Service) Probe() (bool, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type health struct {
		ok  bool
		msg string
	}
	h, err := call(ctx, s, func() (health, error) {
		ok, msg := s.vc.HealthCheck()
		return health{ok, msg}, nil
	})
	if err != nil {
		return false, fmt.Sprintf("executor unavailable: %v", err)
	}
	return h.ok, h.msg
}
