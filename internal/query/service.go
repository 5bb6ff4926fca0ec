package query

import (
	"context"
	"fmt"

	"VaultLedger/internal/core"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/service"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// Reader is the read surface of the vault service.
type Reader interface {
	PositionDetail(ctx context.Context, owner uuid.UUID) (service.PositionDetail, error)
	QuoteLiquidation(ctx context.Context, owner uuid.UUID, repay int64) (service.LiquidationQuote, error)
	ListLiquidatable(ctx context.Context) ([]uuid.UUID, error)
	GetVaultStats(ctx context.Context) (core.VaultStats, error)
	GetParams(ctx context.Context) (state.VaultParams, error)
	LiquidationRecords(ctx context.Context, owner uuid.UUID, limit int) ([]state.LiquidationRecord, error)
	PositionHistory(ctx context.Context, owner uuid.UUID) ([]state.Position, error)
	Sequence(ctx context.Context) (int64, error)
}

// History is the durable liquidation log.
type History interface {
	ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]persistence.LiquidationRow, error)
}

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// QueryService renders vault reads for the API. Live state comes from the
// executor; the liquidation history is served from Postgres when a History
// is configured and from the in-memory log otherwise. Responses carry
// as_of_sequence for freshness.
type QueryService struct {
	reader  Reader
	history History
}

// NewQueryService builds a QueryService. history may be nil.
func NewQueryService(reader Reader, history History) *QueryService {
	return &QueryService{reader: reader, history: history}
}

// GetPosition returns owner's position. A stale oracle price leaves the
// price-dependent fields empty instead of failing.
func (qs *QueryService) GetPosition(ctx context.Context, owner uuid.UUID) (*PositionResponse, error) {
	d, err := qs.reader.PositionDetail(ctx, owner)
	if err != nil {
		return nil, err
	}

	resp := positionResponse(d.PositionView, d.Sequence)
	if d.PriceErr != nil {
		resp.PriceError = d.PriceErr.Error()
		return resp, nil
	}
	resp.PriceAvailable = true
	resp.CollateralRatio = fpmath.FormatBps(d.Ratio)
	resp.MaxMintable = fpmath.FormatAmount(d.MaxMintable)
	resp.Liquidatable = d.Liquidatable
	return resp, nil
}

// QuoteLiquidation previews repaying repay of owner's debt.
func (qs *QueryService) QuoteLiquidation(ctx context.Context, owner uuid.UUID, repay int64) (*LiquidationQuoteResponse, error) {
	q, err := qs.reader.QuoteLiquidation(ctx, owner, repay)
	if err != nil {
		return nil, err
	}
	return &LiquidationQuoteResponse{
		Owner:               owner,
		Liquidatable:        q.Liquidatable,
		Repay:               fpmath.FormatAmount(q.Repay),
		Seized:              fpmath.FormatAmount(q.Seized),
		Penalty:             fpmath.FormatAmount(q.Penalty),
		BadDebt:             fpmath.FormatAmount(q.BadDebt),
		Shortfall:           q.Shortfall,
		RemainingCollateral: fpmath.FormatAmount(q.RemainingCollateral),
		RemainingDebt:       fpmath.FormatAmount(q.RemainingDebt),
		Closes:              q.Closes,
		AsOfSequence:        q.Sequence,
	}, nil
}

func (qs *QueryService) ListLiquidatable(ctx context.Context) (*LiquidatableResponse, error) {
	seq, err := qs.reader.Sequence(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := qs.reader.ListLiquidatable(ctx)
	if err != nil {
		return nil, err
	}
	return &LiquidatableResponse{Owners: owners, AsOfSequence: seq}, nil
}

func (qs *QueryService) GetVaultStats(ctx context.Context) (*VaultStatsResponse, error) {
	s, err := qs.reader.GetVaultStats(ctx)
	if err != nil {
		return nil, err
	}

	index := s.InterestIndex
	if r, err := fpmath.ParseRay(s.InterestIndex); err == nil {
		index = fpmath.FormatRay(r)
	}
	resp := &VaultStatsResponse{
		TotalCollateral: fpmath.FormatAmount(s.TotalCollateral),
		TotalPrincipal:  fpmath.FormatAmount(s.TotalPrincipal),
		TotalDebt:       fpmath.FormatAmount(s.TotalDebt),
		ActivePositions: s.ActivePositions,
		IndebtedOwners:  s.IndebtedOwners,
		BadDebt:         fpmath.FormatAmount(s.BadDebt),
		StabilityFees:   fpmath.FormatAmount(s.StabilityFees),
		InterestIndex:   index,
		Liquidations:    s.Liquidations,
		Paused:          s.Paused,
		Params:          paramsResponse(s.Params),
		StateHash:       s.StateHash,
		AsOfSequence:    s.Sequence,
	}
	if s.PriceAvailable {
		resp.Price = fpmath.FormatPrice(s.Price)
		resp.AverageRatio = fpmath.FormatBps(s.AverageRatioBps)
	}
	return resp, nil
}

func (qs *QueryService) GetParams(ctx context.Context) (*ParamsResponse, error) {
	p, err := qs.reader.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	resp := paramsResponse(p)
	return &resp, nil
}

// GetLiquidationHistory returns liquidations newest first. uuid.Nil lists
// every owner.
func (qs *QueryService) GetLiquidationHistory(ctx context.Context, owner uuid.UUID, limit int) ([]LiquidationResponse, error) {
	limit = clampLimit(limit)

	if qs.history != nil {
		rows, err := qs.history.ListByOwner(ctx, owner, limit)
		if err != nil {
			return nil, fmt.Errorf("liquidation history: %w", err)
		}
		out := make([]LiquidationResponse, 0, len(rows))
		for _, r := range rows {
			out = append(out, liquidationRowResponse(r))
		}
		return out, nil
	}

	records, err := qs.reader.LiquidationRecords(ctx, owner, limit)
	if err != nil {
		return nil, err
	}
	out := make([]LiquidationResponse, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, liquidationResponse(records[i]))
	}
	return out, nil
}

// GetPositionHistory returns owner's closed positions, oldest first.
func (qs *QueryService) GetPositionHistory(ctx context.Context, owner uuid.UUID) ([]PositionHistoryEntry, error) {
	positions, err := qs.reader.PositionHistory(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]PositionHistoryEntry, 0, len(positions))
	for _, p := range positions {
		out = append(out, PositionHistoryEntry{Generation: p.Generation, OpenedAt: p.OpenedAt, ClosedAt: p.ClosedAt})
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
