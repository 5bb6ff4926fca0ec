package query

import (
	"encoding/hex"

	"VaultLedger/internal/core"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/state"
	"VaultLedger/internal/service"

	"github.com/google/uuid"
)

// PositionResponse is an owner's position as of the current time.
type PositionResponse struct {
	Owner      uuid.UUID `json:"owner"`
	Generation int64     `json:"generation"`
	Status     string    `json:"status"`

	// Ledger balances
	Collateral string `json:"collateral"`
	Principal  string `json:"principal"`

	// Derived values (computed at query time, not ledger balances)
	EffectiveDebt   string `json:"effective_debt"`
	AccruedInterest string `json:"accrued_interest"`
	CollateralRatio string `json:"collateral_ratio,omitempty"` // "inf" without debt
	MaxMintable     string `json:"max_mintable,omitempty"`
	Liquidatable    bool   `json:"liquidatable"`

	// Price-dependent fields are omitted when the oracle is unavailable
	PriceAvailable bool   `json:"price_available"`
	PriceError     string `json:"price_error,omitempty"`

	IndexSnapshot string `json:"index_snapshot"`
	OpenedAt      int64  `json:"opened_at"`
	ClosedAt      int64  `json:"closed_at,omitempty"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

func positionResponse(v core.PositionView, seq int64) *PositionResponse {
	index := v.IndexSnapshot
	if r, err := fpmath.ParseRay(v.IndexSnapshot); err == nil {
		index = fpmath.FormatRay(r)
	}
	return &PositionResponse{
		Owner:           v.Owner,
		Generation:      v.Generation,
		Status:          v.Status.String(),
		Collateral:      fpmath.FormatAmount(v.Collateral),
		Principal:       fpmath.FormatAmount(v.Principal),
		EffectiveDebt:   fpmath.FormatAmount(v.EffectiveDebt),
		AccruedInterest: fpmath.FormatAmount(v.AccruedInterest),
		IndexSnapshot:   index,
		OpenedAt:        v.OpenedAt,
		ClosedAt:        v.ClosedAt,
		AsOfSequence:    seq,
	}
}

// Receipt renders a mutation result.
func Receipt(res service.Result) *ReceiptResponse {
	out := &ReceiptResponse{
		RequestID:  res.RequestID,
		Sequence:   res.Sequence,
		Owner:      res.Owner,
		Collateral: fpmath.FormatAmount(res.Collateral),
		Principal:  fpmath.FormatAmount(res.Principal),
		Closed:     res.Closed,
		Duplicate:  res.Duplicate,
		StateHash:  hex.EncodeToString(res.StateHash[:]),
	}
	if res.InterestFolded != 0 {
		out.InterestFolded = fpmath.FormatAmount(res.InterestFolded)
	}
	if res.Liquidation != nil {
		l := liquidationResponse(*res.Liquidation)
		out.Liquidation = &l
	}
	return out
}

func liquidationResponse(r state.LiquidationRecord) LiquidationResponse {
	return LiquidationResponse{
		LiquidationID:    r.ID,
		Sequence:         r.Sequence,
		Owner:            r.Owner,
		Liquidator:       r.Liquidator,
		RepaidDebt:       fpmath.FormatAmount(r.RepaidDebt),
		SeizedCollateral: fpmath.FormatAmount(r.SeizedCollateral),
		Penalty:          fpmath.FormatAmount(r.Penalty),
		BadDebt:          fpmath.FormatAmount(r.BadDebt),
		Price:            fpmath.FormatPrice(r.Price),
		Timestamp:        r.Timestamp,
	}
}

func liquidationRowResponse(r persistence.LiquidationRow) LiquidationResponse {
	return LiquidationResponse{
		LiquidationID:    r.LiquidationID,
		Sequence:         r.Sequence,
		Owner:            r.Owner,
		Liquidator:       r.Liquidator,
		RepaidDebt:       fpmath.FormatAmount(r.RepaidDebt),
		SeizedCollateral: fpmath.FormatAmount(r.SeizedCollateral),
		Penalty:          fpmath.FormatAmount(r.Penalty),
		BadDebt:          fpmath.FormatAmount(r.BadDebt),
		Price:            fpmath.FormatPrice(r.Price),
		Timestamp:        r.LiquidatedAt.UnixMicro(),
	}
}

func paramsResponse(p state.VaultParams) ParamsResponse {
	return ParamsResponse{
		MinCollateralRatio:   fpmath.FormatBps(p.MinCollateralRatio),
		LiquidationThreshold: fpmath.FormatBps(p.LiquidationThreshold),
		LiquidationPenalty:   fpmath.FormatBps(p.LiquidationPenalty),
		StabilityFee:         fpmath.FormatBps(p.StabilityFee),
		DebtCeiling:          fpmath.FormatAmount(p.DebtCeiling),
		MaxPriceAgeSeconds:   int64(p.MaxPriceAge.Seconds()),
	}
}
