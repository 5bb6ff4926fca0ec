package query

import "github.com/google/uuid"

// Amounts, prices and ratios in responses are decimal strings: amounts and
// prices in whole units ("1500.25"), ratios as percentages ("150.00%").

// ReceiptResponse is returned by every mutation.
type ReceiptResponse struct {
	RequestID      string               `json:"request_id"`
	Sequence       int64                `json:"sequence"`
	Owner          uuid.UUID            `json:"owner"`
	Collateral     string               `json:"collateral"`
	Principal      string               `json:"principal"`
	InterestFolded string               `json:"interest_folded,omitempty"`
	Closed         bool                 `json:"closed,omitempty"`
	Duplicate      bool                 `json:"duplicate,omitempty"`
	Liquidation    *LiquidationResponse `json:"liquidation,omitempty"`
	StateHash      string               `json:"state_hash"`
}

// LiquidationQuoteResponse previews a liquidation without executing it.
type LiquidationQuoteResponse struct {
	Owner               uuid.UUID `json:"owner"`
	Liquidatable        bool      `json:"liquidatable"`
	Repay               string    `json:"repay"`
	Seized              string    `json:"seized"`
	Penalty             string    `json:"penalty"`
	BadDebt             string    `json:"bad_debt"`
	Shortfall           bool      `json:"shortfall"`
	RemainingCollateral string    `json:"remaining_collateral"`
	RemainingDebt       string    `json:"remaining_debt"`
	Closes              bool      `json:"closes"`
	AsOfSequence        int64     `json:"as_of_sequence"`
}

// LiquidationResponse is one entry of the liquidation log.
type LiquidationResponse struct {
	LiquidationID    uuid.UUID `json:"liquidation_id"`
	Sequence         int64     `json:"sequence"`
	Owner            uuid.UUID `json:"owner"`
	Liquidator       uuid.UUID `json:"liquidator"`
	RepaidDebt       string    `json:"repaid_debt"`
	SeizedCollateral string    `json:"seized_collateral"`
	Penalty          string    `json:"penalty"`
	BadDebt          string    `json:"bad_debt"`
	Price            string    `json:"price"`
	Timestamp        int64     `json:"timestamp"` // epoch microseconds
}

// VaultStatsResponse summarizes the vault.
type VaultStatsResponse struct {
	TotalCollateral string         `json:"total_collateral"`
	TotalPrincipal  string         `json:"total_principal"`
	TotalDebt       string         `json:"total_debt"`
	ActivePositions int            `json:"active_positions"`
	IndebtedOwners  int            `json:"indebted_owners"`
	BadDebt         string         `json:"bad_debt"`
	StabilityFees   string         `json:"stability_fees"`
	InterestIndex   string         `json:"interest_index"`
	Price           string         `json:"price,omitempty"`
	AverageRatio    string         `json:"average_ratio,omitempty"`
	Liquidations    int            `json:"liquidations"`
	Paused          bool           `json:"paused"`
	Params          ParamsResponse `json:"params"`
	StateHash       string         `json:"state_hash"`
	AsOfSequence    int64          `json:"as_of_sequence"`
}

// ParamsResponse renders the risk parameters.
type ParamsResponse struct {
	MinCollateralRatio   string `json:"min_collateral_ratio"`
	LiquidationThreshold string `json:"liquidation_threshold"`
	LiquidationPenalty   string `json:"liquidation_penalty"`
	StabilityFee         string `json:"stability_fee"`
	DebtCeiling          string `json:"debt_ceiling"` // "0" is unlimited
	MaxPriceAgeSeconds   int64  `json:"max_price_age_seconds"`
}

// LiquidatableResponse lists the owners eligible for liquidation.
type LiquidatableResponse struct {
	Owners       []uuid.UUID `json:"owners"`
	AsOfSequence int64       `json:"as_of_sequence"`
}

// PositionHistoryEntry is a closed position of an owner.
type PositionHistoryEntry struct {
	Generation int64 `json:"generation"`
	OpenedAt   int64 `json:"opened_at"`
	ClosedAt   int64 `json:"closed_at"`
}
