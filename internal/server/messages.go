package server

import "VaultLedger/internal/query"

// Request messages of vault.v1.VaultService. Amounts are decimal strings in
// whole units ("1500.25"). Owner defaults to the caller where omitted.

type AmountRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Amount    string `json:"amount"`
}

type OwnerRequest struct {
	Owner string `json:"owner,omitempty"`
}

type QuoteRequest struct {
	Owner  string `json:"owner,omitempty"`
	Amount string `json:"amount"`
}

type HistoryRequest struct {
	Owner string `json:"owner,omitempty"` // empty lists every owner
	Limit int    `json:"limit,omitempty"`
}

// SetParamRequest sets one risk parameter. Ratios, penalty and fee are
// percentages ("150", "12.5%"), the debt ceiling an amount and the max
// price age a duration ("90s", "1h") or whole seconds.
type SetParamRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

type CapabilityRequest struct {
	Target     string `json:"target"`
	Capability string `json:"capability"`
}

type Empty struct{}

type AdminResponse struct {
	OK bool `json:"ok"`
}

type PositionHistoryResponse struct {
	Owner     string                       `json:"owner"`
	Positions []query.PositionHistoryEntry `json:"positions"`
}

type LiquidationsResponse struct {
	Liquidations []query.LiquidationResponse `json:"liquidations"`
}
