package event

import "github.com/google/uuid"

// DebtIncreased reports newly minted debt. InterestFolded is the accrued
// interest booked into principal just before the increase.
type DebtIncreased struct {
	Owner          uuid.UUID `json:"owner"`
	Caller         uuid.UUID `json:"caller"`
	Amount         int64     `json:"amount"`
	Principal      int64     `json:"principal"`
	InterestFolded int64     `json:"interest_folded"`
}

func (d *DebtIncreased) EventType() EventType { return EventTypeDebtIncreased }

type DebtDecreased struct {
	Owner          uuid.UUID `json:"owner"`
	Amount         int64     `json:"amount"`
	Principal      int64     `json:"principal"`
	InterestFolded int64     `json:"interest_folded"`
}

func (d *DebtDecreased) EventType() EventType { return EventTypeDebtDecreased }

// Liquidated mirrors the liquidation log entry.
type Liquidated struct {
	LiquidationID    uuid.UUID `json:"liquidation_id"`
	Owner            uuid.UUID `json:"owner"`
	Liquidator       uuid.UUID `json:"liquidator"`
	RepaidDebt       int64     `json:"repaid_debt"`
	SeizedCollateral int64     `json:"seized_collateral"`
	Penalty          int64     `json:"penalty"`
	BadDebt          int64     `json:"bad_debt"`
	Price            int64     `json:"price"`
}

func (l *Liquidated) EventType() EventType { return EventTypeLiquidated }
