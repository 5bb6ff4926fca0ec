// internal/event/position.go
package event

import "github.com/google/uuid"

// PositionOpened is emitted on the deposit that creates a position.
type PositionOpened struct {
	Owner      uuid.UUID `json:"owner"`
	Generation int64     `json:"generation"`
}

func (p *PositionOpened) EventType() EventType { return EventTypePositionOpened }

// PositionClosed is emitted when collateral and debt both reach zero.
type PositionClosed struct {
	Owner      uuid.UUID `json:"owner"`
	Generation int64     `json:"generation"`
	Reason     string    `json:"reason"` // "repaid" or "liquidated"
}

func (p *PositionClosed) EventType() EventType { return EventTypePositionClosed }

type Deposited struct {
	Owner      uuid.UUID `json:"owner"`
	Amount     int64     `json:"amount"`
	Collateral int64     `json:"collateral"` // balance after
}

func (d *Deposited) EventType() EventType { return EventTypeDeposited }

type Withdrawn struct {
	Owner      uuid.UUID `json:"owner"`
	Amount     int64     `json:"amount"`
	Collateral int64     `json:"collateral"`
}

func (w *Withdrawn) EventType() EventType { return EventTypeWithdrawn }
