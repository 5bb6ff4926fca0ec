package core

import (
	"context"
	"time"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
)

// DebtTokenIssuer mints and burns the debt asset. The coordinator calls it
// in lockstep with DebtLedger changes and books nothing when it fails.
type DebtTokenIssuer interface {
	Mint(ctx context.Context, to uuid.UUID, amount int64) error
	Burn(ctx context.Context, from uuid.UUID, amount int64) error
}

// CollateralTokenLedger moves the collateral asset in and out of vault custody.
type CollateralTokenLedger interface {
	TransferIn(ctx context.Context, from uuid.UUID, amount int64) error
	TransferOut(ctx context.Context, to uuid.UUID, amount int64) error
}

// PriceOracle returns the price of asset in debt units per collateral unit
// (1e6 scale) and the time it was observed.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset string) (price int64, observedAt time.Time, err error)
}

// EventLog receives every committed envelope. Emit must not block for long
// and cannot fail the operation.
type EventLog interface {
	Emit(env *event.Envelope)
}

// Clock is the only source of time for the coordinator.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type discardLog struct{}

func (discardLog) Emit(*event.Envelope) {}

type requestIDKey struct{}

// WithRequestID attaches the client request id an operation runs under. It is
// stamped on the operation's journals and envelopes.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
