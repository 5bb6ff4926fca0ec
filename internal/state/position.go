// internal/state/position.go
package state

import (
	"github.com/google/uuid"
)

// PositionStatus is the lifecycle of an owner's vault relationship.
// NonExistent is the absence of a record.
type PositionStatus int32

const (
	PositionStatusActive PositionStatus = iota
	PositionStatusClosed
)

// Position is the lifecycle record of one owner's vault relationship.
// Balances live in the ledgers; the record carries identity and status.
type Position struct {
	Owner      uuid.UUID
	Generation int64 // 1 for the first position, +1 per reopen after close
	Status     PositionStatus
	OpenedAt   int64 // epoch microseconds
	ClosedAt   int64 // epoch microseconds, 0 while active
	Version    int64 // bumped on every status change
}

func (s PositionStatus) String() string {
	switch s {
	case PositionStatusActive:
		return "Active"
	case PositionStatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates state transitions. Closed is terminal.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	return s == PositionStatusActive && next == PositionStatusClosed
}

// IsActive reports whether the position accepts mutations.
func (p *Position) IsActive() bool {
	return p != nil && p.Status == PositionStatusActive
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)

	// owner (16 bytes UUID binary)
	buf = append(buf, p.Owner[:]...)

	buf = appendInt64LE(buf, p.Generation)

	// status (1 byte)
	buf = append(buf, byte(p.Status))

	buf = appendInt64LE(buf, p.OpenedAt)
	buf = appendInt64LE(buf, p.ClosedAt)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
