package event

import (
	"encoding/json"
	"time"

	"VaultLedger/internal/ledger"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePositionOpened
	EventTypeDeposited
	EventTypeWithdrawn
	EventTypeDebtIncreased
	EventTypeDebtDecreased
	EventTypeLiquidated
	EventTypePositionClosed
	EventTypeVaultConfigUpdated
	EventTypeVaultPaused
	EventTypeVaultUnpaused
	EventTypeCapabilityGranted
	EventTypeCapabilityRevoked
)

// Envelope wraps every record the vault emits. One operation may emit
// several envelopes; they share the operation's sequence and state hash.
type Envelope struct {
	// Vault operation sequence assigned by the coordinator
	Sequence int64

	// Client request id the operation ran under
	RequestID string

	EventType EventType

	// Position owner, uuid.Nil for vault-wide records
	Owner uuid.UUID

	// Operation timestamp taken from the vault clock
	Timestamp time.Time

	Payload Event

	// Journals applied by the operation, on the first envelope only
	Journals []ledger.Journal

	// SHA-256 chain tip AFTER applying the operation
	StateHash [32]byte

	// Chain tip before the operation
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypeDeposited:
		return "Deposited"
	case EventTypeWithdrawn:
		return "Withdrawn"
	case EventTypeDebtIncreased:
		return "DebtIncreased"
	case EventTypeDebtDecreased:
		return "DebtDecreased"
	case EventTypeLiquidated:
		return "Liquidated"
	case EventTypePositionClosed:
		return "PositionClosed"
	case EventTypeVaultConfigUpdated:
		return "VaultConfigUpdated"
	case EventTypeVaultPaused:
		return "VaultPaused"
	case EventTypeVaultUnpaused:
		return "VaultUnpaused"
	case EventTypeCapabilityGranted:
		return "CapabilityGranted"
	case EventTypeCapabilityRevoked:
		return "CapabilityRevoked"
	default:
		return "Unknown"
	}
}

func (et EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(et.String())
}
