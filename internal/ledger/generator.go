package ledger

import (
	"time"

	"github.com/google/uuid"
)

// JournalGenerator opens one batch per vault operation and owns the vault
// operation sequence stamped on every journal.
type JournalGenerator struct {
	sequence int64
}

func NewJournalGenerator(startSequence int64) *JournalGenerator {
	return &JournalGenerator{sequence: startSequence}
}

// Begin opens the batch for the next operation. Nothing is consumed until
// Advance is called, so an operation that fails validation leaves no gap.
func (jg *JournalGenerator) Begin(eventRef string, ts time.Time) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: ts.UnixMicro(),
		Journals:  make([]Journal, 0, 4),
	}
}

// Advance consumes the current sequence number.
func (jg *JournalGenerator) Advance() {
	jg.sequence++
}

// Sequence returns the sequence the next operation will carry.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}
