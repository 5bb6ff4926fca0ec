// Package eventlog delivers committed vault envelopes to downstream
// consumers over NATS JetStream and the process log.
package eventlog

import (
	"encoding/hex"
	"strconv"
	"time"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
)

// Message is the outbound wire form of one envelope.
type Message struct {
	Sequence  int64          `json:"sequence"`
	RequestID string         `json:"request_id"`
	EventType string         `json:"event_type"`
	Owner     *uuid.UUID     `json:"owner,omitempty"`
	Payload   event.Event    `json:"payload"`
	Journals  []JournalEntry `json:"journals,omitempty"`
	StateHash string         `json:"state_hash"`
	PrevHash  string         `json:"prev_hash"`
	Timestamp time.Time      `json:"timestamp"`
}

// JournalEntry is a journal with account keys rendered as paths.
type JournalEntry struct {
	JournalID     uuid.UUID `json:"journal_id"`
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	Amount        int64     `json:"amount"`
	JournalType   string    `json:"journal_type"`
}

func NewMessage(env *event.Envelope) Message {
	msg := Message{
		Sequence:  env.Sequence,
		RequestID: env.RequestID,
		EventType: env.EventType.String(),
		Payload:   env.Payload,
		StateHash: hex.EncodeToString(env.StateHash[:]),
		PrevHash:  hex.EncodeToString(env.PrevHash[:]),
		Timestamp: env.Timestamp.UTC(),
	}
	if env.Owner != uuid.Nil {
		owner := env.Owner
		msg.Owner = &owner
	}
	for _, j := range env.Journals {
		msg.Journals = append(msg.Journals, JournalEntry{
			JournalID:     j.JournalID,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
		})
	}
	return msg
}

// Subject returns vault.events.{event_type}.
func (m Message) Subject() string {
	return SubjectPrefix + "." + m.EventType
}

// MsgID is the JetStream dedup id. Envelopes of one operation share a
// sequence but never an event type.
func (m Message) MsgID() string {
	return m.EventType + "-" + strconv.FormatInt(m.Sequence, 10)
}
