package persistence

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LiquidationRow is one row of vault.liquidation_records.
type LiquidationRow struct {
	LiquidationID    uuid.UUID
	Sequence         int64
	RequestID        string
	Owner            uuid.UUID
	Liquidator       uuid.UUID
	RepaidDebt       int64
	SeizedCollateral int64
	Penalty          int64
	BadDebt          int64
	Price            int64
	StateHash        string
	LiquidatedAt     time.Time
}

// LiquidationRowFrom converts a Liquidated envelope. ok is false for any
// other envelope.
func LiquidationRowFrom(env *event.Envelope) (LiquidationRow, bool) {
	liq, ok := env.Payload.(*event.Liquidated)
	if !ok {
		return LiquidationRow{}, false
	}
	return LiquidationRow{
		LiquidationID:    liq.LiquidationID,
		Sequence:         env.Sequence,
		RequestID:        env.RequestID,
		Owner:            liq.Owner,
		Liquidator:       liq.Liquidator,
		RepaidDebt:       liq.RepaidDebt,
		SeizedCollateral: liq.SeizedCollateral,
		Penalty:          liq.Penalty,
		BadDebt:          liq.BadDebt,
		Price:            liq.Price,
		StateHash:        hex.EncodeToString(env.StateHash[:]),
		LiquidatedAt:     env.Timestamp,
	}, true
}

const liquidationColumns = 12

// RecordWriter writes the liquidation log using multi-row INSERT.
type RecordWriter struct {
	db *sql.DB
}

func NewRecordWriter(db *sql.DB) *RecordWriter {
	return &RecordWriter{db: db}
}

// WriteBatch inserts rows through ex. Rows already stored are skipped, so a
// retried batch is harmless.
func (w *RecordWriter) WriteBatch(ctx context.Context, ex execer, rows []LiquidationRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO vault.liquidation_records
		(liquidation_id, sequence, request_id, owner_id, liquidator_id, repaid_debt,
		 seized_collateral, penalty, bad_debt, price, state_hash, liquidated_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*liquidationColumns)
	for i, r := range rows {
		placeholders := make([]string, liquidationColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", i*liquidationColumns+c+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			r.LiquidationID, r.Sequence, r.RequestID, r.Owner, r.Liquidator, r.RepaidDebt,
			r.SeizedCollateral, r.Penalty, r.BadDebt, r.Price, r.StateHash, r.LiquidatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (liquidation_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// ListByOwner returns owner's liquidations newest first. uuid.Nil lists
// every owner.
func (w *RecordWriter) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]LiquidationRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT liquidation_id, sequence, request_id, owner_id, liquidator_id, repaid_debt,
		       seized_collateral, penalty, bad_debt, price, state_hash, liquidated_at
		FROM vault.liquidation_records
		WHERE $1 = '00000000-0000-0000-0000-000000000000'::uuid OR owner_id = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LiquidationRow
	for rows.Next() {
		var r LiquidationRow
		if err := rows.Scan(
			&r.LiquidationID, &r.Sequence, &r.RequestID, &r.Owner, &r.Liquidator, &r.RepaidDebt,
			&r.SeizedCollateral, &r.Penalty, &r.BadDebt, &r.Price, &r.StateHash, &r.LiquidatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
