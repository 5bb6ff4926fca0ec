package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"VaultLedger/internal/core"

	"github.com/google/uuid"
)

// StateStore keeps vault snapshots in vault.snapshots. There is no event
// archive behind them: a restart resumes from the latest verified snapshot,
// so snapshots are taken periodically and once more on shutdown.
type StateStore struct {
	db *sql.DB
}

func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	SnapshotID uuid.UUID
	Sequence   int64
	StateHash  string
	SizeBytes  int
	Verified   bool
	CreatedAt  time.Time
}

// Save persists snap unverified and returns its encoded size. Saving the
// same sequence twice overwrites the earlier row.
func (s *StateStore) Save(ctx context.Context, snap *core.SnapshotState, createdAt time.Time) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vault.snapshots
			(snapshot_id, sequence, state_hash, format_version, data, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE
			SET state_hash = $3, format_version = $4, data = $5, size_bytes = $6, verified = FALSE, created_at = $7
	`, uuid.New(), snap.Sequence, snap.StateHash, core.SnapshotFormatVersion, data, len(data), createdAt)
	if err != nil {
		return 0, fmt.Errorf("save snapshot at seq %d: %w", snap.Sequence, err)
	}
	return len(data), nil
}

// MarkVerified flags the snapshot at sequence as safe to restore from.
func (s *StateStore) MarkVerified(ctx context.Context, sequence int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vault.snapshots SET verified = TRUE WHERE sequence = $1`, sequence)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no snapshot at sequence %d", sequence)
	}
	return nil
}

// LoadLatest returns the most recent verified snapshot, or nil when there is
// none (cold start).
func (s *StateStore) LoadLatest(ctx context.Context) (*core.SnapshotState, error) {
	return s.load(s.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM vault.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`))
}

// LoadAt returns the snapshot at sequence, verified or not, or nil.
func (s *StateStore) LoadAt(ctx context.Context, sequence int64) (*core.SnapshotState, error) {
	return s.load(s.db.QueryRowContext(ctx,
		`SELECT data, format_version FROM vault.snapshots WHERE sequence = $1`, sequence))
}

func (s *StateStore) load(row *sql.Row) (*core.SnapshotState, error) {
	var (
		data    []byte
		version int
	)
	err := row.Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != core.SnapshotFormatVersion {
		return nil, fmt.Errorf("snapshot format version %d, this build reads %d", version, core.SnapshotFormatVersion)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List returns the newest snapshots first, at most limit.
func (s *StateStore) List(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, sequence, state_hash, size_bytes, verified, created_at
		FROM vault.snapshots
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.SnapshotID, &info.Sequence, &info.StateHash, &info.SizeBytes, &info.Verified, &info.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep verified snapshots, and every
// unverified snapshot older than the newest verified one.
func (s *StateStore) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM vault.snapshots
		WHERE sequence < COALESCE((
			SELECT MIN(sequence) FROM (
				SELECT sequence FROM vault.snapshots
				WHERE verified = TRUE
				ORDER BY sequence DESC
				LIMIT $1
			) newest
		), 0)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
