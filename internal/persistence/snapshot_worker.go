package persistence

import (
	"context"
	"fmt"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"

	"github.com/rs/zerolog"
)

// SnapshotSource captures the live vault state.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*core.SnapshotState, error)
	Sequence(ctx context.Context) (int64, error)
}

// SnapshotWorker snapshots the vault every interval operations, checked
// every checkEvery.
type SnapshotWorker struct {
	source     SnapshotSource
	store      *StateStore
	interval   int64
	checkEvery time.Duration
	keep       int
	lastSeq    int64
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewSnapshotWorker(
	source SnapshotSource,
	store *StateStore,
	interval int64,
	checkEvery time.Duration,
	keep int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *SnapshotWorker {
	if interval <= 0 {
		interval = 10_000
	}
	if checkEvery <= 0 {
		checkEvery = 10 * time.Second
	}
	return &SnapshotWorker{
		source:     source,
		store:      store,
		interval:   interval,
		checkEvery: checkEvery,
		keep:       keep,
		lastSeq:    -1,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run takes periodic snapshots until ctx is cancelled. Failures are logged
// and retried on the next tick.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			seq, err := w.source.Sequence(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn().Err(err).Msg("read vault sequence")
				}
				continue
			}
			if w.lastSeq >= 0 && seq-w.lastSeq < w.interval {
				continue
			}
			if w.lastSeq < 0 && seq == 0 {
				continue
			}
			snap, err := w.source.Snapshot(ctx)
			if err != nil {
				w.logger.Warn().Err(err).Msg("capture snapshot")
				continue
			}
			if err := w.Capture(ctx, snap); err != nil {
				w.logger.Warn().Err(err).Int64("sequence", snap.Sequence).Msg("periodic snapshot failed")
			}
		}
	}
}

// Capture stores snap, reads it back and marks it verified when the stored
// copy carries the same sequence and state hash.
func (w *SnapshotWorker) Capture(ctx context.Context, snap *core.SnapshotState) error {
	start := time.Now()

	size, err := w.store.Save(ctx, snap, start)
	if err != nil {
		return err
	}
	stored, err := w.store.LoadAt(ctx, snap.Sequence)
	if err != nil {
		return fmt.Errorf("read back snapshot: %w", err)
	}
	if stored == nil || stored.Sequence != snap.Sequence || stored.StateHash != snap.StateHash {
		return fmt.Errorf("snapshot at seq %d did not read back intact", snap.Sequence)
	}
	if err := w.store.MarkVerified(ctx, snap.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	if w.keep > 0 {
		if n, err := w.store.Prune(ctx, w.keep); err != nil {
			w.logger.Warn().Err(err).Msg("prune snapshots")
		} else if n > 0 {
			w.logger.Debug().Int64("deleted", n).Msg("pruned snapshots")
		}
	}

	w.lastSeq = snap.Sequence
	if w.metrics != nil {
		w.metrics.SnapshotTaken.Inc()
		w.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		w.metrics.SnapshotSizeBytes.Set(float64(size))
		w.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	w.logger.Info().Int64("sequence", snap.Sequence).Int("bytes", size).Str("state_hash", snap.StateHash).Msg("snapshot saved")
	return nil
}
