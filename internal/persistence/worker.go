package persistence

import (
	"context"
	"database/sql"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"

	"github.com/rs/zerolog"
)

const recordChannel = "liquidation_records"

// RecordFeed is the core.EventLog that hands Liquidated envelopes to the
// RecordWorker. The send blocks, so a stalled database applies backpressure
// to the vault instead of losing records. After ctx ends sends are dropped
// and logged; the records are still in the next snapshot.
type RecordFeed struct {
	ctx    context.Context
	ch     chan<- LiquidationRow
	logger zerolog.Logger
}

func NewRecordFeed(ctx context.Context, ch chan<- LiquidationRow, logger zerolog.Logger) *RecordFeed {
	return &RecordFeed{ctx: ctx, ch: ch, logger: logger}
}

func (f *RecordFeed) Emit(env *event.Envelope) {
	row, ok := LiquidationRowFrom(env)
	if !ok {
		return
	}
	select {
	case f.ch <- row:
	case <-f.ctx.Done():
		f.logger.Warn().Int64("sequence", row.Sequence).Str("liquidation_id", row.LiquidationID.String()).
			Msg("record feed closed, liquidation not persisted")
	}
}

var _ core.EventLog = (*RecordFeed)(nil)

// RecordWorker drains the record channel and batch-writes to Postgres. It
// runs independently of the vault executor.
type RecordWorker struct {
	db           *sql.DB
	writer       *RecordWriter
	inputChan    <-chan LiquidationRow
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewRecordWorker(
	db *sql.DB,
	inputChan <-chan LiquidationRow,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *RecordWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushTimeout <= 0 {
		flushTimeout = 100 * time.Millisecond
	}
	return &RecordWorker{
		db:           db,
		writer:       NewRecordWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run batches incoming rows and flushes when the batch is full or the flush
// timeout expires. On shutdown it drains the channel and flushes once more.
func (w *RecordWorker) Run(ctx context.Context) error {
	batch := make([]LiquidationRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			batch = w.drain(batch)
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.logger.Error().Err(err).Int("records", len(batch)).Msg("final flush failed")
				}
			}
			return nil

		case row, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.logger.Error().Err(err).Int("records", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}
			batch = append(batch, row)
			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			if w.metrics != nil {
				w.metrics.SetChannelMetrics(recordChannel, len(w.inputChan), cap(w.inputChan))
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// drain appends whatever is already queued without waiting for more.
func (w *RecordWorker) drain(batch []LiquidationRow) []LiquidationRow {
	for {
		select {
		case row, ok := <-w.inputChan:
			if !ok {
				return batch
			}
			batch = append(batch, row)
		default:
			return batch
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx ends, then makes one last attempt without ctx. The worker never
// drops a batch while running.
func (w *RecordWorker) flushWithRetry(ctx context.Context, rows []LiquidationRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			w.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("records", len(rows)).Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), rows); err != nil {
					w.logger.Error().Err(err).Int("records", len(rows)).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		err := w.flush(ctx, rows)
		if err == nil {
			if attempt > 0 {
				w.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return
		}
		w.logger.Warn().Err(err).Msg("persistence flush failed")
	}
}

func (w *RecordWorker) flush(ctx context.Context, rows []LiquidationRow) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteBatch(ctx, tx, rows); err != nil {
		w.countError("write_records")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchSize.Observe(float64(len(rows)))
		w.metrics.PersistRecordsWritten.Add(float64(len(rows)))
		w.metrics.PersistLastSequence.Set(float64(rows[len(rows)-1].Sequence))
	}
	return nil
}

func (w *RecordWorker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
