package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for VaultLedger.
type Metrics struct {
	// --- Coordinator ---
	CoreOpsApplied  *prometheus.CounterVec
	CoreOpsRejected *prometheus.CounterVec
	CoreOpDuration  *prometheus.HistogramVec
	CoreJournals    *prometheus.CounterVec
	CoreSequence    prometheus.Gauge

	// --- Vault totals ---
	TotalCollateral prometheus.Gauge
	TotalDebt       prometheus.Gauge
	TotalPrincipal  prometheus.Gauge
	InterestIndex   prometheus.Gauge
	ActivePositions prometheus.Gauge
	BadDebt         prometheus.Gauge
	StabilityFees   prometheus.Gauge
	Paused          prometheus.Gauge

	// --- Liquidation ---
	Liquidations     *prometheus.CounterVec
	LiquidatedDebt   prometheus.Counter
	SeizedCollateral prometheus.Counter

	// --- Oracle ---
	OracleFailures *prometheus.CounterVec
	OraclePriceAge prometheus.Gauge
	PriceUpdates   *prometheus.CounterVec

	// --- Executor & backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	PublishDrops       prometheus.Counter
	PublishErrors      prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Gauge

	// --- Persistence ---
	PersistRecordsWritten prometheus.Counter
	PersistBatchSize      prometheus.Histogram
	PersistErrors         *prometheus.CounterVec
	PersistRetry          prometheus.Counter
	PersistLastSequence   prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// --- API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreOpsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_ops_applied_total",
			Help: "Operations committed by the coordinator",
		}, []string{"op"}),

		CoreOpsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_ops_rejected_total",
			Help: "Operations rejected, by reason",
		}, []string{"op", "reason"}),

		CoreOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_core_op_duration_seconds",
			Help:    "Time to run one coordinator operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_core_sequence",
			Help: "Next vault operation sequence",
		}),

		TotalCollateral: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_total_collateral",
			Help: "Total collateral booked (base units)",
		}),

		TotalDebt: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_total_debt",
			Help: "Effective vault debt at the committed index (base units)",
		}),

		TotalPrincipal: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_total_principal",
			Help: "Booked principal (base units)",
		}),

		InterestIndex: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_interest_index",
			Help: "Committed global interest index (1.0 = no accrual)",
		}),

		ActivePositions: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_active_positions",
			Help: "Number of active positions",
		}),

		BadDebt: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_bad_debt",
			Help: "Debt written off by shortfall liquidations (base units)",
		}),

		StabilityFees: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_stability_fees_earned",
			Help: "Interest folded into principal (base units)",
		}),

		Paused: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_paused",
			Help: "1 while the vault is paused",
		}),

		Liquidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_liquidations_total",
			Help: "Liquidations executed",
		}, []string{"outcome"}),

		LiquidatedDebt: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_liquidated_debt_total",
			Help: "Debt repaid by liquidators (base units)",
		}),

		SeizedCollateral: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_seized_collateral_total",
			Help: "Collateral transferred to liquidators (base units)",
		}),

		OracleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_oracle_failures_total",
			Help: "Price reads that failed the operation closed",
		}, []string{"reason"}),

		OraclePriceAge: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_oracle_price_age_seconds",
			Help: "Age of the last accepted price",
		}),

		PriceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_price_updates_total",
			Help: "Price feed messages, by result",
		}, []string{"result"}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_errors_total",
			Help: "Events the broker refused",
		}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_idempotency_duplicates_total",
			Help: "Duplicate request ids rejected",
		}, []string{"op"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_dedup_lru_evictions",
			Help: "LRU evictions since start",
		}),

		PersistRecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_records_written_total",
			Help: "Liquidation records written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Records per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Sequence of the last persisted record",
		}),

		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_api_requests_total",
			Help: "API requests",
		}, []string{"method", "code"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_api_duration_seconds",
			Help:    "API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"method"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
