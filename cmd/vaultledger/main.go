package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VaultLedger/internal/config"
	"VaultLedger/internal/core"
	"VaultLedger/internal/eventlog"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/query"
	"VaultLedger/internal/server"
	"VaultLedger/internal/service"
	"VaultLedger/internal/state"
	"VaultLedger/internal/tokens"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("VAULT_CONFIG"), "path to a .toml or .yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLoggerWithLevel("main", observability.ParseLevel(cfg.LogLevel))
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("vaultledger stopped")
	}
	logger.Info().Msg("vaultledger shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := observability.ParseLevel(cfg.LogLevel)
	componentLogger := func(name string) zerolog.Logger {
		return observability.NewLoggerWithLevel(name, level)
	}

	params, err := cfg.Params()
	if err != nil {
		return err
	}
	admins, err := cfg.AdminIDs()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(nil)
	healthChecker := observability.NewHealthChecker()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("Postgres connected")

	migrator := persistence.NewMigrator(db, os.DirFS(cfg.Postgres.MigrationsDir), componentLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- Redis ---
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = oracle.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connected")
	}

	// --- NATS ---
	var (
		nc *nats.Conn
		js jetstream.JetStream
	)
	if cfg.NATS.URL != "" {
		nc, js, err = eventlog.ConnectNATS(cfg.NATS.URL, "vaultledger", componentLogger("nats"))
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := eventlog.EnsureStream(ctx, js, cfg.NATS.StreamMaxAge); err != nil {
			return err
		}
		logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connected")
	}

	// --- Oracle ---
	priceOracle, priceStore, err := buildOracle(cfg, rdb)
	if err != nil {
		return err
	}

	// --- Event log ---
	recordCh := make(chan persistence.LiquidationRow, cfg.Persist.ChanSize)
	events := eventlog.Fanout{
		eventlog.NewLogSink(componentLogger("events")),
		persistence.NewRecordFeed(ctx, recordCh, componentLogger("records")),
	}
	var publisher *eventlog.Publisher
	if js != nil {
		publisher = eventlog.NewPublisher(js, cfg.NATS.EventBuffer, metrics, componentLogger("publisher"))
		events = append(events, publisher)
	}

	// --- Coordinator ---
	faucet, err := cfg.FaucetLimit()
	if err != nil {
		return err
	}
	custody := tokens.NewCollateralCustody()
	debtToken := tokens.NewDebtToken()
	var collateral core.CollateralTokenLedger = custody
	if faucet > 0 {
		collateral = tokens.Faucet{CollateralCustody: custody, Limit: faucet}
		logger.Warn().Str("limit", fpmath.FormatAmount(faucet)).Msg("collateral faucet enabled")
	}

	vc, err := core.NewVaultCoordinator(core.Config{
		Params:          params,
		CollateralAsset: cfg.Oracle.Asset,
		Admins:          admins,
	}, core.Deps{
		Collateral: collateral,
		Debt:       debtToken,
		Oracle:     priceOracle,
		Events:     events,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	// --- Recovery ---
	store := persistence.NewStateStore(db)
	snap, err := store.LoadLatest(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		if err := vc.RestoreSnapshot(snap); err != nil {
			return fmt.Errorf("restore snapshot at seq %d: %w", snap.Sequence, err)
		}
		if err := seedTokens(ctx, vc, snap, custody, debtToken, logger); err != nil {
			return err
		}
		logger.Info().Int64("sequence", snap.Sequence).Str("state_hash", snap.StateHash).Msg("restored vault from snapshot")
	} else {
		logger.Info().Msg("no verified snapshot found, starting empty vault")
	}

	// --- Service ---
	var receipts service.ReceiptStore
	if rdb != nil {
		receipts = service.NewRedisReceiptStore(rdb, cfg.Redis.ReceiptTTL)
	}
	svc, err := service.New(vc, service.Options{
		QueueSize:     cfg.Service.QueueSize,
		DedupCapacity: cfg.Service.DedupCapacity,
		NodeID:        cfg.Service.NodeID,
		Receipts:      receipts,
		Metrics:       metrics,
		Logger:        componentLogger("service"),
	})
	if err != nil {
		return err
	}

	recordWorker := persistence.NewRecordWorker(db, recordCh, cfg.Persist.BatchSize, cfg.Persist.FlushTimeout,
		metrics, componentLogger("record-worker"))
	snapshotWorker := persistence.NewSnapshotWorker(svc, store, cfg.Snapshot.Interval, cfg.Snapshot.CheckEvery,
		cfg.Snapshot.Keep, metrics, componentLogger("snapshot-worker"))

	queryService := query.NewQueryService(svc, persistence.NewRecordWriter(db))
	srv, err := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		API:           server.NewVaultServer(svc, queryService),
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        componentLogger("server"),
	})
	if err != nil {
		return err
	}

	// --- Goroutines ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return recordWorker.Run(gctx) })
	g.Go(func() error { return snapshotWorker.Run(gctx) })
	g.Go(func() error { return srv.StartGRPC(gctx) })
	g.Go(func() error { return srv.StartHTTPGateway(gctx) })
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}

	var feed *oracle.NATSFeed
	if priceStore != nil {
		if err := oracle.EnsurePriceStream(ctx, js); err != nil {
			stop()
			return errors.Join(err, g.Wait())
		}
		feed = oracle.NewNATSFeed(js, priceStore, metrics, componentLogger("oracle"))
		if err := feed.Subscribe(gctx, cfg.NATS.PriceConsumer, cfg.Oracle.Asset); err != nil {
			stop()
			return errors.Join(err, g.Wait())
		}
	}

	healthChecker.SetProbe(svc.Probe)
	healthChecker.SetReady(true)
	srv.SetServing(true)
	logger.Info().
		Int64("sequence", vc.Sequence()).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("oracle", cfg.Oracle.Source).
		Msg("vaultledger ready")

	<-gctx.Done()
	healthChecker.SetReady(false)
	srv.SetServing(false)
	if feed != nil {
		feed.Stop()
	}
	runErr := g.Wait()
	if runErr != nil {
		logger.Error().Err(runErr).Msg("component failed, shutting down")
	} else {
		logger.Info().Msg("shutdown signal received")
	}

	// The executor has exited, so the coordinator can be read directly.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	final, err := vc.CreateSnapshot()
	if err == nil {
		err = snapshotWorker.Capture(shutdownCtx, final)
	}
	if err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
		return errors.Join(runErr, err)
	}
	return runErr
}

// buildOracle returns the price source and, for fed sources, the store the
// NATS feed writes into.
func buildOracle(cfg *config.Config, rdb *redis.Client) (core.PriceOracle, oracle.PriceStore, error) {
	switch cfg.Oracle.Source {
	case config.OracleStatic:
		price, err := cfg.StaticPrice()
		if err != nil {
			return nil, nil, err
		}
		return oracle.StaticOracle{Price: price}, nil, nil
	case config.OracleMemory:
		cache := oracle.NewMemoryPriceCache()
		return cache, cache, nil
	case config.OracleRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("%w: redis oracle without redis.addr", config.ErrInvalidConfig)
		}
		cache := oracle.NewRedisPriceCache(rdb)
		return cache, cache, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown oracle source %q", config.ErrInvalidConfig, cfg.Oracle.Source)
	}
}

// seedTokens rebuilds the in-process token balances that back the restored
// positions: custody holds all posted collateral, each owner holds the debt
// tokens minted to them. The wallets are not part of the snapshot, so
// transfers between holders before the restart are lost.
func seedTokens(ctx context.Context, vc *core.VaultCoordinator, snap *core.SnapshotState,
	custody *tokens.CollateralCustody, debt *tokens.DebtToken, logger zerolog.Logger) error {
	var (
		total   int64
		holders int
	)
	for _, p := range snap.Positions {
		if p.Status != state.PositionStatusActive {
			continue
		}
		view, err := vc.GetPosition(ctx, p.Owner)
		if err != nil {
			return fmt.Errorf("seed tokens for %s: %w", p.Owner, err)
		}
		if total, err = fpmath.AddChecked(total, view.Collateral); err != nil {
			return err
		}
		if view.Principal > 0 {
			debt.Restore(p.Owner, view.Principal)
			holders++
		}
	}
	custody.RestoreCustody(total)
	logger.Warn().
		Int64("sequence", snap.Sequence).
		Str("custody", fpmath.FormatAmount(total)).
		Int("debt_holders", holders).
		Msg("token wallets re-derived from positions: debt tokens are credited to their borrowers, transfers made before the restart are not restored")
	return nil
}
