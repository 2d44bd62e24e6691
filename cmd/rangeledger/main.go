package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"RangeLedger/internal/config"
	"RangeLedger/internal/core"
	"RangeLedger/internal/ingestion"
	"RangeLedger/internal/lease"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/persistence"
	"RangeLedger/internal/projection"
	"RangeLedger/internal/query"
	"RangeLedger/internal/server"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// drainTimeout bounds how long shutdown waits for the workers to flush.
const drainTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("RANGE_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLoggerWithLevel("rangeledger", observability.ParseLogLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("rangeledger exited")
	}
	logger.Info().Msg("rangeledger shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	health.SetComponent("postgres", true)
	logger.Info().Msg("postgres connected")

	if cfg.Postgres.RunMigrations {
		migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, logger.With().Str("component", "migrator").Logger())
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// --- Single-writer lease ---
	var writerLease *lease.Lease
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		writerLease = lease.New(rdb, cfg.Redis.LeaseKey, cfg.Redis.LeaseTTL, metrics, logger.With().Str("component", "lease").Logger())
		if err := writerLease.Acquire(ctx); err != nil {
			return err
		}
		defer writerLease.Release()
		health.SetComponent("lease", true)
	}

	// --- Core + recovery ---
	coreOut := make(chan core.CoreOutput, cfg.Pipeline.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.Pipeline.ProjectionChanSize)
	persistChan := make(chan core.CoreOutput, cfg.Pipeline.PersistChanSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	snapMgr := persistence.NewSnapshotManager(db)
	ledgerCore := core.NewDeterministicCore(0, ledger.AssetUSDC, coreOut, projectionChan, dbChecker, metrics,
		logger.With().Str("component", "core").Logger())

	if err := recoverCore(ctx, ledgerCore, snapMgr, dbChecker, cfg.Ledger.IdempotencyWarmKeys, metrics, logger); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	if err := projection.Rebuild(ctx, db, ledgerCore.CreateSnapshotState()); err != nil {
		return fmt.Errorf("rebuild projections: %w", err)
	}

	runner := core.NewRunner(ledgerCore, cfg.Pipeline.CoreQueueSize, metrics)

	// --- Workers: drained through channel close, not ctx ---
	var publishChan chan ingestion.PublishableEvent
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	var workers sync.WaitGroup
	startWorker := func(name string, fn func(context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := fn(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("worker", name).Msg("worker stopped")
			}
		}()
	}

	persistWorker := persistence.NewPersistenceWorker(db, persistChan, cfg.Pipeline.PersistBatchSize,
		cfg.Pipeline.PersistFlushTimeout, metrics, logger.With().Str("component", "persistence").Logger())
	startWorker("persistence", persistWorker.Run)

	projWorker := projection.NewProjectionWorker(db, projectionChan, metrics, logger.With().Str("component", "projection").Logger())
	startWorker("projection", projWorker.Run)

	// --- NATS ---
	var subscriber *ingestion.NATSSubscriber
	var rawChan chan ingestion.RawEvent
	if cfg.NATS.URL != "" {
		nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
			return fmt.Errorf("ensure streams: %w", err)
		}
		if err := ingestion.EnsureOutboundStream(ctx, js, logger); err != nil {
			return fmt.Errorf("ensure outbound stream: %w", err)
		}
		health.SetComponent("nats", true)

		publishChan = make(chan ingestion.PublishableEvent, cfg.Pipeline.PublishChanSize)
		publisher := ingestion.NewOutboundPublisher(js, publishChan, logger.With().Str("component", "publisher").Logger())
		startWorker("publisher", publisher.Run)

		rawChan = make(chan ingestion.RawEvent, cfg.Pipeline.InboundChanSize)
		subscriber = ingestion.NewNATSSubscriber(js, rawChan, logger.With().Str("component", "nats").Logger())
	}

	teeDone := make(chan struct{})
	go func() {
		fanOut(coreOut, persistChan, publishChan, metrics)
		close(teeDone)
	}()

	runnerCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	runnerDone := make(chan struct{})
	go func() {
		_ = runner.Run(runnerCtx)
		close(runnerDone)
	}()

	// --- API ---
	admin := &adminHooks{
		runner:  runner,
		snaps:   snapMgr,
		db:      db,
		metrics: metrics,
		logger:  logger.With().Str("component", "admin").Logger(),
	}
	ledgerServer := server.NewLedgerServer(&server.ServerDeps{
		Core:        runner,
		Ingest:      ingestion.NewGRPCIngestService(runner, cfg.Ingest.RatePerSecond, cfg.Ingest.Burst, metrics),
		Query:       query.NewQueryService(db, cfg.Ledger.TokenDecimals, metrics),
		SnapshotMgr: snapMgr,
		Admin:       admin,
	})
	apiServer, err := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, ledgerServer, health,
		logger.With().Str("component", "server").Logger())
	if err != nil {
		return err
	}

	// --- Intake goroutines ---
	g, gctx := errgroup.WithContext(ctx)

	if subscriber != nil {
		if err := subscriber.Subscribe(gctx, ingestion.DefaultSubjects()); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		dispatcher := ingestion.NewDispatcher(runner, metrics, logger.With().Str("component", "dispatcher").Logger())
		g.Go(func() error { return ignoreCanceled(dispatcher.Run(gctx, rawChan)) })
	}
	if writerLease != nil {
		g.Go(func() error {
			if err := writerLease.Keep(gctx); err != nil {
				health.SetComponent("lease", false)
				return err
			}
			return nil
		})
	}
	g.Go(func() error { return apiServer.Run(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.Server.MetricsAddr, logger) })
	g.Go(func() error {
		admin.runPeriodic(gctx, cfg.Snapshot.Interval, cfg.Snapshot.CheckEvery)
		return nil
	})

	health.SetReady(true)
	apiServer.SetServing(true)
	logger.Info().
		Int64("sequence", ledgerCore.GetSequence()).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("rangeledger ready")

	runErr := g.Wait()
	if runErr != nil {
		logger.Error().Err(runErr).Msg("shutting down after failure")
	} else {
		logger.Info().Msg("shutting down")
	}
	health.SetReady(false)

	// Stop intake, then the core, then drain what the core already emitted.
	if subscriber != nil {
		subscriber.Stop()
	}
	stopRunner()
	<-runnerDone
	close(coreOut)
	close(projectionChan)
	<-teeDone

	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.Warn().Msg("workers did not drain in time")
		cancelWorkers()
		<-drained
	}

	// The runner is stopped, so the core can be read directly.
	finalCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if seq, size, err := admin.save(finalCtx, ledgerCore.CreateSnapshotState()); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else if seq >= 0 {
		logger.Info().Int64("sequence", seq).Int("size_bytes", size).Msg("final snapshot saved")
	}

	return runErr
}

// fanOut forwards every core output to the persistence worker, blocking so
// that no committed command is lost, and offers it to the outbound
// publisher, dropping when the publisher lags. It closes both outputs once
// in is closed.
func fanOut(in <-chan core.CoreOutput, persist chan<- core.CoreOutput, publish chan<- ingestion.PublishableEvent, metrics *observability.Metrics) {
	defer close(persist)
	if publish != nil {
		defer close(publish)
	}
	for out := range in {
		persist <- out
		if publish == nil {
			continue
		}
		select {
		case publish <- ingestion.NewPublishableEvent(out):
		default:
			if metrics != nil {
				metrics.PublishDrops.Inc()
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
