// ledgerd runs the sale transaction ledger daemon: the ledger service over
// the configured store driver plus the background jobs that keep installment
// statuses and the report cache fresh.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dijla-pos/dijla-pos/internal/app"
	"github.com/dijla-pos/dijla-pos/internal/customers"
	"github.com/dijla-pos/dijla-pos/internal/currency"
	"github.com/dijla-pos/dijla-pos/internal/inventory"
	"github.com/dijla-pos/dijla-pos/internal/platform/cache"
	"github.com/dijla-pos/dijla-pos/internal/platform/db"
	"github.com/dijla-pos/dijla-pos/internal/sales"
	"github.com/dijla-pos/dijla-pos/internal/settings"
	"github.com/dijla-pos/dijla-pos/internal/shared"
	"github.com/dijla-pos/dijla-pos/internal/store"
	"github.com/dijla-pos/dijla-pos/internal/store/pg"
	"github.com/dijla-pos/dijla-pos/jobs"
)

// ledgerStore is the full set of repository ports a store driver provides.
type ledgerStore interface {
	sales.RepositoryPort
	inventory.RepositoryPort
	customers.RepositoryPort
	currency.RepositoryPort
	settings.RepositoryPort
	shared.AuditPort
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var reportCache sales.CachePort
	if cfg.CacheEnabled() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		reportCache = sales.NewReportCache(client, cfg.ReportCacheTTL)
	}

	clock := shared.SystemClock()
	ledger := sales.NewService(
		st,
		inventory.NewAdjuster(st, clock, logger),
		customers.NewLedger(st, clock),
		currency.NewConverter(st),
		settings.NewProvider(st),
		clock,
		st,
		reportCache,
		logger,
	)

	runtime := app.NewRuntime(logger)
	if cfg.CacheEnabled() {
		worker, err := newWorker(cfg, logger, ledger, clock)
		if err != nil {
			return fmt.Errorf("build worker: %w", err)
		}
		runtime.Add("worker", worker.Run)
	} else {
		// Without Redis there is no queue; scan on a plain ticker instead.
		runtime.Add("overdue-ticker", func(ctx context.Context) error {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if _, err := ledger.MarkOverdueInstallments(ctx); err != nil {
						logger.Error("overdue scan failed", "error", err)
					}
				}
			}
		})
	}

	logger.Info("ledger daemon starting",
		slog.String("env", cfg.AppEnv),
		slog.String("store", cfg.StoreDriver))
	return runtime.Run(ctx)
}

func openStore(ctx context.Context, cfg *app.Config, logger *slog.Logger) (ledgerStore, error) {
	switch cfg.StoreDriver {
	case app.StoreDriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pg.New(pool), nil
	default:
		st, err := store.Open(cfg.StorePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return st, nil
	}
}

func newWorker(cfg *app.Config, logger *slog.Logger, ledger *sales.Service, clock shared.Clock) (*jobs.Worker, error) {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	overdue := &jobs.OverdueScanHandler{Ledger: ledger, Logger: logger}
	warmup := &jobs.ReportWarmupHandler{Ledger: ledger, Logger: logger, Clock: clock}

	warmupTask, err := jobs.NewReportWarmupTask(jobs.ReportWarmupPayload{DaysBack: 30})
	if err != nil {
		return nil, err
	}
	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeOverdueScan, Handler: overdue.Handle},
			{Type: jobs.TaskTypeReportWarmup, Handler: warmup.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueScanSpec, Task: jobs.NewOverdueScanTask()},
			{Spec: cfg.ReportWarmupSpec, Task: warmupTask},
		},
	})
}
