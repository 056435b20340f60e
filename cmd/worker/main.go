package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/qistas/qistas/internal/analytics"
	"github.com/qistas/qistas/internal/app"
	"github.com/qistas/qistas/internal/billing"
	jobmetrics "github.com/qistas/qistas/internal/jobs"
	"github.com/qistas/qistas/internal/platform/cache"
	"github.com/qistas/qistas/internal/platform/db"
	"github.com/qistas/qistas/internal/sweep"
	"github.com/qistas/qistas/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, analytics cache invalidation disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	var gateway billing.ChargeGateway = billing.SandboxGateway{}
	if cfg.GatewayURL != "" {
		gateway = billing.NewHTTPGateway(cfg.GatewayURL)
	}

	analyticsService := analytics.NewService(
		analytics.NewRepository(pool),
		analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL))

	sweepStore := sweep.NewRepository(pool)
	paymentSweeper := sweep.NewPaymentSweeper(sweep.PaymentSweeperConfig{
		Store:         sweepStore,
		Gateway:       gateway,
		Invalidator:   analyticsService,
		Logger:        logger,
		Lookahead:     cfg.SweepLookahead,
		ChargeTimeout: cfg.ChargeTimeout,
		Concurrency:   cfg.SweepConcurrency,
	})
	lateFeeSweeper := sweep.NewLateFeeSweeper(sweep.LateFeeSweeperConfig{
		Store:       sweepStore,
		Invalidator: analyticsService,
		Logger:      logger,
	})
	reminderScanner := sweep.NewReminderScanner(sweep.ReminderScannerConfig{
		Store:      sweepStore,
		Dispatcher: billing.LogDispatcher{Logger: logger},
		Logger:     logger,
	})

	metrics := jobmetrics.NewMetrics(nil)
	paymentJob := jobs.NewPaymentSweepJob(paymentSweeper, logger, metrics)
	lateFeeJob := jobs.NewLateFeeSweepJob(lateFeeSweeper, logger, metrics)
	reminderJob := jobs.NewReminderScanJob(reminderScanner, logger, metrics)

	paymentTask, err := jobs.NewPaymentSweepTask(jobs.PaymentSweepPayload{})
	if err != nil {
		logger.Error("build payment sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	lateFeeTask, err := jobs.NewLateFeeSweepTask(jobs.LateFeeSweepPayload{})
	if err != nil {
		logger.Error("build late fee sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	reminderTask, err := jobs.NewReminderScanTask(jobs.ReminderScanPayload{})
	if err != nil {
		logger.Error("build reminder scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPaymentSweep, Handler: paymentJob.Handle},
			{Type: jobs.TaskLateFeeSweep, Handler: lateFeeJob.Handle},
			{Type: jobs.TaskReminderScan, Handler: reminderJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PaymentSweepCron, Task: paymentTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LateFeeSweepCron, Task: lateFeeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReminderScanCron, Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
