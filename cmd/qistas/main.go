package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/qistas/qistas/internal/analytics"
	"github.com/qistas/qistas/internal/app"
	"github.com/qistas/qistas/internal/billing"
	"github.com/qistas/qistas/internal/plans"
	"github.com/qistas/qistas/internal/platform/cache"
	"github.com/qistas/qistas/internal/platform/db"
	"github.com/qistas/qistas/internal/shared"
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
		logger.Warn("redis unavailable, analytics cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	invoiceStore := billing.NewRepository(pool)

	var gateway billing.ChargeGateway = billing.SandboxGateway{}
	if cfg.GatewayURL != "" {
		gateway = billing.NewHTTPGateway(cfg.GatewayURL)
	}

	analyticsRepo := analytics.NewRepository(pool)
	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	analyticsService := analytics.NewService(analyticsRepo, analyticsCache)
	analyticsHandler := analytics.NewHandler(logger, analyticsService)

	plansRepo := plans.NewRepository(pool)
	plansService := plans.NewService(plansRepo, invoiceStore, analyticsService, logger, shared.SystemClock)
	plansHandler := plans.NewHandler(logger, plansService)

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
	sweepHandler := sweep.NewHandler(logger, paymentSweeper, lateFeeSweeper, reminderScanner)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		PlansHandler:     plansHandler,
		SweepHandler:     sweepHandler,
		AnalyticsHandler: analyticsHandler,
		JobHandler:       jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
