package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clearpath/clearpath/internal/advisor"
	"github.com/clearpath/clearpath/internal/app"
	"github.com/clearpath/clearpath/internal/banksync"
	"github.com/clearpath/clearpath/internal/debt"
	"github.com/clearpath/clearpath/internal/notify"
	"github.com/clearpath/clearpath/internal/observability"
	"github.com/clearpath/clearpath/internal/platform/cache"
	"github.com/clearpath/clearpath/internal/platform/db"
	"github.com/clearpath/clearpath/internal/shared"
	"github.com/clearpath/clearpath/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var debtCache *debt.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, cache bumps disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		debtCache = debt.NewCache(redisClient, 10*time.Minute)
	}

	idempotencyStore := shared.NewIdempotencyStore(pool)

	debtRepo := debt.NewRepository(pool)

	var bank debt.BankPort
	if cfg.BankConfigured() {
		bank = banksync.NewClient(cfg.PlaidBaseURL, cfg.PlaidClientID, cfg.PlaidSecret)
	}
	var adv debt.AdvisorPort
	if cfg.AdvisorConfigured() {
		adv = advisor.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	debtService := debt.NewService(debtRepo, debtCache, bank, adv)
	mailer := notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	metrics := observability.NewMetrics()

	syncJob := jobs.NewBankSyncRefreshJob(debtService, logger, metrics)
	digestJob := jobs.NewDueSoonDigestJob(debtService, mailer, cfg.DigestTo, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, cfg.IdempotencyRetention, logger, metrics)

	syncTask, err := jobs.NewBankSyncTask(jobs.BankSyncPayload{})
	if err != nil {
		logger.Error("build sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBankSyncRefresh, Handler: syncJob.HandleTask},
			{Type: jobs.TaskDueSoonDigest, Handler: digestJob.HandleTask},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.HandleTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BankSyncCron, Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.DigestCron, Task: jobs.NewDueSoonDigestTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * *", Task: jobs.NewIdempotencyCleanupTask()},
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
