package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"classroom/internal/config"
	"classroom/internal/jobs"
	"classroom/internal/meeting"
	"classroom/internal/notify"
	"classroom/internal/queue"
	"classroom/internal/sessions"
	"classroom/internal/store"
)

const appName = "Classroom"

// Worker consumes schedule-change jobs and sweeps imminent sessions that
// still need a meeting.
func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	if cfg.QueueBackend == "memory" {
		return errors.New("worker needs QUEUE_BACKEND=redis; the api drains in-memory queues itself")
	}

	db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying")
	}

	provider := meeting.New(cfg.MeetingProviderURL, cfg.MeetingProviderToken, cfg.MeetingSkip)
	if !cfg.MeetingSkip {
		if err := provider.Health(ctx); err != nil {
			logger.Warn("meeting provider not available, provisioning will be retried", slog.Any("error", err))
		}
	}
	provisioner := sessions.NewProvisioner(sessions.NewPostgresTxManager(db.Client), provider, logger)

	handler := jobs.NewScheduleChangeHandler(
		provisioner,
		notify.NewPostgresRoster(db.Client),
		notify.New(cfg.SendgridAPIKey, appName, cfg.MailFrom, logger),
		notify.NewRedisDeduper(redisClient.Client, cfg.NotifyDedupTTL),
		0,
		logger,
	)

	scheduler := jobs.NewScheduler(jobs.NewSweeper(provisioner, cfg.ImminentWindow, logger), cfg.ProvisionCron, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	return jobs.NewConsumer(q, handler, cfg.JobBackoff, logger).Run(ctx)
}
