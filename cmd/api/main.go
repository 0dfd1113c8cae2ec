package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"classroom/internal/api"
	"classroom/internal/attendance"
	"classroom/internal/config"
	"classroom/internal/httpmiddleware"
	"classroom/internal/jobs"
	"classroom/internal/meeting"
	"classroom/internal/notify"
	"classroom/internal/queue"
	"classroom/internal/sessions"
	"classroom/internal/store"
)

const appName = "Classroom"

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func policyFrom(cfg config.App) sessions.Policy {
	p := sessions.DefaultPolicy()
	p.Horizon = sessions.HorizonMode(cfg.HorizonMode)
	p.RollingWindow = cfg.HorizonWindow
	p.ImminentWindow = cfg.ImminentWindow
	p.ProvisionTimeout = cfg.ProvisionTimeout
	p.JobRetries = cfg.JobRetries
	return p
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	health := map[string]api.HealthCheck{}

	// DATABASE_URL=memory runs without Postgres for local development.
	var (
		tx       sessions.TxManager
		attStore attendance.Store
		roster   notify.Roster
	)
	if cfg.DatabaseURL == "memory" {
		logger.Warn("using in-memory stores, data is lost on exit")
		tx = sessions.NewMemoryStore()
		attStore = attendance.NewMemoryStore()
		roster = notify.NewMemoryRoster()
	} else {
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		tx = sessions.NewPostgresTxManager(db.Client)
		attStore = attendance.NewPostgresStore(db.Client)
		roster = notify.NewPostgresRoster(db.Client)
		health["db"] = db.Healthy
	}

	var (
		q       queue.Queue
		limiter httpmiddleware.Limiter
	)
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "classroom:ratelimit:key:", cfg.RateLimitPerMin, time.Minute)
		health["redis"] = redisClient.Healthy
	}

	provider := meeting.New(cfg.MeetingProviderURL, cfg.MeetingProviderToken, cfg.MeetingSkip)
	provisioner := sessions.NewProvisioner(tx, provider, logger)
	reconciler := sessions.NewReconciler(tx, provisioner, q, policyFrom(cfg), logger)
	svc := sessions.NewService(tx, reconciler, cfg.DefaultTimezone)

	if inMem, ok := q.(*queue.InMemory); ok {
		// nothing else can drain an in-process queue
		notifier := notify.New(cfg.SendgridAPIKey, appName, cfg.MailFrom, logger)
		handler := jobs.NewScheduleChangeHandler(provisioner, roster, notifier, notify.NewMemoryDeduper(), 0, logger)
		go func() { _ = jobs.NewConsumer(inMem, handler, cfg.JobBackoff, logger).Run(ctx) }()
	}

	router := api.NewRouter(api.Deps{
		Sessions:   svc,
		Issuer:     attendance.NewTokenIssuer(attStore, svc, logger),
		Correlator: attendance.NewCorrelator(attStore, svc, logger),
		Log:        logger,
		SigningKey: cfg.JWTSigningKey,
		JWTIssuer:  cfg.JWTIssuer,
		Health:     health,
		KeyLimiter: limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", slog.Any("error", err))
	}
	logger.Info("server exited")
	return nil
}
