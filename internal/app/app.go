package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/unicard/ledger/internal/api"
	"github.com/unicard/ledger/internal/api/middleware"
	"github.com/unicard/ledger/internal/config"
	"github.com/unicard/ledger/internal/db"
	"github.com/unicard/ledger/internal/idempotency"
	"github.com/unicard/ledger/internal/lock"
	"github.com/unicard/ledger/internal/notify"
	"github.com/unicard/ledger/internal/observability"
	"github.com/unicard/ledger/internal/repository"
	"github.com/unicard/ledger/internal/service"
	"github.com/unicard/ledger/internal/worker"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	store := repository.NewStore(pool)

	var (
		redisClient *redis.Client
		redisCmd    redis.Cmdable
		locker      service.Locker = lock.NewLocal()
		sink        notify.Sink    = notify.LogSink{}
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		redisCmd = redisClient
		locker = lock.NewRedisLocker(redisClient)
		sink = notify.NewRedisSink(redisClient, cfg.NotifyChannel)
	} else {
		logger.Warn("REDIS_URL not set: using in-process locks and log notifications")
	}

	dispatcher := notify.NewDispatcher(sink, cfg.NotifyQueueSize)
	stopDispatcher := dispatcher.Run(ctx)

	limits := service.NewLimitService(store, service.LimitConfig{
		DailyLimit:   cfg.DefaultDailyLimit,
		MonthlyLimit: cfg.DefaultMonthlyLimit,
		Location:     cfg.Location,
	}, nil)
	ledger := service.NewLedgerService(store, limits, dispatcher, service.LedgerConfig{
		MaxRetries:    cfg.MaxRetries,
		RiskThreshold: cfg.RiskThreshold,
		Location:      cfg.Location,
	}, nil)
	recharge := service.NewRechargeService(store, ledger, locker, dispatcher, service.RechargeConfig{
		LockTTL:    cfg.RechargeLockTTL,
		MaxRetries: cfg.MaxRetries,
	}, nil)
	services := api.Services{
		Accounts: service.NewAccountService(store),
		Ledger:   ledger,
		Limits:   limits,
		Query:    service.NewQueryService(store, limits),
		Recharge: recharge,
	}

	idemStore := idempotency.NewStore(redisCmd, store.Queries(), cfg.IdempotencyTTL)

	stopReconciliation := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval).
		Run(ctx)
	stopPurge := worker.NewIdempotencyPurgeWorker(idemStore).
		WithPollInterval(cfg.IdempotencyPurgeEvery).
		Run(ctx)

	router := api.NewRouter(cfg, logger, pool, redisCmd, idemStore, services)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopPurge()
	stopReconciliation()
	stopDispatcher()

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
