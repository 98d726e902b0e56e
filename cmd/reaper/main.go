package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelinehq/telehealth-queue/internal/appointment"
	"github.com/carelinehq/telehealth-queue/internal/config"
	"github.com/carelinehq/telehealth-queue/internal/db"
	"github.com/carelinehq/telehealth-queue/internal/notify"
	redisclient "github.com/carelinehq/telehealth-queue/internal/redis"
)

// The reaper sweeps PENDING appointment requests whose date has passed.
// Unconfirmed requests never enter the queue, so they otherwise sit in the
// doctor's pending list forever.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "reaper").Logger()
	logger.Info().Msg("reaper starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.ReaperInterval).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisPartitionLocker(rdb, cfg.LockTTL)
	notifier := notify.NewRedisNotifier(rdb, &notify.LogSender{Log: logger}, logger)
	svc := appointment.NewService(repo, locker, notifier, logger)

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reaper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	cancelled, err := svc.CancelStalePending(runCtx, appointment.Today())
	if err != nil {
		logger.Error().Err(err).Msg("reaper run error")
		return
	}
	logger.Info().Int("cancelled", cancelled).Dur("took", time.Since(start)).Msg("reaper run complete")
}
