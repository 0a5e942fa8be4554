// Package main runs the background workers: the audit archiver draining the
// event queue into S3, and the optional presence sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vitalink-health/telehealth/config"
	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/participants"
	"github.com/vitalink-health/telehealth/internal/presence"
	"github.com/vitalink-health/telehealth/internal/worker"
	"github.com/vitalink-health/telehealth/pkg/database"
	"github.com/vitalink-health/telehealth/pkg/queue"
	"github.com/vitalink-health/telehealth/pkg/redis"
	"github.com/vitalink-health/telehealth/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		AuditBucket:     cfg.AWS.AuditBucket,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	archiver := worker.NewArchiveProcessor(s3Client, jobQueue, 0, 0, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go archiver.Run(workerCtx)
	logger.Info("audit archiver started")

	// Lazy eviction on heartbeat stays canonical; the sweeper only shortens
	// how long silent rows linger in rosters nobody polls.
	if cfg.Presence.SweepEnabled {
		participantRepo := participants.NewRepository(pool)
		sink := events.NewRedisSink(rdb.Client, jobQueue, logger)
		sweeper := presence.NewSweeper(participantRepo, sink, cfg.Presence.StaleWindow(), cfg.Presence.SweepInterval(), nil, logger)
		go sweeper.Run(workerCtx)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
