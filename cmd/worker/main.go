package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"safetywatch/internal/cache"
	"safetywatch/internal/config"
	"safetywatch/internal/database"
	"safetywatch/internal/log"
	"safetywatch/internal/queue"
	"safetywatch/internal/realtime"
	"safetywatch/internal/repository"
	"safetywatch/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "safetywatch-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	hub := realtime.NewHub(client, cfg.Realtime.ChannelPrefix, logger)
	processor := tasks.NewProcessor(hub, repository.NewWorkerRepository(dbPool), cfg.Jobs.StaleAfter, logger)
	consumer := queue.NewConsumer(client, queue.ConsumerOptions{
		Stream:        cfg.Realtime.Stream,
		Group:         cfg.Worker.Group,
		Consumer:      cfg.Worker.Consumer,
		ClaimInterval: cfg.Worker.ClaimInterval,
	}, logger, processor)

	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare consumer group")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
