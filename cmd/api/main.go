package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"safetywatch/internal/authz"
	"safetywatch/internal/cache"
	"safetywatch/internal/config"
	"safetywatch/internal/database"
	"safetywatch/internal/handlers"
	"safetywatch/internal/ingest"
	"safetywatch/internal/jobs"
	"safetywatch/internal/log"
	"safetywatch/internal/queue"
	"safetywatch/internal/realtime"
	"safetywatch/internal/repository"
	"safetywatch/internal/security"
	"safetywatch/internal/server"
	"safetywatch/internal/service"
	"safetywatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "safetywatch-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	principals := repository.NewPrincipalRepository(dbPool)
	sessions := repository.NewSessionRepository(dbPool)
	roles := repository.NewRoleRepository(dbPool)
	supervisors := repository.NewSupervisorRepository(dbPool)
	workers := repository.NewWorkerRepository(dbPool)
	readings := repository.NewSensorRepository(dbPool)

	authorizer, err := authz.NewAuthorizer(logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load authorization policies")
	}
	gate := authz.NewGate(authorizer, roles, supervisors, workers, logger)

	hub := realtime.NewHub(redisClient, cfg.Realtime.ChannelPrefix, logger)
	producer := queue.NewProducer(redisClient, cfg.Realtime.Stream)

	hasher := security.NewPasswordHasher(security.DefaultArgon2Params)
	authService := service.NewAuthService(principals, sessions, roles, hasher, cfg, logger)
	provisioning := service.NewProvisioningService(authService, workers, cfg, logger)
	ingestion := service.NewIngestionService(gate, readings, hub, producer, logger)
	seeding := service.NewSeedingService(authService, roles, supervisors, workers, readings, cfg, logger)
	directory := service.NewWorkerService(gate, workers, readings, supervisors, logger)
	reports := service.NewReportService(directory, readings, objectStore, logger)

	if cfg.Bootstrap.AdminLogin != "" {
		if err := seeding.EnsureAdmin(ctx, cfg.Bootstrap.AdminLogin, cfg.Bootstrap.AdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("failed to bootstrap admin")
		}
		logger.Info().Str("login", cfg.Bootstrap.AdminLogin).Msg("admin account ready")
	}

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Config:       cfg,
		Log:          logger,
		Auth:         authService,
		Gate:         gate,
		Provisioning: provisioning,
		Ingestion:    ingestion,
		Seeding:      seeding,
		Workers:      directory,
		Reports:      reports,
		Hub:          hub,
		Checks: map[string]handlers.HealthCheck{
			"postgres": dbPool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"storage":  objectStore.Ping,
		},
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(producer, cfg.Jobs.StaleSweepSpec, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	var bridge *ingest.Bridge
	if cfg.MQTT.Enabled {
		bridge = ingest.NewBridge(cfg.MQTT, ingestion, logger)
		if err := bridge.Start(ctx); err != nil {
			logger.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt bridge start failed")
			bridge = nil
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, bridge, dbPool, redisClient)
}

func waitForShutdown(
	logger zerolog.Logger,
	srv *server.HTTPServer,
	scheduler *jobs.Scheduler,
	bridge *ingest.Bridge,
	db *pgxpool.Pool,
	redisClient *redis.Client,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if bridge != nil {
		bridge.Stop()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler jobs still running at shutdown")
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
