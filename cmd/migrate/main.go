package main

import (
	"context"
	"time"

	"safetywatch/internal/config"
	"safetywatch/internal/database"
	"safetywatch/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.OpenSQL(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open postgres")
	}
	defer db.Close()

	migrations, err := database.Migrations()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load migrations")
	}

	applied, err := database.NewMigrator(db, logger, migrations).Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	if len(applied) == 0 {
		logger.Info().Msg("schema is up to date")
		return
	}
	logger.Info().Strs("applied", applied).Msg("migrations applied")
}
