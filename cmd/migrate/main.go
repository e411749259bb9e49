package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/dvloznov/budget-tracker/internal/config"
	infraBQ "github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/logger"
)

// migrate creates the BigQuery dataset and transactions table ahead of the
// first API start, so the server itself can run without admin rights.
func main() {
	var (
		configPath = flag.String("config", os.Getenv("BUDGET_CONFIG"), "Path to server TOML config (or set BUDGET_CONFIG env)")
		projectID  = flag.String("project", "", "GCP project ID (overrides config)")
		datasetID  = flag.String("dataset", "", "BigQuery dataset ID (overrides config)")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg.Store = "bigquery"
	if *projectID != "" {
		cfg.Project = *projectID
	}
	if *datasetID != "" {
		cfg.Dataset = *datasetID
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration, -project is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, err := infraBQ.NewTransactionRepository(ctx, cfg.Project, cfg.Dataset, cfg.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer repo.Close()

	log.Info().Str("project", cfg.Project).Str("dataset", cfg.Dataset).Str("table", cfg.Table).Msg("Ensuring schema")

	if err := repo.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure transactions table")
	}

	log.Info().Msg("Schema is up to date")
}
