package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"covid-pipeline/internal/config"
	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/pipeline"
	"covid-pipeline/internal/store"
	"covid-pipeline/pkg/utils"

	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (yaml, json or toml)")
	country := flag.String("country", "", "country to forecast, overrides forecast.country")
	horizon := flag.Int("horizon", 0, "forecast horizon in days, overrides forecast.horizon")
	outDir := flag.String("out", "", "output directory, overrides export.output_dir")
	noForecast := flag.Bool("no-forecast", false, "skip the forecast stage")
	noDB := flag.Bool("no-db", false, "do not save the run to the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *country != "" {
		cfg.Forecast.Country = *country
	}
	if *horizon > 0 {
		cfg.Forecast.Horizon = *horizon
	}
	if *outDir != "" {
		cfg.Export.OutputDir = *outDir
	}
	if *noForecast {
		cfg.Forecast.Enabled = false
	}
	if *noDB {
		cfg.Export.Database = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := cfg.JobSpec()
	jobID := uuid.New().String()

	// a nil *store.Store must not end up inside the interface
	var st pipeline.Store
	if cfg.Export.Database {
		db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveJob(ctx, jobID, spec); err != nil {
			return err
		}
		st = db
	}

	runner := pipeline.NewRunner(
		pipeline.NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent),
		st,
		utils.NewOutputManager(cfg.Export.OutputDir),
	)
	res, err := runner.Run(ctx, jobID, spec)
	if res != nil && res.OutputDir != "" {
		fmt.Println(res.OutputDir)
	}
	if err != nil {
		return err
	}
	if res.ForecastError != "" {
		logger.Warn("forecast failed: %s", res.ForecastError)
	}
	return nil
}
