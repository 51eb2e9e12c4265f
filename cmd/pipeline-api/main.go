// @title COVID-19 report pipeline API
// @version 1.0
// @description Start report runs over the JHU CSSE time series and query their derived tables, forecasts and files.
// @BasePath /api/v1
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"covid-pipeline/internal/api"
	"covid-pipeline/internal/api/handler"
	"covid-pipeline/internal/config"
	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/pipeline"
	"covid-pipeline/internal/store"
	"covid-pipeline/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	// Init DB
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to open store: %v", err)
	}
	defer st.Close()

	outputs := utils.NewOutputManager(cfg.Export.OutputDir)
	if err := outputs.EnsureOutputDirExists(); err != nil {
		logger.Fatal("failed to create output directory: %v", err)
	}

	runner := pipeline.NewRunner(pipeline.NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent), st, outputs)
	h := handler.New(st, runner, outputs, cfg.JobSpec())
	srv := api.NewServer(h, cfg.Logging.Level)

	go func() {
		logger.Info("listening on %s", cfg.Server.Addr)
		if err := srv.Start(cfg.Server.Addr); err != nil {
			logger.Fatal("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown: %v", err)
	}
}
