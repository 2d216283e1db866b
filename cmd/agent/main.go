package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/stitchline/stitchline/internal/adapter"
	"github.com/stitchline/stitchline/internal/config"
	"github.com/stitchline/stitchline/internal/handler/admin"
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/server"
	"github.com/stitchline/stitchline/internal/service"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/internal/workers"
	"github.com/stitchline/stitchline/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewAgentLogger("stitchline-agent")
	cfg, err := config.GetAgentConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	log.Debug().Any("config", cfg).Msg("received configs")

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)
	defer stop()

	storages, err := store.NewClientStorages(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create local storage")
	}

	serverAdapter := adapter.NewHTTPServerAdapter(adapter.HTTPClientConfig{
		BaseURL: cfg.Sync.ServerURL,
		ActorID: cfg.Sync.ActorID,
		Timeout: cfg.Sync.RequestTimeout,
	})

	services := service.NewClientServices(cfg.Sync, storages.Local, serverAdapter, log)
	services.Runner.Observe(func(progress models.SyncProgress) {
		log.Info().
			Int("processed", progress.Processed).
			Int("total", progress.Total).
			Int("percent", progress.Percent()).
			Str("status", string(progress.Status)).
			Msg("sync progress")
	})

	agentWorkers := workers.NewWorkers(services.Monitor)
	agentWorkers.Run()

	adminHandler := admin.NewHandler(
		services.Queue,
		services.Runner,
		services.Monitor,
		storages.Local,
		serverAdapter,
		cfg.Sync.ActorID,
		log,
	)
	adminServer := server.NewAdminServer(adminHandler.Init(), cfg.Sync.AdminAddress, log)
	go adminServer.RunServer()
	log.Info().Str("address", cfg.Sync.AdminAddress).Msg("admin API listening")

	log.Info().Msg("agent started")
	<-ctx.Done()

	adminServer.Shutdown()
	services.Monitor.Stop()
	log.Info().Msg("agent shutdown gracefully")
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
