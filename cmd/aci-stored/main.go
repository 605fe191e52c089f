package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-aci/internal/api"
	"github.com/celerix-dev/celerix-aci/internal/config"
	"github.com/celerix-dev/celerix-aci/internal/engine"
	"github.com/celerix-dev/celerix-aci/internal/logging"
	"github.com/celerix-dev/celerix-aci/internal/server"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "console", os.Stderr)
		bootLogger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	logger.Info().Msg("Starting aci data service...")

	persister, err := engine.NewPersistence(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize persistence")
	}

	reg := services.Default()
	store, err := engine.Open(cfg.DataDir, reg, persister)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load existing data")
	}
	logger.Info().Int("accounts", len(store.Accounts())).Str("dir", cfg.DataDir).Msg("Engine started")

	if cfg.Username == "" {
		logger.Warn().Msg("ACI_USERNAME is not set, any credentials are accepted")
	}
	h := &api.Handler{
		Store:    store,
		Registry: reg,
		Sessions: api.NewSessions(cfg.Username, cfg.Password),
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(h, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("port", cfg.HTTPPort).Msg("HTTP data service listening")
	if err := server.Serve(ctx, ":"+cfg.HTTPPort, router, cfg.HTTPTimeout); err != nil {
		logger.Error().Err(err).Msg("HTTP server failed")
	}

	logger.Info().Msg("Shutdown signal received. Finalizing disk writes...")
	store.Wait()
	logger.Info().Msg("Persistence complete. Exiting.")
}
