package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-agent/internal/api"
	"github.com/dvloznov/finance-agent/internal/app"
	"github.com/dvloznov/finance-agent/internal/config"
	"github.com/dvloznov/finance-agent/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log, err := logger.NewWithLevel(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to configure logger")
	}

	// Lives until shutdown; the delivery workers run under it.
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	application, err := app.Build(ctx, cfg, log, app.Options{QueueDeliveries: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize agent")
	}

	deps := api.Deps{
		Agent:          application.Agent,
		Transactions:   application.Store,
		Jobs:           application.Jobs,
		Linker:         application.Linker,
		WebhookSecret:  cfg.Telegram.WebhookSecret,
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if application.Recorder != nil {
		deps.Interpretations = application.Recorder
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewHandler(deps, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("storage", cfg.Storage.Backend).
			Bool("audit", application.Recorder != nil).
			Bool("archive", application.Archiver != nil).
			Bool("notion_mirror", application.Mirror != nil).
			Bool("telegram_webhook", application.Linker != nil).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Drain in-flight deliveries before the worker context goes away.
	if err := application.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error releasing resources")
	}
	cancel()

	log.Info().Msg("Server exited")
}
