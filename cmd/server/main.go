package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/api"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/bot"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/config"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/handlers"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/openai"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/session"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/store"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/wecom"
)

func main() {
	// Initialize logger first so configuration failures are visible
	var logger zerolog.Logger
	if os.Getenv("ENV") == "production" {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}

	// Load configuration; bad config fails before serving traffic
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	ctx := context.Background()

	// Optional replay guard
	var replay *store.ReplayGuard
	if cfg.RedisURL != "" {
		replay, err = store.NewReplayGuard(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer replay.Close()
		logger.Info().Msg("replay guard enabled")
	}

	// Envelope protocol service; validates the EncodingAESKey eagerly
	svc, err := wecom.NewService(cfg.WecomToken, cfg.WecomEncodingAESKey, cfg.WecomCorpID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("wecom service setup failed")
	}

	// Outbound pipeline: platform client, token cache, chunked sender
	client := wecom.NewClient(cfg.WecomAPIBase, cfg.WecomCorpID, cfg.WecomAgentSecret, cfg.UpstreamTimeout, logger)
	tokens := wecom.NewTokenCache(client, logger)
	sender := wecom.NewSender(client, tokens, cfg.WecomAgentID, cfg.SendMaxChars, logger)

	// Conversation state and dispatch
	sessions := session.NewStore(cfg.SessionMaxTurns, cfg.SessionMaxBytes)
	ai := openai.NewClient(cfg.OpenAIAPIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAITemperature, cfg.UpstreamTimeout, logger)
	dispatcher := bot.NewDispatcher(sessions, ai, ai, logger)

	h := handlers.NewHandler(svc, sender, dispatcher, replay, cfg.ProcessTimeout, logger)
	router := api.NewRouter(logger, h)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting wecom bridge")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
