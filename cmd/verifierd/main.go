package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"zkrent/internal/app"
	"zkrent/internal/config"
	"zkrent/internal/infra/logging"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.NewVerifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init verifier")
	}
	if err := svc.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
