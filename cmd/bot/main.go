package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-transcription-bot/internal/app"
	"call-transcription-bot/internal/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	ctx := context.Background()
	a := app.New(ctx, cfg, nil)

	if err := a.Start(); err != nil {
		a.Logger.Fatal().Err(err).Msg("startup failed")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	a.Logger.Info().Str("signal", s.String()).Msg("signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Shutdown(shutdownCtx)
}
