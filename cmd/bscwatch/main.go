package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andreirk/bscwatch/config"
	"github.com/andreirk/bscwatch/internal/app"
	"github.com/andreirk/bscwatch/internal/lib/logger/handlers/slogpretty"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.LoadConfig()
	log := setupLogger(cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("initializing app")
	appCtx, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", "err", err)
		os.Exit(1)
	}

	runErrCh := make(chan error, 1)
	go func() {
		log.Info("starting subscription manager", "endpoint", cfg.WSEndpoint)
		runErrCh <- appCtx.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-runErrCh:
		if err != nil {
			log.Error("subscription manager exited", "err", err)
		}
		cancel()
	}

	log.Info("waiting for in-flight work to drain")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	appCtx.Shutdown(shutdownCtx)

	log.Info("service stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return setupPrettySlog()
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
	}
	return slog.New(opts.NewPrettyHandler(os.Stdout))
}
