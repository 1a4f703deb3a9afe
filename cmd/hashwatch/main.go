package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hashwatch/internal/config"
)

var (
	configPath = flag.String("config", "hashwatch.toml", "Path to configuration file")
	setup      = flag.Bool("setup", false, "Create the schema and seed an empty database, then exit")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("Loaded configuration", "path", *configPath, "source", cfg.Source.Type, "database", cfg.Storage.Path)

	loader := config.NewLoader(cfg, logger)
	if *setup {
		return loader.Setup(ctx)
	}

	bot, err := loader.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to build bot: %w", err)
	}

	logger.Info("Starting bot", "bot", bot.Name())

	runErr := bot.Start(ctx)
	if errors.Is(runErr, context.Canceled) {
		logger.Info("Shutting down gracefully")
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bot.Stop(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Bot stopped successfully", "bot", bot.Name())
	return nil
}
