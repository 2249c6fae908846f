// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/bot"
	"github.com/rovshanmuradov/solana-hft/internal/config"
	"github.com/rovshanmuradov/solana-hft/internal/logger"
)

const recentLogEntries = 500

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.json", "path to the JSON config file")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	if err := run(*configPath, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "solana-hft: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Debug = debug || cfg.DebugLogging
	recent := logger.NewBuffer(recentLogEntries)

	log, err := logger.New(logCfg, recent)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	log.Info("Starting solana-hft", zap.String("config", configPath), zap.String("addr", cfg.HTTPAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bot.NewService(cfg, log, bot.WithLogBuffer(recent))
	if err != nil {
		return err
	}

	runErr := svc.Run(ctx)
	if runErr != nil {
		log.Error("Service failed", zap.Error(runErr))
	}
	log.Info("Shutting down")
	if err := svc.Close(); err != nil {
		log.Warn("Shutdown completed with errors", zap.Error(err))
	}
	return runErr
}
