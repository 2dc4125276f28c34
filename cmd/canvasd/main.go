// Package main provides the entry point for a canvas replica process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/config"
	"github.com/ar4mirez/pixring/internal/manifest"
	"github.com/ar4mirez/pixring/internal/metrics"
	"github.com/ar4mirez/pixring/internal/replica"
	"github.com/ar4mirez/pixring/internal/server"
	"github.com/ar4mirez/pixring/internal/session"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting canvasd",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
		zap.Uint16("id", cfg.ID),
	)

	// Load the static cluster manifest this replica's ring topology
	// and peer addresses are derived from.
	dict, err := manifest.Load(cfg.ConnectionsFile, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to load connections manifest: %w", err)
	}

	// Initialize the shared canvas store.
	ctx := context.Background()
	store, err := canvas.NewPostgresStore(ctx, canvas.PostgresConfig{
		Host:     cfg.PGHost,
		DBName:   cfg.PGDBName,
		User:     cfg.PGUser,
		Password: cfg.PGPassword,
		Port:     cfg.PGPort,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize canvas store: %w", err)
	}

	mx := metrics.New(cfg.MetricsNamespace)
	sessions := session.New(logger)

	mgrCfg := replica.DefaultConfig(cfg.ID)
	mgrCfg.Primary = cfg.Primary
	mgrCfg.Debug = cfg.Debug

	manager := replica.New(mgrCfg, dict, store, sessions, logger)
	manager.SetMetrics(mx)

	if err := manager.Join(); err != nil {
		return fmt.Errorf("failed to join ring: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	controllerErrCh := make(chan error, 1)
	go func() {
		controllerErrCh <- manager.Run(runCtx)
	}()

	// Initialize HTTP server
	srv := server.New(cfg, store, manager, sessions, logger, mx)

	// Handle graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		cancelRun()
		return fmt.Errorf("server error: %w", err)
	case err := <-controllerErrCh:
		if err != nil && err != context.Canceled {
			logger.Error("replica controller exited", zap.Error(err))
		}
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	cancelRun()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("replica shutdown error: %w", err)
	}

	logger.Info("canvasd stopped gracefully")
	return nil
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.LogFormat == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}
