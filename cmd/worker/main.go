// Package main is the entry point for the vehicle event worker.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vehix/vehix/internal/config"
	"github.com/vehix/vehix/internal/messaging"
	redisrepo "github.com/vehix/vehix/internal/repository/redis"
	"github.com/vehix/vehix/internal/worker"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		println("Failed to load config:", err.Error())
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting vehix worker",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("group", cfg.Worker.Group),
		zap.String("consumer", cfg.Worker.Consumer),
	)

	redisClient, err := redisrepo.NewClient(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	readModel := redisrepo.NewReadModel(redisClient, cfg.Worker.ReadModelTTL, logger)
	processor := worker.NewProcessor(readModel, logger)

	consumer := messaging.NewConsumer(redisClient, cfg.Events.StreamPrefix, cfg.Worker, logger)
	processor.Register(consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("Consumer error", zap.Error(err))
	}

	logger.Info("Goodbye!")
}

// setupLogger configures the zap logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
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

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}

	return logger
}
