// cmd/historian/main.go is an asynchronous historian service that pops game
// actions from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/memorygame/internal/cache"
	"github.com/jason-s-yu/memorygame/internal/config"
	"github.com/jason-s-yu/memorygame/internal/database"
	"github.com/jason-s-yu/memorygame/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(ctx, cfg.PostgresURL()); err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.CloseDB()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	queue := cache.NewActionQueue(rdb, cfg.HistorianQueue)
	svc := historian.NewService(queue, database.InsertGameActions, cfg.HistorianBatchSize, cfg.HistorianFlush, logger)

	logger.WithField("queue", cfg.HistorianQueue).Info("memorygame-historian running")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("historian exited: %v", err)
	}
	logger.Info("historian shutdown complete")
}
