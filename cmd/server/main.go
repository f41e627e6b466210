// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/memorygame/internal/auth"
	"github.com/jason-s-yu/memorygame/internal/cache"
	"github.com/jason-s-yu/memorygame/internal/config"
	"github.com/jason-s-yu/memorygame/internal/database"
	"github.com/jason-s-yu/memorygame/internal/handlers"
	"github.com/jason-s-yu/memorygame/internal/notify"
	"github.com/jason-s-yu/memorygame/internal/results"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	// engine code logs through the package-level logger
	logrus.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := auth.Init(cfg.TokenExpire); err != nil {
		logger.Fatalf("auth: %v", err)
	}
	if err := database.ConnectDB(ctx, cfg.PostgresURL()); err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.CloseDB()

	// local mode runs without Redis and without the action log
	var rdb *redis.Client
	if cfg.Notifier != "local" {
		rdb, err = cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
	}

	bus, err := newBus(cfg, rdb)
	if err != nil {
		logger.Fatalf("notifier: %v", err)
	}
	defer bus.Close()

	store := database.ResultStore{}
	board := results.NewBoard(store, database.DefaultResultLimit, time.Local, logger)
	unsubscribe, err := board.Listen(ctx, bus)
	if err != nil {
		logger.Fatalf("results board: %v", err)
	}
	defer unsubscribe()
	if _, err := board.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("initial results load failed")
	}

	srv := handlers.NewGameServer(logger)
	srv.Users = database.UserStore{}
	srv.Board = board
	srv.Results = store
	srv.Notifier = bus
	srv.Pacing = cfg.Pacing
	srv.TokenTTL = cfg.TokenExpire
	srv.IdleTimeout = cfg.GameIdleTimeout
	if rdb != nil {
		srv.ActionLog = cache.NewActionQueue(rdb, cfg.HistorianQueue)
	}

	go srv.RunIdleSweeper(ctx, min(time.Minute, cfg.GameIdleTimeout), nil)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(logger, srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("server shutdown")
		}
	}()

	logger.WithFields(logrus.Fields{"addr": httpSrv.Addr, "notifier": cfg.Notifier}).Info("memorygame server running")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}

func newBus(cfg config.Config, rdb *redis.Client) (notify.Bus, error) {
	switch cfg.Notifier {
	case "nats":
		nb, err := notify.ConnectNATS(cfg.NATSURL, cfg.NotifyChannel)
		if err != nil {
			return nil, err
		}
		return nb, nil
	case "redis":
		return notify.NewRedisBus(rdb, cfg.NotifyChannel), nil
	default:
		return notify.NewLocalBus(), nil
	}
}
