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

	"github.com/jason-s-yu/durak/internal/auth"
	"github.com/jason-s-yu/durak/internal/cache"
	"github.com/jason-s-yu/durak/internal/config"
	"github.com/jason-s-yu/durak/internal/database"
	"github.com/jason-s-yu/durak/internal/game"
	"github.com/jason-s-yu/durak/internal/handlers"
	"github.com/jason-s-yu/durak/internal/middleware"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)
	logrus.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sessions *auth.Sessions
	if cfg.PrivateKeyPath != "" {
		sessions, err = auth.NewSessionsFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenTTL)
	} else {
		sessions, err = auth.NewSessions(cfg.TokenTTL)
	}
	if err != nil {
		logger.Fatalf("session keys: %v", err)
	}

	store := game.NewRoomStore(cfg.Rules)
	srv := handlers.NewGameServer(store, sessions, logger)

	if cfg.RedisAddr != "" {
		pub, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.Queue)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer pub.Close()
		srv.Actions = pub
		logger.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "queue": pub.Queue()}).Info("publishing game actions")
	} else {
		logger.Warn("REDIS_ADDR not set, game actions are not published")
	}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Fatalf("database schema: %v", err)
		}
		srv.DB = pool
	} else {
		logger.Warn("DATABASE_URL not set, game results are not recorded")
	}

	go store.RunReaper(ctx, cfg.ReaperInterval, cfg.IdleRoomTTL)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.LogMiddleware(logger)(srv.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	// closes rooms, which tells every connected client and ends their sessions
	store.Close()
	srv.Wait()
}
