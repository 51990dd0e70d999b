// cmd/historian/main.go drains game action records from the Redis queue into Postgres and marks
// games that stopped producing actions as abandoned.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/durak/internal/cache"
	"github.com/jason-s-yu/durak/internal/config"
	"github.com/jason-s-yu/durak/internal/database"
	"github.com/jason-s-yu/durak/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := cache.ConnectRedis(ctx, addr, cfg.RedisDB, cfg.Queue)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer pub.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("database schema: %v", err)
	}

	svc := historian.New(historian.Config{
		Queue:      pub.Queue(),
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlushDelay,
		Inactivity: cfg.HistorianInactivity,
	}, pub.Client(), historian.PostgresSink{DB: pool})
	svc.Run(ctx)
}
