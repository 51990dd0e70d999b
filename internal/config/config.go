// Package config reads process settings from the environment. Binaries import
// github.com/joho/godotenv/autoload so a local .env file is picked up first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jason-s-yu/durak/internal/auth"
	"github.com/jason-s-yu/durak/internal/cache"
	"github.com/jason-s-yu/durak/internal/game"
	log "github.com/sirupsen/logrus"
)

// Config is everything cmd/server and cmd/historian need.
type Config struct {
	Port     string
	LogLevel log.Level

	RedisAddr string // empty disables action publishing
	RedisDB   int
	Queue     string

	DatabaseURL string // empty disables result recording

	// TokenTTL of zero means tokens never expire.
	TokenTTL       time.Duration
	PrivateKeyPath string // raw ed25519 keys; both empty means a fresh pair per process
	PublicKeyPath  string

	Rules          game.Rules
	IdleRoomTTL    time.Duration
	ReaperInterval time.Duration

	HistorianBatchSize  int
	HistorianFlushDelay time.Duration
	HistorianInactivity time.Duration
}

// Load reads the environment. Unset values fall back to defaults; malformed values are errors.
func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.Port = getEnv("PORT", "8080")
	cfg.LogLevel, err = log.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.Queue = getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.PrivateKeyPath = os.Getenv("SESSION_PRIVATE_KEY_PATH")
	cfg.PublicKeyPath = os.Getenv("SESSION_PUBLIC_KEY_PATH")
	if (cfg.PrivateKeyPath == "") != (cfg.PublicKeyPath == "") {
		return cfg, fmt.Errorf("SESSION_PRIVATE_KEY_PATH and SESSION_PUBLIC_KEY_PATH must be set together")
	}

	cfg.TokenTTL, err = auth.ParseTokenExpireTime(getEnv("TOKEN_EXPIRE_TIME", "24h"))
	if err != nil {
		return cfg, fmt.Errorf("TOKEN_EXPIRE_TIME: %w", err)
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"REDIS_DB", 0, &cfg.RedisDB},
		{"THROW_IN_WINDOW_MS", game.DefaultThrowInWindowMs, &cfg.Rules.ThrowInWindowMs},
		{"VOTE_WINDOW_SEC", game.DefaultVoteWindowSec, &cfg.Rules.VoteWindowSec},
		{"FINISH_GRACE_SEC", game.DefaultFinishGraceSec, &cfg.Rules.FinishGraceSec},
		{"HISTORIAN_BATCH_SIZE", 20, &cfg.HistorianBatchSize},
	}
	for _, v := range ints {
		if *v.dst, err = getEnvInt(v.key, v.def); err != nil {
			return cfg, err
		}
	}

	durations := []struct {
		key  string
		def  int
		unit time.Duration
		dst  *time.Duration
	}{
		{"IDLE_ROOM_TIMEOUT_SEC", 900, time.Second, &cfg.IdleRoomTTL},
		{"REAPER_INTERVAL_SEC", 30, time.Second, &cfg.ReaperInterval},
		{"HISTORIAN_FLUSH_MS", 500, time.Millisecond, &cfg.HistorianFlushDelay},
		{"GAME_INACTIVITY_TIMEOUT_SEC", 600, time.Second, &cfg.HistorianInactivity},
	}
	for _, v := range durations {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return cfg, err
		}
		if n <= 0 {
			return cfg, fmt.Errorf("%s must be positive", v.key)
		}
		*v.dst = time.Duration(n) * v.unit
	}

	// same bounds as per-room overrides
	if _, err := game.ParseRules(map[string]interface{}{
		"throwInWindowMs": cfg.Rules.ThrowInWindowMs,
		"voteWindowSec":   cfg.Rules.VoteWindowSec,
		"finishGraceSec":  cfg.Rules.FinishGraceSec,
	}, game.DefaultRules()); err != nil {
		return cfg, fmt.Errorf("room rules: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else returns the default.
func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
