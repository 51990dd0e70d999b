// Package historian drains action records pushed by the game server from Redis into Postgres.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/cache"
	"github.com/jason-s-yu/durak/internal/database"
	"github.com/jason-s-yu/durak/internal/metrics"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Config tunes batching and the inactivity sweep.
type Config struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// PopTimeout bounds each BLPop so flushes and shutdown are noticed.
	PopTimeout time.Duration
	// Inactivity is how long a game may go without actions before it is marked abandoned.
	Inactivity    time.Duration
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = cache.DefaultQueueName
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.FlushDelay <= 0 {
		c.FlushDelay = 500 * time.Millisecond
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = time.Second
	}
	if c.Inactivity <= 0 {
		c.Inactivity = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// Popper is the part of the Redis client the historian reads with.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists drained records.
type Sink interface {
	InsertActions(ctx context.Context, records []cache.GameActionRecord) error
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error)
}

// PostgresSink writes through the database package.
type PostgresSink struct {
	DB database.TxBeginner
}

func (p PostgresSink) InsertActions(ctx context.Context, records []cache.GameActionRecord) error {
	return database.InsertActions(ctx, p.DB, records)
}

func (p PostgresSink) MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	return database.MarkAbandoned(ctx, p.DB, gameID)
}

// Service owns the pending batch; only the Run goroutine touches it.
type Service struct {
	cfg  Config
	src  Popper
	sink Sink
	now  func() time.Time

	batch        []cache.GameActionRecord
	lastFlush    time.Time
	lastSweep    time.Time
	lastActivity map[uuid.UUID]time.Time
}

// New builds a service reading from src and writing to sink.
func New(cfg Config, src Popper, sink Sink) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:          cfg,
		src:          src,
		sink:         sink,
		now:          time.Now,
		batch:        make([]cache.GameActionRecord, 0, cfg.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run pops records until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	s.lastFlush = s.now()
	s.lastSweep = s.now()
	log.WithFields(log.Fields{"queue": s.cfg.Queue, "batch": s.cfg.BatchSize}).Info("historian started")

	for ctx.Err() == nil {
		res, err := s.src.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
		switch {
		case err == nil:
			// res[0] is the queue name and res[1] the payload.
			if len(res) >= 2 {
				s.handlePayload(res[1])
			}
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
		default:
			log.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.PopTimeout):
			}
		}
		s.tick(ctx)
	}

	// the run context is gone, so the last flush gets its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	log.Info("historian stopped")
}

func (s *Service) handlePayload(payload string) {
	var record cache.GameActionRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil || record.GameID == uuid.Nil {
		metrics.HistorianRecords.WithLabelValues("invalid").Inc()
		log.WithError(err).Warn("invalid action record")
		return
	}
	if record.ActionType == "game_end" {
		delete(s.lastActivity, record.GameID)
	} else {
		s.lastActivity[record.GameID] = s.now()
	}
	s.batch = append(s.batch, record)
}

// tick flushes on size or age and runs the inactivity sweep when it is due.
func (s *Service) tick(ctx context.Context) {
	now := s.now()
	if len(s.batch) >= s.cfg.BatchSize || (len(s.batch) > 0 && now.Sub(s.lastFlush) >= s.cfg.FlushDelay) {
		s.flush(ctx)
	}
	if now.Sub(s.lastSweep) >= s.cfg.SweepInterval {
		s.lastSweep = now
		s.sweepInactive(ctx, now)
	}
}

// flush writes the batch. A failed batch is kept for the next flush, bounded to ten batches.
func (s *Service) flush(ctx context.Context) {
	s.lastFlush = s.now()
	if len(s.batch) == 0 {
		return
	}
	if err := s.sink.InsertActions(ctx, s.batch); err != nil {
		log.WithError(err).WithField("records", len(s.batch)).Error("failed to flush action batch")
		if limit := 10 * s.cfg.BatchSize; len(s.batch) > limit {
			dropped := len(s.batch) - limit
			metrics.HistorianRecords.WithLabelValues("dropped").Add(float64(dropped))
			s.batch = append(s.batch[:0], s.batch[dropped:]...)
		}
		return
	}
	metrics.HistorianRecords.WithLabelValues("stored").Add(float64(len(s.batch)))
	log.WithField("records", len(s.batch)).Debug("flushed actions to DB")
	s.batch = s.batch[:0]
}

// sweepInactive marks games with no recent actions as abandoned.
func (s *Service) sweepInactive(ctx context.Context, now time.Time) {
	for gameID, last := range s.lastActivity {
		if now.Sub(last) <= s.cfg.Inactivity {
			continue
		}
		updated, err := s.sink.MarkAbandoned(ctx, gameID)
		if err != nil {
			log.WithError(err).WithField("game", gameID).Warn("failed to mark game abandoned")
			continue
		}
		delete(s.lastActivity, gameID)
		if updated {
			log.WithField("game", gameID).Info("marked game abandoned due to inactivity")
		}
	}
}
