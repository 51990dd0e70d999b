// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for game action logs.
const DefaultQueueName = "durak_actions"

// GameActionRecord holds the minimal info needed by the historian.
type GameActionRecord struct {
	GameID        uuid.UUID              `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorUserID   uuid.UUID              `json:"actor_user_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"` // epoch millis
}

// Publisher pushes action records onto a Redis list for the historian to drain.
type Publisher struct {
	client *redis.Client
	queue  string
}

// ConnectRedis opens a client and checks it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int, queue string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return NewPublisher(client, queue), nil
}

// NewPublisher wraps an existing client. An empty queue means DefaultQueueName.
func NewPublisher(client *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{client: client, queue: queue}
}

// PublishGameAction serializes the given record to JSON, then pushes it to the Redis queue.
func (p *Publisher) PublishGameAction(ctx context.Context, record GameActionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		metrics.ActionPublishFailures.Inc()
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
		metrics.ActionPublishFailures.Inc()
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Client exposes the underlying connection, e.g. for the historian.
func (p *Publisher) Client() *redis.Client {
	return p.client
}

// Queue is the list name records are pushed to.
func (p *Publisher) Queue() string {
	return p.queue
}

// Close releases the connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
