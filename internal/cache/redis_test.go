package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFailureIsCounted(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	p := NewPublisher(client, "")
	defer p.Close()
	assert.Equal(t, DefaultQueueName, p.Queue())

	before := testutil.ToFloat64(metrics.ActionPublishFailures)
	err := p.PublishGameAction(context.Background(), GameActionRecord{GameID: uuid.New(), ActionType: "defend"})
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ActionPublishFailures))
}

// Needs a reachable Redis; set REDIS_ADDR to run it.
func TestPublishGameAction(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	queue := "durak_test_" + uuid.NewString()
	p, err := ConnectRedis(ctx, addr, 0, queue)
	require.NoError(t, err)
	defer p.Close()
	defer p.Client().Del(context.Background(), queue)

	rec := GameActionRecord{
		GameID:        uuid.New(),
		ActionIndex:   3,
		ActorUserID:   uuid.New(),
		ActionType:    "play_attack",
		ActionPayload: map[string]interface{}{"cardIndex": float64(2)},
		Timestamp:     time.Now().UnixMilli(),
	}
	require.NoError(t, p.PublishGameAction(ctx, rec))

	raw, err := p.Client().LPop(ctx, queue).Result()
	require.NoError(t, err)
	var got GameActionRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, rec, got)
}
