// internal/historian/historian_test.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/durak/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue hands out queued payloads and cancels the run once it is empty.
type fakeQueue struct {
	mu       sync.Mutex
	payloads []string
	onEmpty  func()
	pops     int
}

func (q *fakeQueue) BLPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pops++
	if len(q.payloads) == 0 {
		if q.onEmpty != nil {
			q.onEmpty()
		}
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	p := q.payloads[0]
	q.payloads = q.payloads[1:]
	return redis.NewStringSliceResult([]string{keys[0], p}, nil)
}

type fakeSink struct {
	mu        sync.Mutex
	batches   [][]cache.GameActionRecord
	failNext  int
	abandoned []uuid.UUID
}

func (s *fakeSink) InsertActions(_ context.Context, recs []cache.GameActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]cache.GameActionRecord(nil), recs...))
	return nil
}

func (s *fakeSink) MarkAbandoned(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = append(s.abandoned, id)
	return true, nil
}

func (s *fakeSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, len(b))
	}
	return out
}

func payload(t *testing.T, gameID uuid.UUID, idx int, typ string) string {
	t.Helper()
	data, err := json.Marshal(cache.GameActionRecord{GameID: gameID, ActionIndex: idx, ActionType: typ, Timestamp: time.Now().UnixMilli()})
	require.NoError(t, err)
	return string(data)
}

func runUntilDrained(t *testing.T, svc *Service, q *fakeQueue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	q.onEmpty = cancel
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("historian did not stop")
	}
}

func TestFlushesBySizeAndOnShutdown(t *testing.T) {
	game := uuid.New()
	q := &fakeQueue{}
	for i := 1; i <= 5; i++ {
		q.payloads = append(q.payloads, payload(t, game, i, "play_attack"))
	}
	sink := &fakeSink{}
	svc := New(Config{BatchSize: 2, FlushDelay: time.Hour}, q, sink)

	runUntilDrained(t, svc, q)
	assert.Equal(t, []int{2, 2, 1}, sink.sizes())
	assert.Equal(t, 1, sink.batches[0][0].ActionIndex)
	assert.Equal(t, 5, sink.batches[2][0].ActionIndex)
}

func TestFlushesByAge(t *testing.T) {
	game := uuid.New()
	q := &fakeQueue{payloads: []string{payload(t, game, 1, "defend"), payload(t, game, 2, "defend")}}
	sink := &fakeSink{}
	svc := New(Config{BatchSize: 100, FlushDelay: time.Second}, q, sink)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		// every call moves time past the flush delay
		now = now.Add(2 * time.Second)
		return now
	}

	runUntilDrained(t, svc, q)
	assert.Equal(t, []int{1, 1}, sink.sizes())
}

func TestInvalidPayloadsAreSkipped(t *testing.T) {
	game := uuid.New()
	q := &fakeQueue{payloads: []string{"{not json", `{"action_type":"defend"}`, payload(t, game, 1, "defend")}}
	sink := &fakeSink{}
	svc := New(Config{BatchSize: 10}, q, sink)

	runUntilDrained(t, svc, q)
	require.Equal(t, []int{1}, sink.sizes())
	assert.Equal(t, game, sink.batches[0][0].GameID)
}

func TestFailedBatchIsRetried(t *testing.T) {
	game := uuid.New()
	q := &fakeQueue{payloads: []string{payload(t, game, 1, "defend"), payload(t, game, 2, "defend")}}
	sink := &fakeSink{failNext: 1}
	svc := New(Config{BatchSize: 1, FlushDelay: time.Hour}, q, sink)

	runUntilDrained(t, svc, q)
	// the first flush failed; both records went out together on the next one
	assert.Equal(t, []int{2}, sink.sizes())
}

func TestInactiveGamesAreMarkedAbandoned(t *testing.T) {
	stale, finished, fresh := uuid.New(), uuid.New(), uuid.New()
	sink := &fakeSink{}
	svc := New(Config{Inactivity: 10 * time.Minute}, &fakeQueue{}, sink)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	svc.handlePayload(payload(t, stale, 1, "play_attack"))
	svc.handlePayload(payload(t, finished, 1, "play_attack"))
	svc.handlePayload(payload(t, finished, 2, "game_end"))

	svc.now = func() time.Time { return start.Add(9 * time.Minute) }
	svc.handlePayload(payload(t, fresh, 1, "play_attack"))

	svc.sweepInactive(context.Background(), start.Add(11*time.Minute))
	assert.Equal(t, []uuid.UUID{stale}, sink.abandoned)
	assert.NotContains(t, svc.lastActivity, stale)
	assert.Contains(t, svc.lastActivity, fresh)
}
