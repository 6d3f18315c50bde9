package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewStreamsEventBus(client, "test", 0, zap.NewNop())
	event := domain.Event{ID: "e1", Type: domain.EventTypeJobSubmitted, JobID: "job-1", Timestamp: time.Now()}
	require.NoError(t, bus.Publish(context.Background(), "quiz.jobs", event))

	entries, err := client.XRange(context.Background(), getStreamKey("quiz.jobs"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var got domain.Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, domain.EventTypeJobSubmitted, got.Type)
}

func TestSubscribeCreatesGroupAndUnsubscribeDestroys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewStreamsEventBus(client, "test", 100, zap.NewNop())
	require.NoError(t, bus.Subscribe(ctx, "quiz.events", "ws-1", func(ctx context.Context, e domain.Event) error {
		return nil
	}))
	// a second subscription to the same group is not an error
	require.NoError(t, bus.Subscribe(ctx, "quiz.events", "ws-1", func(ctx context.Context, e domain.Event) error {
		return nil
	}))

	err := client.XGroupCreate(context.Background(), getStreamKey("quiz.events"), "ws-1", "$").Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUSYGROUP")

	cancel()
	require.NoError(t, bus.Unsubscribe(context.Background(), "quiz.events", "ws-1"))
	assert.NoError(t, client.XGroupCreate(context.Background(), getStreamKey("quiz.events"), "ws-1", "$").Err())
}
