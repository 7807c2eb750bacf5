package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestProducer_Partition_Deterministic(t *testing.T) {
	p := NewProducer(nil, "games.events", 8, "playhub-api")
	a := p.Partition("room-123")
	b := p.Partition("room-123")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 8)
}

func TestProducer_Publish_NilClientIsNoop(t *testing.T) {
	p := NewProducer(nil, "games.events", 4, "playhub-api")
	id, err := p.Publish(context.Background(), "room-1", Envelope{EventType: "room.created"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestProducer_Publish_AssignsDefaults(t *testing.T) {
	rdb := newTestRedis(t)
	p := NewProducer(rdb, "games.events", 1, "playhub-api")

	id, err := p.Publish(context.Background(), "room-1", Envelope{EventType: "room.created"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestConsumer_ReadAcknowledgesOnSuccess(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	producer := NewProducer(rdb, "games.events", 1, "playhub-api")
	_, err := producer.Publish(ctx, "room-1", Envelope{
		EventType: "room.created",
		Actor:     Actor{UserID: 1, Username: "host"},
		Payload:   map[string]any{"room_id": "room-1"},
	})
	require.NoError(t, err)

	consumer := NewConsumer(rdb, "games.events", producer.Partition("room-1"), "lobby-workers", "worker-1")
	require.NoError(t, consumer.EnsureGroup(ctx))

	var received []Envelope
	err = consumer.Read(ctx, 100*time.Millisecond, 10, func(_ context.Context, _ string, env Envelope) error {
		received = append(received, env)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "room.created", received[0].EventType)
	assert.Equal(t, uint(1), received[0].Actor.UserID)

	// A second read should see nothing new: the message was acknowledged.
	received = nil
	err = consumer.Read(ctx, 50*time.Millisecond, 10, func(_ context.Context, _ string, env Envelope) error {
		received = append(received, env)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, received)
}

func TestConsumer_Read_NilClientIsNoop(t *testing.T) {
	c := NewConsumer(nil, "games.events", 0, "lobby-workers", "worker-1")
	require.NoError(t, c.EnsureGroup(context.Background()))
	err := c.Read(context.Background(), 10*time.Millisecond, 5, func(_ context.Context, _ string, _ Envelope) error {
		t.Fatalf("handler should not be invoked with nil redis client")
		return nil
	})
	assert.NoError(t, err)
}
