package events

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Producer appends envelopes to a partitioned Redis stream. Partitioning by
// room ID keeps every event for one room in a single stream so a consumer
// group reading that partition sees them in commit order.
type Producer struct {
	rdb        *redis.Client
	streamBase string
	partitions int
	name       string
}

// NewProducer creates a Producer writing onto streamBase:<partition>.
func NewProducer(rdb *redis.Client, streamBase string, partitions int, producerName string) *Producer {
	if partitions < 1 {
		partitions = 1
	}
	return &Producer{rdb: rdb, streamBase: streamBase, partitions: partitions, name: producerName}
}

// Partition hashes a room/target key onto one of the producer's partitions.
func (p *Producer) Partition(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.partitions))
}

func (p *Producer) streamName(partition int) string {
	return fmt.Sprintf("%s:%d", p.streamBase, partition)
}

// Publish appends env to the partition addressed by partitionKey (normally
// the room ID), assigning EventID/Timestamp/Producer if unset.
func (p *Producer) Publish(ctx context.Context, partitionKey string, env Envelope) (string, error) {
	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Producer == "" {
		env.Producer = p.name
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	if p.rdb == nil {
		return env.EventID, nil
	}
	stream := p.streamName(p.Partition(partitionKey))
	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"envelope": body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// Consumer reads one partition's stream through a named consumer group,
// acknowledging each envelope once the handler returns without error.
type Consumer struct {
	rdb          *redis.Client
	stream       string
	group        string
	consumerName string
}

// NewConsumer creates a Consumer bound to one partition's stream.
func NewConsumer(rdb *redis.Client, streamBase string, partition int, group, consumerName string) *Consumer {
	return &Consumer{
		rdb:          rdb,
		stream:       fmt.Sprintf("%s:%d", streamBase, partition),
		group:        group,
		consumerName: consumerName,
	}
}

// EnsureGroup creates the consumer group if it doesn't already exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("create consumer group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists")
}

// Handler processes one envelope. Returning an error leaves the message
// unacknowledged so it is redelivered on the next Read or claimed by
// another consumer via XCLAIM.
type Handler func(ctx context.Context, id string, env Envelope) error

// Read polls the stream once with a blocking read and dispatches each
// message to handle, acknowledging on success.
func (c *Consumer) Read(ctx context.Context, block time.Duration, count int64, handle Handler) error {
	if c.rdb == nil {
		return nil
	}
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerName,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("xreadgroup %s: %w", c.stream, err)
	}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["envelope"].(string)
			if !ok {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(raw), &env); err != nil {
				continue
			}
			if err := handle(ctx, msg.ID, env); err != nil {
				continue
			}
			_ = c.rdb.XAck(ctx, c.stream, c.group, msg.ID).Err()
		}
	}
	return nil
}
