package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one raw stream entry awaiting acknowledgement.
type Message struct {
	ID   string
	Data []byte
}

// Consumer reads a single stream through a consumer group, so multiple
// service instances can split a camera fleet without double-processing.
type Consumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
	block  time.Duration
	count  int64
}

// NewConsumer creates the group (and the stream, if absent) and returns
// a reader bound to it. An already-existing group is fine.
func NewConsumer(ctx context.Context, client *redis.Client, stream, group, name string) (*Consumer, error) {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return &Consumer{
		client: client,
		stream: stream,
		group:  group,
		name:   name,
		block:  time.Second,
		count:  10,
	}, nil
}

// Read blocks up to the configured interval for new entries. A timed-out
// poll returns an empty slice and a nil error.
func (c *Consumer) Read(ctx context.Context) ([]Message, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    c.count,
		Block:    c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", c.stream, err)
	}

	var out []Message
	for _, stream := range res {
		for _, msg := range stream.Messages {
			data, _ := msg.Values["data"].(string)
			out = append(out, Message{ID: msg.ID, Data: []byte(data)})
		}
	}
	return out, nil
}

// Ack acknowledges processed entries.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", c.stream, err)
	}
	return nil
}
