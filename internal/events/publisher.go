package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher appends events to a topic. Implementations must be safe for
// concurrent use by multiple camera pipelines.
type Publisher interface {
	Publish(ctx context.Context, topic string, evt Event) error
	Close() error
}

// RedisPublisher writes events to Redis Streams. Streams are trimmed
// with an approximate MaxLen so the bus is append-only but bounded.
type RedisPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewRedisPublisher wraps an existing Redis client. maxLen <= 0 falls
// back to 10000 entries per stream.
func NewRedisPublisher(client *redis.Client, maxLen int64) *RedisPublisher {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisPublisher{client: client, maxLen: maxLen}
}

// Publish XAdds the event as a single JSON "data" field, matching what
// the bus's other producers and consumers expect.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// MemoryPublisher buffers events per topic in memory, for tests and the
// replay tool.
type MemoryPublisher struct {
	mu     sync.Mutex
	topics map[string][]Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{topics: make(map[string][]Event)}
}

func (p *MemoryPublisher) Publish(_ context.Context, topic string, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics[topic] = append(p.topics[topic], evt)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published to a topic.
func (p *MemoryPublisher) Events(topic string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.topics[topic]))
	copy(out, p.topics[topic])
	return out
}
