// Package events publishes discovery events on Redis Streams.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/semnet/internal/reasoning"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the stream discovery events are appended to.
const DefaultStream = "semnet:discoveries"

// Event wraps one discovered relationship for the stream.
type Event struct {
	ID        string              `json:"id"`
	Discovery reasoning.Discovery `json:"discovery"`
	Timestamp time.Time           `json:"timestamp"`
}

// Publisher appends discovery events to a Redis stream.
type Publisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(redisURL string, logger *zap.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Publisher{rdb: rdb, stream: DefaultStream, maxLen: 10000, logger: logger}, nil
}

// SetStream changes the target stream name.
func (p *Publisher) SetStream(stream string) { p.stream = stream }

// Stream returns the target stream name.
func (p *Publisher) Stream() string { return p.stream }

// Publish appends one event per discovery. It satisfies discovery.Sink.
func (p *Publisher) Publish(ctx context.Context, found []reasoning.Discovery) error {
	pipe := p.rdb.Pipeline()
	now := time.Now()
	for _, d := range found {
		data, err := json.Marshal(Event{ID: uuid.New().String(), Discovery: d, Timestamp: now})
		if err != nil {
			return fmt.Errorf("marshal discovery: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", p.stream, err)
	}
	p.logger.Debug("published discoveries",
		zap.String("stream", p.stream),
		zap.Int("count", len(found)))
	return nil
}

// Subscribe streams events appended after the call. Cancel ctx to stop; the
// channel is closed when the reader exits.
func (p *Publisher) Subscribe(ctx context.Context) <-chan *Event {
	ch := make(chan *Event, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			if ctx.Err() != nil {
				return
			}
			results, err := p.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{p.stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					p.logger.Debug("stream read failed", zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
