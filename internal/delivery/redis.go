package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

// DefaultResponsePrefix is the pub/sub channel prefix for responses
const DefaultResponsePrefix = "response:"

// RedisSink publishes responses on the channel <prefix><session>, where a
// channel adapter subscribed for that session forwards them.
type RedisSink struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSink connects to url and verifies the connection
func NewRedisSink(ctx context.Context, url, prefix string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Printf("[Redis] Connected to %s", opts.Addr)
	return NewRedisSinkFromClient(rdb, prefix), nil
}

// NewRedisSinkFromClient wraps an existing client
func NewRedisSinkFromClient(rdb *redis.Client, prefix string) *RedisSink {
	if prefix == "" {
		prefix = DefaultResponsePrefix
	}
	return &RedisSink{rdb: rdb, prefix: prefix}
}

// Channel returns the pub/sub channel for a session
func (s *RedisSink) Channel(sessionID string) string {
	return s.prefix + sessionID
}

// Deliver implements Sink
func (s *RedisSink) Deliver(ctx context.Context, resp messages.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	channel := s.Channel(resp.SessionID)
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish response to %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens for responses to one session until ctx is done. Used by
// out-of-process adapters and tests.
func (s *RedisSink) Subscribe(ctx context.Context, sessionID string, handler func(messages.Response)) error {
	pubsub := s.rdb.Subscribe(ctx, s.Channel(sessionID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var resp messages.Response
			if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
				log.Printf("[Redis] Failed to unmarshal response: %v", err)
				continue
			}
			handler(resp)
		}
	}
}

// Close closes the client
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
