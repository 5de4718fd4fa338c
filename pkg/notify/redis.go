package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the redis connection parameters
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	BlockWait time.Duration
}

// RedisTransport uses redis lists: LPUSH to publish, BRPOP to consume
type RedisTransport struct {
	client *redis.Client
	wait   time.Duration
}

// NewRedisTransport connects and pings redis
func NewRedisTransport(ctx context.Context, cfg RedisConfig) (*RedisTransport, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisTransport{client: client, wait: wait}, nil
}

func (t *RedisTransport) Publish(ctx context.Context, queue string, payload []byte) error {
	if err := t.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis queue %s: %w", queue, err)
	}
	return nil
}

// Consume pops messages one at a time so intents are handled in arrival order
func (t *RedisTransport) Consume(ctx context.Context, queue string, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		values, err := t.client.BRPop(ctx, t.wait, queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return ErrClosed
			}
			return fmt.Errorf("failed to read redis queue %s: %w", queue, err)
		}
		if len(values) != 2 {
			continue
		}

		payload := []byte(values[1])
		if err := handler(ctx, payload); err != nil {
			// push back to the consuming end so it is retried next
			_ = t.client.RPush(ctx, queue, payload).Err()
		}
	}
}

func (t *RedisTransport) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}
