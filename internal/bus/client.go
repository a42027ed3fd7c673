package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client carrying the sensor bus connection.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to the bus broker at the given URL (e.g.
// "redis://localhost:6379") and verifies the connection with a ping.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach bus broker: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping verifies the bus connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the bus connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
