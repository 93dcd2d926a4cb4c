package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gatehouseid/gatehouse/internal/config"
)

// NewRedis connects to the Redis instance that backs access-token storage.
// Connectivity is verified with a ping before returning; unlike MariaDB
// there is no retry loop since Redis starts near-instantly.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}
