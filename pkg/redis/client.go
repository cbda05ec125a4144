package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps go-redis client with optional logger.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// Options describes the Redis instance carrying the event and presence feeds.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func (o Options) redisOptions() *redis.Options {
	opts := &redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	return opts
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, o Options, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(o.redisOptions())

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis client connected", zap.String("addr", o.Addr), zap.Int("db", o.DB))
	return &Client{Client: rdb, logger: logger}, nil
}
