package redisrepo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DB wraps the redis client used as a durable keyed store.
type DB struct {
	Client *redis.Client
}

// Open connects to redis with short timeouts.
func Open(addr string) *DB {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &DB{Client: client}
}

// Healthy verifies redis connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.Ping(ctx).Err() == nil
}
