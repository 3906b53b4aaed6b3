/*
Package cache provides parking.Cache implementations.

PURPOSE:
  Two backends for the lot-view read cache: Redis for deployments with
  shared state, and an in-process TTL map for tests and single-node
  development. Both serialize values as JSON.

The cache is best-effort: a miss, an eviction failure, or a backend
outage only means the next read hits the store.
*/
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openlot/parking-engine/parking"
)

// Redis implements parking.Cache over a Redis client.
type Redis struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

var _ parking.Cache = (*Redis)(nil)

// NewRedis creates a Redis cache against the given address.
func NewRedis(addr, password string, db int, log *zap.SugaredLogger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, log: log}
}

// Ping tests the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get retrieves a value, unmarshaling into dest. Reports whether the
// key was present.
func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		r.log.Warnw("dropping undecodable cache entry", "key", key, "error", err)
		r.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// Set stores a value with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Delete evicts the given keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
