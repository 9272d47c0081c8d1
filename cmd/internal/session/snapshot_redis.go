package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisSnapshotKey = "nestwatch:snapshot"

// RedisSnapshotStore keeps the snapshot under a single Redis key.
type RedisSnapshotStore struct {
	client *redis.Client
}

// NewRedisSnapshotStore connects to Redis via URL and validates connectivity.
func NewRedisSnapshotStore(ctx context.Context, url string) (*RedisSnapshotStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSnapshotStore{client: client}, nil
}

// Save overwrites the snapshot key. No TTL: the snapshot lives until replaced.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := s.client.Set(ctx, redisSnapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("snapshot set: %w", err)
	}
	return nil
}

// Load reads the snapshot key; a missing key yields an empty snapshot.
func (s *RedisSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := s.client.Get(ctx, redisSnapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("snapshot get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot decode: %w", err)
	}
	return snap, nil
}

// Close releases the Redis client.
func (s *RedisSnapshotStore) Close() error { return s.client.Close() }
