package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultLastIDKey is the redis key holding the last booking id.
const DefaultLastIDKey = "payments:booking-created:last-id"

// RedisLastIDStore mirrors the last booking id into redis so a restarted
// instance can still answer.
type RedisLastIDStore struct {
	client *redis.Client
	key    string
}

// NewRedisLastIDStore connects using a redis:// URL.
func NewRedisLastIDStore(url string) (*RedisLastIDStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisLastIDStoreWithClient(redis.NewClient(opt), DefaultLastIDKey), nil
}

func NewRedisLastIDStoreWithClient(client *redis.Client, key string) *RedisLastIDStore {
	if key == "" {
		key = DefaultLastIDKey
	}
	return &RedisLastIDStore{client: client, key: key}
}

func (s *RedisLastIDStore) SaveLastBookingID(ctx context.Context, bookingID int64) error {
	return s.client.Set(ctx, s.key, bookingID, 0).Err()
}

func (s *RedisLastIDStore) LastBookingID(ctx context.Context) (int64, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis key %s holds %q: %w", s.key, raw, err)
	}
	return id, true, nil
}

func (s *RedisLastIDStore) Close() error {
	return s.client.Close()
}
