package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisLogPrefix = "state:redis"
	keyPrefix      = "dm:state:"
)

func key(id string) string { return keyPrefix + id }

// RedisStore keeps each state as a JSON value under "dm:state:<id>".
type RedisStore struct{ rdb *redis.Client }

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

// NewRedisStoreFromURL parses a redis:// URL and connects.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid REDIS_URL: %w", redisLogPrefix, err)
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

func encode(val string, ack bool) ([]byte, error) {
	return json.Marshal(Value{Val: val, Ack: ack, Ts: time.Now().UTC()})
}

// Ensure creates id unless present.
func (s *RedisStore) Ensure(ctx context.Context, id, initial string) error {
	data, err := encode(initial, true)
	if err != nil {
		return err
	}
	if err := s.rdb.SetNX(ctx, key(id), data, 0).Err(); err != nil {
		return fmt.Errorf("%s - failed to ensure %s: %w", redisLogPrefix, id, err)
	}
	return nil
}

// Set stores val under id.
func (s *RedisStore) Set(ctx context.Context, id, val string, ack bool) error {
	data, err := encode(val, ack)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key(id), data, 0).Err(); err != nil {
		return fmt.Errorf("%s - failed to set %s: %w", redisLogPrefix, id, err)
	}
	return nil
}

// Get returns the value of id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Value, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get %s: %w", redisLogPrefix, id, err)
	}
	var v Value
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%s - corrupt value for %s: %w", redisLogPrefix, id, err)
	}
	return &v, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Clear deletes every state and returns the removed ids.
func (s *RedisStore) Clear(ctx context.Context) ([]string, error) {
	iter := s.rdb.Scan(ctx, 0, key("*"), 100).Iterator()
	var removed []string
	for iter.Next(ctx) {
		full := iter.Val()
		if err := s.rdb.Del(ctx, full).Err(); err != nil {
			return removed, err
		}
		removed = append(removed, strings.TrimPrefix(full, keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.rdb.Close() }
