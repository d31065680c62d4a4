package storage

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/incidentdesk/internal/observability"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key, default "incidentdesk".
	KeyPrefix string
}

// RedisStore relies on redis key expiry, so it needs no sweeper.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	prom   *observability.Prom
}

func NewRedisStore(cfg RedisConfig, prom *observability.Prom) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "incidentdesk"
	}

	return &RedisStore{rdb: rdb, prefix: prefix, prom: prom}
}

func (s *RedisStore) key(clientID, key string) string {
	return s.prefix + ":client:" + clientID + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, clientID, key string) (string, error) {
	var out string
	err := s.prom.ObserveStorage("redis", "get", ErrNotFound, func() error {
		v, err := s.rdb.Get(ctx, s.key(clientID, key)).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (s *RedisStore) Set(ctx context.Context, clientID, key, value string, ttl time.Duration) error {
	return s.prom.ObserveStorage("redis", "set", ErrNotFound, func() error {
		return s.rdb.Set(ctx, s.key(clientID, key), value, ttl).Err()
	})
}

func (s *RedisStore) Delete(ctx context.Context, clientID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.prom.ObserveStorage("redis", "delete", ErrNotFound, func() error {
		full := make([]string, 0, len(keys))
		for _, k := range keys {
			full = append(full, s.key(clientID, k))
		}
		return s.rdb.Del(ctx, full...).Err()
	})
}

// this ping function checks redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
