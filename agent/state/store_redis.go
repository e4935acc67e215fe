package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	URL       string        `split_words:"true" default:"redis://localhost:6379/0"`
	KeyPrefix string        `split_words:"true" default:"retail:session:"`
	TTL       time.Duration `split_words:"true" default:"24h"`
}

// RedisBackend is the go-redis counterpart of UpstashBackend and shares its
// hash layout and CAS script.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	cas       *redis.Script
}

var _ Backend = (*RedisBackend)(nil)

func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisBackendFromClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

func NewRedisBackendFromClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBackend {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultStoreKeyPrefix
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: prefix,
		ttl:       ttl,
		cas:       redis.NewScript(casScript),
	}
}

func (r *RedisBackend) Read(ctx context.Context, sessionID string) (Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Session{}, ErrInvalidSession
	}

	payload, err := r.client.HGet(ctx, r.keyPrefix+sessionID, "payload").Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis hget: %w", err)
	}
	return decodeSession(payload)
}

func (r *RedisBackend) CompareAndSwap(ctx context.Context, expected int64, next Session) (bool, error) {
	if strings.TrimSpace(next.SessionID) == "" {
		return false, ErrInvalidSession
	}
	payload, err := encodeSession(next)
	if err != nil {
		return false, err
	}

	swapped, err := r.cas.Run(ctx, r.client,
		[]string{r.keyPrefix + next.SessionID},
		expected, next.Version, payload, ttlSeconds(r.ttl),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis cas: %w", err)
	}
	return swapped == 1, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
