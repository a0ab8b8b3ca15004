package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis mirror.
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Password string

	// DialTimeout bounds connection setup.
	// Default: 5 seconds
	DialTimeout time.Duration
}

// RedisMirror implements Mirror on top of a Redis server.
type RedisMirror struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisMirror connects to Redis. The connection is verified lazily; call
// Ping to fail fast.
func NewRedisMirror(cfg RedisConfig) *RedisMirror {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	return NewRedisMirrorFromClient(client)
}

// NewRedisMirrorFromClient wraps an existing client.
func NewRedisMirrorFromClient(client *redis.Client) *RedisMirror {
	return &RedisMirror{
		client: client,
		logger: slog.Default().With("component", "accounts.cache.redis"),
	}
}

// Set stores value under key with SETEX semantics.
func (r *RedisMirror) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key or ErrMiss.
func (r *RedisMirror) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Delete removes keys.
func (r *RedisMirror) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// AddToSet adds members to set.
func (r *RedisMirror) AddToSet(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.client.SAdd(ctx, set, toAny(members)...).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", set, err)
	}
	return nil
}

// RemoveFromSet removes members from set.
func (r *RedisMirror) RemoveFromSet(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.client.SRem(ctx, set, toAny(members)...).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", set, err)
	}
	return nil
}

// Members returns the members of set.
func (r *RedisMirror) Members(ctx context.Context, set string) ([]string, error) {
	members, err := r.client.SMembers(ctx, set).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", set, err)
	}
	return members, nil
}

// Ping checks the connection.
func (r *RedisMirror) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisMirror) Close() error {
	r.logger.Debug("closing redis mirror")
	return r.client.Close()
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
