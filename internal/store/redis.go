package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis KV.
type RedisConfig struct {
	Prefix string        // key prefix, default "twinly"
	TTL    time.Duration // expiry for every key, 0 = no expiry
}

// RedisKV implements KV using Redis. Keys are namespaced as "{prefix}:{key}"
// and each key's version lives under "{prefix}:version:{key}".
type RedisKV struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ KV = (*RedisKV)(nil)

// NewRedisKV creates a KV backed by client.
func NewRedisKV(client redis.UniversalClient, cfg RedisConfig) *RedisKV {
	if cfg.Prefix == "" {
		cfg.Prefix = "twinly"
	}
	return &RedisKV{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// OpenRedis dials addr and verifies the connection.
func OpenRedis(ctx context.Context, addr string, cfg RedisConfig) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisKV(client, cfg), nil
}

func (r *RedisKV) key(k string) string {
	return r.prefix + ":" + k
}

func (r *RedisKV) versionKey(k string) string {
	return r.prefix + ":version:" + k
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisKV) Put(ctx context.Context, key, value string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), value, r.ttl)
		pipe.Incr(ctx, r.versionKey(key))
		if r.ttl > 0 {
			pipe.Expire(ctx, r.versionKey(key), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) GetVersioned(ctx context.Context, key string) (string, int64, bool, error) {
	vals, err := r.client.MGet(ctx, r.key(key), r.versionKey(key)).Result()
	if err != nil {
		return "", 0, false, fmt.Errorf("get %q: %w", key, err)
	}
	value, ok := vals[0].(string)
	if !ok {
		return "", 0, false, nil
	}
	var version int64
	if s, isSet := vals[1].(string); isSet {
		if version, err = strconv.ParseInt(s, 10, 64); err != nil {
			return "", 0, false, fmt.Errorf("get %q: version: %w", key, err)
		}
	}
	return value, version, true, nil
}

// PutVersioned watches the version key so a concurrent writer aborts the
// transaction.
func (r *RedisKV) PutVersioned(ctx context.Context, key, value string, expected int64) (int64, error) {
	vk := r.versionKey(key)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vk).Int64()
		if errors.Is(err, redis.Nil) {
			cur = 0
		} else if err != nil {
			return err
		}
		if cur != expected {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(key), value, r.ttl)
			pipe.Set(ctx, vk, expected+1, r.ttl)
			return nil
		})
		return err
	}, vk)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrVersionConflict) {
		return 0, fmt.Errorf("put %q at version %d: %w", key, expected, ErrVersionConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("put %q: %w", key, err)
	}
	return expected + 1, nil
}

func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
