package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisStore[T any](client *redis.Client, prefix string) *RedisStore[T] {
	return &RedisStore[T]{
		client:  client,
		prefix:  prefix,
		baseTTL: 15 * time.Minute,
	}
}

type RedisStore[T any] struct {
	client  *redis.Client
	prefix  string
	baseTTL time.Duration
}

func (r *RedisStore[T]) Get(ctx context.Context, key string) (Entry[T], error) {
	var entry Entry[T]

	data, err := r.client.Get(ctx, r.cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry, ErrCacheMiss
	}
	if err != nil {
		return entry, fmt.Errorf("redis get failed: %w", err)
	}

	if err2 := json.Unmarshal(data, &entry); err2 != nil {
		return entry, fmt.Errorf("unmarshal entry failed: %w", err2)
	}

	return entry, nil
}

func (r *RedisStore[T]) Set(ctx context.Context, key string, entry Entry[T]) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, r.cacheKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func (r *RedisStore[T]) cacheKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// RedisGenerations keeps one INCR counter per dependency. A counter that does
// not exist yet reads as zero.
type RedisGenerations struct {
	client *redis.Client
}

func NewRedisGenerations(client *redis.Client) *RedisGenerations {
	return &RedisGenerations{client: client}
}

func (g *RedisGenerations) Current(ctx context.Context, deps ...string) ([]uint64, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	keys := make([]string, len(deps))
	for i, d := range deps {
		keys[i] = generationKey(d)
	}

	values, err := g.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	stamp := make([]uint64, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected generation value %T for %s", v, deps[i])
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse generation for %s: %w", deps[i], err)
		}
		stamp[i] = n
	}
	return stamp, nil
}

func (g *RedisGenerations) Bump(ctx context.Context, dep string) (uint64, error) {
	n, err := g.client.Incr(ctx, generationKey(dep)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	return uint64(n), nil
}

func generationKey(dep string) string {
	return fmt.Sprintf("gen:%s", dep)
}
