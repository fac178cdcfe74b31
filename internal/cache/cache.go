package cache

import (
	"context"
	"errors"
)

var ErrCacheMiss = errors.New("cache miss")

// Entry is a cached value stamped with the generations of the dependencies it
// was computed from.
type Entry[T any] struct {
	Stamp []uint64 `json:"stamp"`
	Value T        `json:"value"`
}

type Store[T any] interface {
	Get(ctx context.Context, key string) (Entry[T], error)
	Set(ctx context.Context, key string, entry Entry[T]) error
	Delete(ctx context.Context, key string) error
}

// Generations hands out a counter per dependency. Writers bump the counter of
// every dependency they change after the authoritative write succeeds.
type Generations interface {
	Current(ctx context.Context, deps ...string) ([]uint64, error)
	Bump(ctx context.Context, dep string) (uint64, error)
}

const CatalogDependency = "catalog"

func CartDependency(userID string) string {
	return "cart:" + userID
}

func ProfileDependency(userID string) string {
	return "profile:" + userID
}
