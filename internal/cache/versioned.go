package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Versioned serves cached reads that are valid only while the generations of
// their dependencies are unchanged. The stamp is read before the value is
// loaded, so a write that lands during the load always leaves the entry stale.
type Versioned[T any] struct {
	store Store[T]
	gens  Generations
	log   *zap.Logger
	sfg   singleflight.Group // Prevents cache stampede
}

func NewVersioned[T any](store Store[T], gens Generations, log *zap.Logger) *Versioned[T] {
	return &Versioned[T]{
		store: store,
		gens:  gens,
		log:   log,
	}
}

// Get returns the cached value for key when its stamp matches the current
// generations of deps, otherwise calls load and caches the result.
func (v *Versioned[T]) Get(ctx context.Context, key string, deps []string, load func(context.Context) (T, error)) (T, error) {
	stamp, err := v.gens.Current(ctx, deps...)
	if err != nil {
		// without a stamp nothing cached can be trusted
		v.log.Warn("generation read failed, bypassing cache", zap.String("key", key), zap.Error(err))
		return load(ctx)
	}

	res, err, _ := v.sfg.Do(flightKey(key, stamp), func() (interface{}, error) {
		entry, err := v.store.Get(ctx, key)
		if err == nil && slices.Equal(entry.Stamp, stamp) {
			return entry.Value, nil
		}
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			v.log.Warn("cache get error", zap.String("key", key), zap.Error(err))
		}

		value, err := load(ctx)
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := v.store.Set(setCtx, key, Entry[T]{Stamp: stamp, Value: value}); err != nil {
			v.log.Warn("cache set error", zap.String("key", key), zap.Error(err))
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Invalidate bumps the generation of dep, making every entry that depends on it
// stale. When the bump fails the entry stored under dep itself is deleted; other
// dependents rely on the Generations implementation to recover the bump (see
// RecoveringGenerations).
func (v *Versioned[T]) Invalidate(ctx context.Context, dep string) {
	invalidateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if _, err := v.gens.Bump(invalidateCtx, dep); err != nil {
		v.log.Error("cache invalidate error", zap.String("dependency", dep), zap.Error(err))
		if err := v.store.Delete(invalidateCtx, dep); err != nil {
			v.log.Error("cache delete error", zap.String("key", dep), zap.Error(err))
		}
	}
}

func flightKey(key string, stamp []uint64) string {
	var b strings.Builder
	b.WriteString(key)
	for _, g := range stamp {
		fmt.Fprintf(&b, "@%d", g)
	}
	return b.String()
}
