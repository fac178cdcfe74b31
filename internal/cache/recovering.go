package cache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RecoveringGenerations remembers bumps that failed. A dependency with a
// pending bump is bumped again before its generation is read, and while that
// keeps failing Current returns an error, so readers bypass the cache instead
// of serving entries stamped before the write.
type RecoveringGenerations struct {
	inner Generations
	log   *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewRecoveringGenerations(inner Generations, log *zap.Logger) *RecoveringGenerations {
	return &RecoveringGenerations{
		inner:   inner,
		log:     log,
		pending: make(map[string]struct{}),
	}
}

func (g *RecoveringGenerations) Current(ctx context.Context, deps ...string) ([]uint64, error) {
	for _, dep := range g.pendingOf(deps) {
		if _, err := g.inner.Bump(ctx, dep); err != nil {
			return nil, fmt.Errorf("replay bump of %s: %w", dep, err)
		}
		g.settle(dep)
		g.log.Info("replayed failed generation bump", zap.String("dependency", dep))
	}
	return g.inner.Current(ctx, deps...)
}

func (g *RecoveringGenerations) Bump(ctx context.Context, dep string) (uint64, error) {
	gen, err := g.inner.Bump(ctx, dep)
	if err != nil {
		g.mu.Lock()
		g.pending[dep] = struct{}{}
		g.mu.Unlock()
		return 0, err
	}
	g.settle(dep)
	return gen, nil
}

// Pending reports how many dependencies still wait for a bump.
func (g *RecoveringGenerations) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *RecoveringGenerations) pendingOf(deps []string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return nil
	}
	var out []string
	for _, d := range deps {
		if _, ok := g.pending[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (g *RecoveringGenerations) settle(dep string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, dep)
}
