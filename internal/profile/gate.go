// Package profile validates and persists shipping profiles. A checkout may only
// request a payment session after Gate.Save has returned successfully.
package profile

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

type Repository interface {
	GetProfile(ctx context.Context, userID string) (domain.ShippingProfile, bool, error)
	SaveProfile(ctx context.Context, userID string, p domain.ShippingProfile) error
}

// Record is the cached form of a profile read, including "no profile".
type Record struct {
	Profile domain.ShippingProfile `json:"profile"`
	Found   bool                   `json:"found"`
}

type Gate struct {
	repo  Repository
	cache *cache.Versioned[Record]
	log   *zap.Logger
}

func NewGate(repo Repository, c *cache.Versioned[Record], log *zap.Logger) *Gate {
	return &Gate{repo: repo, cache: c, log: log}
}

func (g *Gate) Get(ctx context.Context, userID string) (domain.ShippingProfile, bool, error) {
	dep := cache.ProfileDependency(userID)
	rec, err := g.cache.Get(ctx, dep, []string{dep}, func(ctx context.Context) (Record, error) {
		p, ok, err := g.repo.GetProfile(ctx, userID)
		if err != nil {
			return Record{}, err
		}
		return Record{Profile: p, Found: ok}, nil
	})
	if err != nil {
		g.log.Error("repo get profile error", zap.String("user_id", userID), zap.Error(err))
		return domain.ShippingProfile{}, false, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return rec.Profile, rec.Found, nil
}

// Save trims and validates p, persists it and invalidates the cached read.
// It returns the profile as stored.
func (g *Gate) Save(ctx context.Context, userID string, p domain.ShippingProfile) (domain.ShippingProfile, error) {
	if err := p.Validate(); err != nil {
		return domain.ShippingProfile{}, err
	}
	p = p.Normalize()

	if err := g.repo.SaveProfile(ctx, userID, p); err != nil {
		g.log.Error("repo save profile error", zap.String("user_id", userID), zap.Error(err))
		return domain.ShippingProfile{}, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	g.cache.Invalidate(ctx, cache.ProfileDependency(userID))
	return p, nil
}
