// Package summary serves the caller's order summary, cached against the cart
// and catalog generations.
package summary

import (
	"context"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

type CartReader interface {
	Lines(ctx context.Context, userID string) ([]domain.CartLine, error)
}

type CatalogReader interface {
	Snapshot(ctx context.Context) (domain.Catalog, error)
}

type Service struct {
	cart    CartReader
	catalog CatalogReader
	cache   *cache.Versioned[domain.OrderSummary]
	log     *zap.Logger
}

func NewService(cart CartReader, catalog CatalogReader, c *cache.Versioned[domain.OrderSummary], log *zap.Logger) *Service {
	return &Service{
		cart:    cart,
		catalog: catalog,
		cache:   c,
		log:     log,
	}
}

func (s *Service) Summary(ctx context.Context, userID string) (domain.OrderSummary, error) {
	deps := []string{cache.CartDependency(userID), cache.CatalogDependency}
	return s.cache.Get(ctx, "summary:"+userID, deps, func(ctx context.Context) (domain.OrderSummary, error) {
		lines, err := s.cart.Lines(ctx, userID)
		if err != nil {
			return domain.OrderSummary{}, err
		}
		catalog, err := s.catalog.Snapshot(ctx)
		if err != nil {
			return domain.OrderSummary{}, err
		}

		summary, err := Derive(lines, catalog)
		if err != nil {
			return domain.OrderSummary{}, err
		}
		for _, line := range summary.Unresolved {
			s.log.Warn("cart line references a product missing from the catalog",
				zap.String("user_id", userID),
				zap.String("product_id", line.ProductID),
				zap.String("size", line.Size))
		}
		return summary, nil
	})
}
