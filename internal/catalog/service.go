// Package catalog serves the product list and keeps its cached copy coherent
// with administrative changes through the catalog generation counter.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

const productsKey = "catalog:products"

// ProductRepository is the authoritative product store.
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpsertProduct(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type Service struct {
	repo  ProductRepository
	cache *cache.Versioned[[]domain.Product]
	log   *zap.Logger
}

func NewService(repo ProductRepository, c *cache.Versioned[[]domain.Product], log *zap.Logger) *Service {
	return &Service{repo: repo, cache: c, log: log}
}

func (s *Service) Products(ctx context.Context) ([]domain.Product, error) {
	products, err := s.cache.Get(ctx, productsKey, []string{cache.CatalogDependency}, func(ctx context.Context) ([]domain.Product, error) {
		return s.repo.ListProducts(ctx)
	})
	if err != nil {
		s.log.Error("list products failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return products, nil
}

// Snapshot returns the catalog as of the current catalog generation.
func (s *Service) Snapshot(ctx context.Context) (domain.Catalog, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return domain.Catalog{}, err
	}
	return domain.NewCatalog(products), nil
}

func (s *Service) Lookup(ctx context.Context, id string) (domain.Product, bool, error) {
	c, err := s.Snapshot(ctx)
	if err != nil {
		return domain.Product{}, false, err
	}
	p, ok := c.Lookup(id)
	return p, ok, nil
}

func (s *Service) Upsert(ctx context.Context, p domain.Product) error {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" || p.Name == "" || p.Price < 0 || len(p.AvailableSizes) == 0 {
		return domain.ErrInvalidProduct
	}

	if err := s.repo.UpsertProduct(ctx, p); err != nil {
		s.log.Error("repo upsert product error", zap.String("product_id", p.ID), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	s.cache.Invalidate(ctx, cache.CatalogDependency)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.DeleteProduct(ctx, id)
	if errors.Is(err, ErrProductNotFound) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		s.log.Error("repo delete product error", zap.String("product_id", id), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	s.cache.Invalidate(ctx, cache.CatalogDependency)
	return nil
}
