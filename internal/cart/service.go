// Package cart is the cart store: validated mutations against the authoritative
// repository and generation-checked cached reads of the caller's lines.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

type ProductLookup interface {
	Lookup(ctx context.Context, id string) (domain.Product, bool, error)
}

type Service struct {
	repo    Repository
	catalog ProductLookup
	cache   *cache.Versioned[[]domain.CartLine]
	log     *zap.Logger
}

func NewService(repo Repository, catalog ProductLookup, c *cache.Versioned[[]domain.CartLine], log *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   c,
		log:     log,
	}
}

// Lines returns the caller's cart lines; an absent cart has no lines.
func (s *Service) Lines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	dep := cache.CartDependency(userID)
	lines, err := s.cache.Get(ctx, dep, []string{dep}, func(ctx context.Context) ([]domain.CartLine, error) {
		c, err := s.repo.GetCart(ctx, userID)
		if errors.Is(err, ErrCartNotFound) {
			return []domain.CartLine{}, nil
		}
		if err != nil {
			return nil, err
		}
		if c.Lines == nil {
			return []domain.CartLine{}, nil
		}
		return c.Lines, nil
	})
	if err != nil {
		s.log.Error("repo get cart error", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return lines, nil
}

// AddOrIncrement adds quantity to the (product, size) line, creating it when
// absent. The resulting quantity may not exceed domain.MaxQuantity.
func (s *Service) AddOrIncrement(ctx context.Context, userID, productID, size string, quantity int) error {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return domain.ErrInvalidQuantity
	}
	if err := s.checkProduct(ctx, productID, size); err != nil {
		return err
	}

	line := domain.CartLine{ProductID: productID, Size: size, Quantity: quantity}
	err := s.repo.AddOrIncrement(ctx, userID, line)
	if errors.Is(err, ErrQuantityLimit) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidQuantity, err)
	}
	if err != nil {
		s.log.Error("repo add item error", zap.String("user_id", userID), zap.String("product_id", productID), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	s.cache.Invalidate(ctx, cache.CartDependency(userID))
	return nil
}

// SetQuantity overwrites the quantity of an existing line. Lowering a line to
// zero is not a decrement; callers remove the line instead.
func (s *Service) SetQuantity(ctx context.Context, userID, productID, size string, quantity int) error {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return domain.ErrInvalidQuantity
	}

	key := domain.LineKey{ProductID: productID, Size: size}
	err := s.repo.SetQuantity(ctx, userID, key, quantity)
	if errors.Is(err, ErrItemNotFound) {
		return domain.ErrLineNotFound
	}
	if err != nil {
		s.log.Error("repo update item quantity error", zap.String("user_id", userID), zap.String("product_id", productID), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	s.cache.Invalidate(ctx, cache.CartDependency(userID))
	return nil
}

// Remove deletes the line if present. Removing an absent line succeeds.
func (s *Service) Remove(ctx context.Context, userID, productID, size string) error {
	key := domain.LineKey{ProductID: productID, Size: size}
	err := s.repo.RemoveLine(ctx, userID, key)
	if errors.Is(err, ErrCartNotFound) {
		return nil
	}
	if err != nil {
		s.log.Error("repo remove item error", zap.String("user_id", userID), zap.String("product_id", productID), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	s.cache.Invalidate(ctx, cache.CartDependency(userID))
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		s.log.Error("repo delete cart error", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	s.cache.Invalidate(ctx, cache.CartDependency(userID))
	return nil
}

func (s *Service) checkProduct(ctx context.Context, productID, size string) error {
	p, ok, err := s.catalog.Lookup(ctx, productID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUnknownProduct
	}
	if !p.HasSize(size) {
		return domain.ErrUnknownSize
	}
	return nil
}
