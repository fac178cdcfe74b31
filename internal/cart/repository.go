package cart

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// Repository defines the authoritative cart operations.
// Consumers define this interface, not the MongoDB implementation
type Repository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddOrIncrement(ctx context.Context, userID string, line domain.CartLine) error
	SetQuantity(ctx context.Context, userID string, key domain.LineKey, quantity int) error
	RemoveLine(ctx context.Context, userID string, key domain.LineKey) error
	DeleteCart(ctx context.Context, userID string) error
}
