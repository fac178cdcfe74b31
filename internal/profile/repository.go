package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetProfile returns the stored profile; the bool is false when the caller has none.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (domain.ShippingProfile, bool, error) {
	query := `
		SELECT name, email, shipping_address
		FROM user_profiles
		WHERE user_id = $1
	`

	var p domain.ShippingProfile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.Name, &p.Email, &p.ShippingAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ShippingProfile{}, false, nil
	}
	if err != nil {
		return domain.ShippingProfile{}, false, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, true, nil
}

func (r *PostgresRepository) SaveProfile(ctx context.Context, userID string, p domain.ShippingProfile) error {
	query := `
		INSERT INTO user_profiles (user_id, name, email, shipping_address, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			shipping_address = EXCLUDED.shipping_address,
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, userID, p.Name, p.Email, p.ShippingAddress); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
