package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type ConfigRepository struct {
	db *sql.DB
}

func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) GetConfig(ctx context.Context) (domain.PaymentConfig, bool, error) {
	query := `
		SELECT secret_key, allowed_countries
		FROM payment_configuration
		WHERE id = 1
	`

	var cfg domain.PaymentConfig
	err := r.db.QueryRowContext(ctx, query).Scan(&cfg.SecretKey, pq.Array(&cfg.AllowedCountries))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentConfig{}, false, nil
	}
	if err != nil {
		return domain.PaymentConfig{}, false, fmt.Errorf("failed to get payment configuration: %w", err)
	}
	return cfg, true, nil
}

func (r *ConfigRepository) SetConfig(ctx context.Context, cfg domain.PaymentConfig) error {
	query := `
		INSERT INTO payment_configuration (id, secret_key, allowed_countries, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			secret_key = EXCLUDED.secret_key,
			allowed_countries = EXCLUDED.allowed_countries,
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, cfg.SecretKey, pq.Array(cfg.AllowedCountries)); err != nil {
		return fmt.Errorf("failed to set payment configuration: %w", err)
	}
	return nil
}

type ConfigStore interface {
	GetConfig(ctx context.Context) (domain.PaymentConfig, bool, error)
	SetConfig(ctx context.Context, cfg domain.PaymentConfig) error
}

// Configuration answers whether checkout can reach the provider and lets an
// administrator replace the provider settings.
type Configuration struct {
	store ConfigStore
	log   *zap.Logger
}

func NewConfiguration(store ConfigStore, log *zap.Logger) *Configuration {
	return &Configuration{store: store, log: log}
}

func (c *Configuration) IsPaymentConfigured(ctx context.Context) (bool, error) {
	cfg, ok, err := c.store.GetConfig(ctx)
	if err != nil {
		c.log.Error("payment configuration read failed", zap.Error(err))
		return false, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return ok && cfg.SecretKey != "", nil
}

func (c *Configuration) Set(ctx context.Context, cfg domain.PaymentConfig) error {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	countries := make([]string, 0, len(cfg.AllowedCountries))
	for _, country := range cfg.AllowedCountries {
		countries = append(countries, strings.ToUpper(strings.TrimSpace(country)))
	}
	cfg.AllowedCountries = countries

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := c.store.SetConfig(ctx, cfg); err != nil {
		c.log.Error("payment configuration write failed", zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	c.log.Info("payment configuration updated", zap.Int("allowed_countries", len(cfg.AllowedCountries)))
	return nil
}
