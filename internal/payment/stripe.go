// Package payment adapts the Stripe Checkout API to the session operations the
// checkout orchestrator needs, and stores the administrator's provider settings.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"go.uber.org/zap"
)

type ConfigReader interface {
	GetConfig(ctx context.Context) (domain.PaymentConfig, bool, error)
}

type StripeProvider struct {
	configs ConfigReader
	backend stripe.Backend
	breaker *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
	log     *zap.Logger
}

// NewStripeProvider builds a provider that reads its secret key from configs on
// every call. apiURL overrides the Stripe API base URL when non-empty.
// The backend never retries: a session request is sent at most once.
func NewStripeProvider(configs ConfigReader, apiURL string, log *zap.Logger) *StripeProvider {
	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log.Sugar(),
	}
	if apiURL != "" {
		backendConfig.URL = stripe.String(apiURL)
	}

	return &StripeProvider{
		configs: configs,
		backend: stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		breaker: circuitbreaker.New[*stripe.CheckoutSession](circuitbreaker.Settings{
			Name:         "stripe",
			IsSuccessful: isProviderHealthy,
		}, log),
		log: log,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error) {
	client, cfg, err := p.client(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(item.Currency),
				UnitAmount: stripe.Int64(int64(item.PriceInCents)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(item.ProductName),
					Description: stripe.String(item.ProductDescription),
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.ClientRef != "" {
		params.ClientReferenceID = stripe.String(req.ClientRef)
	}
	if len(cfg.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(cfg.AllowedCountries),
		}
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := p.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return client.New(params)
	})
	if err != nil {
		p.log.Error("failed to create stripe checkout session", zap.Error(err))
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}

	return domain.Session{ID: s.ID, URL: s.URL}, nil
}

// GetSessionStatus resolves a session. The bool is false while the session is
// still open and nothing has failed yet.
func (p *StripeProvider) GetSessionStatus(ctx context.Context, sessionID string) (domain.SessionStatus, bool, error) {
	client, _, err := p.client(ctx)
	if err != nil {
		return nil, false, err
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := p.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return client.Get(sessionID, params)
	})

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return domain.SessionFailed{Error: string(stripeErr.Code)}, true, nil
	}
	if err != nil {
		p.log.Error("failed to get stripe checkout session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, false, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}

	return sessionStatus(s)
}

func (p *StripeProvider) client(ctx context.Context) (*session.Client, domain.PaymentConfig, error) {
	cfg, ok, err := p.configs.GetConfig(ctx)
	if err != nil {
		return nil, cfg, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if !ok || cfg.SecretKey == "" {
		return nil, cfg, domain.ErrPaymentNotConfigured
	}
	return &session.Client{B: p.backend, Key: cfg.SecretKey}, cfg, nil
}

func sessionStatus(s *stripe.CheckoutSession) (domain.SessionStatus, bool, error) {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		raw, err := rawResponse(s)
		if err != nil {
			return nil, false, err
		}
		return domain.SessionCompleted{
			CallerPrincipal:  s.ClientReferenceID,
			HasCaller:        s.ClientReferenceID != "",
			ProviderResponse: raw,
		}, true, nil
	case paymentErrorCode(s) != "":
		return domain.SessionFailed{Error: paymentErrorCode(s)}, true, nil
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return domain.SessionFailed{Error: "session_expired"}, true, nil
	default:
		return nil, false, nil
	}
}

func paymentErrorCode(s *stripe.CheckoutSession) string {
	if s.PaymentIntent == nil || s.PaymentIntent.LastPaymentError == nil {
		return ""
	}
	return string(s.PaymentIntent.LastPaymentError.Code)
}

func rawResponse(s *stripe.CheckoutSession) (string, error) {
	if s.LastResponse != nil && len(s.LastResponse.RawJSON) > 0 {
		return string(s.LastResponse.RawJSON), nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return string(b), nil
}

// isProviderHealthy keeps request errors that Stripe answered with a 4xx from
// tripping the breaker.
func isProviderHealthy(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < 500
}
