package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error)
	ResolveStatus(ctx context.Context, sessionID string) (domain.SessionStatus, bool, error)
}

type PaymentService interface {
	IsPaymentConfigured(ctx context.Context) (bool, error)
	Set(ctx context.Context, cfg domain.PaymentConfig) error
}

type CheckoutHandler struct {
	checkout CheckoutService
	payments PaymentService
	timeout  time.Duration
	log      *zap.Logger
}

func NewCheckoutHandler(checkout CheckoutService, payments PaymentService, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		payments: payments,
		timeout:  timeout,
		log:      log,
	}
}

// InitiateCheckoutRequestDTO may carry the idempotency key in the body or in
// the Idempotency-Key header. Without one every request is a new attempt.
type InitiateCheckoutRequestDTO struct {
	IdempotencyKey string                 `json:"idempotency_key"`
	Profile        domain.ShippingProfile `json:"profile"`
}

type SessionStatusResponseDTO struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Caller    string `json:"caller,omitempty"`
	Error     string `json:"error,omitempty"`
}

type PaymentConfiguredResponseDTO struct {
	Configured bool `json:"configured"`
}

type PaymentConfigRequestDTO struct {
	SecretKey        string   `json:"secret_key"`
	AllowedCountries []string `json:"allowed_countries"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req InitiateCheckoutRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	res, err := h.checkout.Checkout(ctx, checkout.Request{
		UserID:         userID,
		IdempotencyKey: key,
		Profile:        req.Profile,
	})
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Status == domain.CheckoutStatusFailed {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

// GET /api/v1/checkout/sessions/{session_id}
func (h *CheckoutHandler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "session_id")
	st, resolved, err := h.checkout.ResolveStatus(ctx, sessionID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}

	resp := SessionStatusResponseDTO{SessionID: sessionID, Status: "pending"}
	if resolved {
		switch s := st.(type) {
		case domain.SessionCompleted:
			resp.Status = "completed"
			if caller, ok := s.Caller(); ok {
				resp.Caller = caller
			}
		case domain.SessionFailed:
			resp.Status = "failed"
			resp.Error = s.Error
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GET /api/v1/payment/configured
func (h *CheckoutHandler) PaymentConfigured(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ok, err := h.payments.IsPaymentConfigured(ctx)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, PaymentConfiguredResponseDTO{Configured: ok})
}

// PUT /api/v1/admin/payment-config
func (h *CheckoutHandler) SetPaymentConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PaymentConfigRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err := h.payments.Set(ctx, domain.PaymentConfig{
		SecretKey:        req.SecretKey,
		AllowedCountries: req.AllowedCountries,
	})
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
