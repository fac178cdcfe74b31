package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// errorMappings is checked in order; the first sentinel err matches wins.
var errorMappings = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{domain.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity"},
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{domain.ErrIncompleteProfile, http.StatusUnprocessableEntity, "incomplete_profile"},
	{domain.ErrUnknownProduct, http.StatusUnprocessableEntity, "unknown_product"},
	{domain.ErrUnknownSize, http.StatusUnprocessableEntity, "unknown_size"},
	{domain.ErrInvalidProduct, http.StatusUnprocessableEntity, "invalid_product"},
	{domain.ErrInvalidConfig, http.StatusUnprocessableEntity, "invalid_config"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
	{domain.ErrPaymentNotConfigured, http.StatusPreconditionFailed, "payment_not_configured"},
	{domain.ErrAttemptInProgress, http.StatusConflict, "attempt_in_progress"},
	{domain.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrSessionCreationFailed, http.StatusBadGateway, "session_creation_failed"},
	{domain.ErrProvider, http.StatusBadGateway, "provider_error"},
	{domain.ErrProfileSaveFailed, http.StatusServiceUnavailable, "profile_save_failed"},
	{domain.ErrBackendUnavailable, http.StatusServiceUnavailable, "backend_unavailable"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// handleError writes the response for a service error. Unmapped errors are
// logged and hidden behind a generic 500.
func handleError(ctx context.Context, w http.ResponseWriter, log *zap.Logger, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		resp := ErrorResponse{Error: err.Error(), Code: m.code}
		var incomplete *domain.IncompleteProfileError
		if errors.As(err, &incomplete) {
			resp.Details = "missing: " + strings.Join(incomplete.Missing, ", ")
		}
		if m.status >= http.StatusInternalServerError {
			logger.WithTrace(ctx, log).Warn("request failed", zap.String("code", m.code), zap.Error(err))
			resp.Error = m.target.Error()
		}
		respondJSON(w, m.status, resp)
		return
	}

	logger.WithTrace(ctx, log).Error("unhandled error", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
