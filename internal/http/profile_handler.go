package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

type ProfileService interface {
	Get(ctx context.Context, userID string) (domain.ShippingProfile, bool, error)
	Save(ctx context.Context, userID string, p domain.ShippingProfile) (domain.ShippingProfile, error)
}

type ProfileHandler struct {
	profiles ProfileService
	timeout  time.Duration
	log      *zap.Logger
}

func NewProfileHandler(profiles ProfileService, timeout time.Duration, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		timeout:  timeout,
		log:      log,
	}
}

// GET /api/v1/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	p, ok, err := h.profiles.Get(ctx, userID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "profile_not_found", "no shipping profile saved")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// PUT /api/v1/profile
func (h *ProfileHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req domain.ShippingProfile
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	saved, err := h.profiles.Save(ctx, userID, req)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
