package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	Lines(ctx context.Context, userID string) ([]domain.CartLine, error)
	AddOrIncrement(ctx context.Context, userID, productID, size string, quantity int) error
	SetQuantity(ctx context.Context, userID, productID, size string, quantity int) error
	Remove(ctx context.Context, userID, productID, size string) error
}

type SummaryService interface {
	Summary(ctx context.Context, userID string) (domain.OrderSummary, error)
}

type CartHandler struct {
	cart    CartService
	summary SummaryService
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(cart CartService, summary SummaryService, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{
		cart:    cart,
		summary: summary,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	UserID string            `json:"user_id"`
	Items  []domain.CartLine `json:"items"`
}

type SummaryResponseDTO struct {
	domain.OrderSummary
	TotalFormatted string `json:"total_formatted"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	h.respondCart(ctx, w, userID, http.StatusOK)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" || req.Size == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "product_id and size are required")
		return
	}

	if err := h.cart.AddOrIncrement(ctx, userID, req.ProductID, req.Size, req.Quantity); err != nil {
		handleError(ctx, w, h.log, err)
		return
	}

	h.respondCart(ctx, w, userID, http.StatusCreated)
}

// PUT /api/v1/cart/items/{product_id}/{size}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err := h.cart.SetQuantity(ctx, userID, chi.URLParam(r, "product_id"), chi.URLParam(r, "size"), req.Quantity)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}

	h.respondCart(ctx, w, userID, http.StatusOK)
}

// DELETE /api/v1/cart/items/{product_id}/{size}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.cart.Remove(ctx, userID, chi.URLParam(r, "product_id"), chi.URLParam(r, "size")); err != nil {
		handleError(ctx, w, h.log, err)
		return
	}

	h.respondCart(ctx, w, userID, http.StatusOK)
}

// GET /api/v1/cart/summary
func (h *CartHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	summary, err := h.summary.Summary(ctx, userID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	if summary.Items == nil {
		summary.Items = []domain.SummaryItem{}
	}

	respondJSON(w, http.StatusOK, SummaryResponseDTO{
		OrderSummary:   summary,
		TotalFormatted: summary.TotalAmount.String(),
	})
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, userID string, status int) {
	lines, err := h.cart.Lines(ctx, userID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	respondJSON(w, status, CartResponseDTO{UserID: userID, Items: lines})
}
