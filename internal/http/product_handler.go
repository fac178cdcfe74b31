package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/money"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductService interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Upsert(ctx context.Context, p domain.Product) error
	Delete(ctx context.Context, id string) error
}

type ProductHandler struct {
	products ProductService
	timeout  time.Duration
	log      *zap.Logger
}

func NewProductHandler(products ProductService, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
		log:      log,
	}
}

// UpsertProductRequestDTO carries the price as a decimal string, e.g. "25.00".
type UpsertProductRequestDTO struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	ImageURL       string   `json:"image_url"`
	AvailableSizes []string `json:"available_sizes"`
	Price          string   `json:"price"`
}

type ProductDTO struct {
	domain.Product
	PriceFormatted string `json:"price_formatted"`
}

func toProductDTO(p domain.Product) ProductDTO {
	return ProductDTO{Product: p, PriceFormatted: p.Price.String()}
}

// GET /api/v1/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.Products(ctx)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}

	resp := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductDTO(p))
	}
	respondJSON(w, http.StatusOK, resp)
}

// PUT /api/v1/admin/products/{id}
func (h *ProductHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpsertProductRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	price, err := money.Parse(req.Price)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid_price", err.Error())
		return
	}

	p := domain.Product{
		ID:             chi.URLParam(r, "id"),
		Name:           req.Name,
		Description:    req.Description,
		ImageURL:       req.ImageURL,
		AvailableSizes: req.AvailableSizes,
		Price:          price,
	}
	if err := h.products.Upsert(ctx, p); err != nil {
		handleError(ctx, w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toProductDTO(p))
}

// DELETE /api/v1/admin/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.products.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
