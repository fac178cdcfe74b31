// Package http exposes the storefront over a JSON API under /api/v1.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Products *ProductHandler
	Cart     *CartHandler
	Profile  *ProfileHandler
	Checkout *CheckoutHandler
}

func NewRouter(h Handlers, jwtSecret []byte, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(1 << 20)) // 1MB

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret, log))

		r.Get("/products", h.Products.ListProducts)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Get("/summary", h.Cart.GetSummary)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{product_id}/{size}", h.Cart.UpdateQuantity)
			r.Delete("/items/{product_id}/{size}", h.Cart.RemoveItem)
		})

		r.Get("/profile", h.Profile.GetProfile)
		r.Put("/profile", h.Profile.SaveProfile)

		r.Get("/payment/configured", h.Checkout.PaymentConfigured)
		r.Post("/checkout", h.Checkout.InitiateCheckout)
		r.Get("/checkout/sessions/{session_id}", h.Checkout.GetSessionStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Put("/payment-config", h.Checkout.SetPaymentConfig)
			r.Put("/products/{id}", h.Products.UpsertProduct)
			r.Delete("/products/{id}", h.Products.DeleteProduct)
		})
	})

	return r
}

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
