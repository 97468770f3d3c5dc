// Package http exposes the cart, its gifts and the wishlist over a JSON API.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/obs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	// RateLimit requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// Ready reports whether the stores finished their initial load.
	Ready func() bool
}

func NewRouter(cfg RouterConfig, cartHandler *CartHandler, wishlistHandler *WishlistHandler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil && !cfg.Ready() {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Patch("/items/{id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{id}", cartHandler.RemoveItem)
			r.Post("/gifts/refresh", cartHandler.RefreshGifts)
			r.Get("/gifts/stats", cartHandler.GiftStats)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", wishlistHandler.GetWishlist)
			r.Post("/", wishlistHandler.AddItem)
			r.Delete("/items/{id}", wishlistHandler.RemoveItem)
		})
	})

	return otelhttp.NewHandler(r, "giftcart-api", otelhttp.WithPropagators(obs.Propagator()))
}
