package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

type WishlistService interface {
	Items() []domain.WishlistItem
	Add(ctx context.Context, product domain.ProductSnapshot) domain.AddResult
	Remove(ctx context.Context, id string) bool
}

type WishlistHandler struct {
	wishlist WishlistService
}

func NewWishlistHandler(wishlist WishlistService) *WishlistHandler {
	return &WishlistHandler{wishlist: wishlist}
}

type AddWishlistRequestDTO struct {
	Product domain.ProductSnapshot `json:"product"`
}

func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"items": h.wishlist.Items()})
}

func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddWishlistRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", err.Error())
		return
	}
	if req.Product.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product.id is required")
		return
	}

	// adding twice is not an error for the wishlist
	res := h.wishlist.Add(r.Context(), req.Product)
	status := http.StatusOK
	if res.Success {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]any{"result": res, "items": h.wishlist.Items()})
}

func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.wishlist.Remove(r.Context(), chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "not_found", "wishlist item not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": h.wishlist.Items()})
}
