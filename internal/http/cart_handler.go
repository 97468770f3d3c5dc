package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/giftcart-service/internal/cart"
	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/fjod/go_cart/giftcart-service/internal/reconciler"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxQuantity = 99

type CartService interface {
	Items() []domain.CartItem
	Count() int
	Total() decimal.Decimal
	Add(ctx context.Context, item domain.CartItem) domain.AddResult
	Remove(ctx context.Context, id string) bool
	UpdateQuantity(ctx context.Context, id string, quantity int) bool
	Clear(ctx context.Context)
}

type GiftReconciler interface {
	Trigger()
	Stats() reconciler.Stats
}

type CartHandler struct {
	cart  CartService
	gifts GiftReconciler
}

func NewCartHandler(cart CartService, gifts GiftReconciler) *CartHandler {
	return &CartHandler{cart: cart, gifts: gifts}
}

type AddItemRequestDTO struct {
	Product       domain.ProductSnapshot `json:"product"`
	Quantity      int                    `json:"quantity"`
	SelectedSize  string                 `json:"selected_size,omitempty"`
	SelectedColor string                 `json:"selected_color,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Items     []domain.CartItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     decimal.Decimal   `json:"total"`
}

type AddItemResponseDTO struct {
	Result domain.AddResult `json:"result"`
	Cart   CartResponseDTO  `json:"cart"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.snapshot())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", err.Error())
		return
	}
	if req.Product.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product.id is required")
		return
	}
	if req.Product.Price.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "product.price must not be negative")
		return
	}
	// 0 means the default of one
	if req.Quantity < 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	res := h.cart.Add(r.Context(), domain.CartItem{
		Product:       req.Product,
		Quantity:      req.Quantity,
		SelectedSize:  req.SelectedSize,
		SelectedColor: req.SelectedColor,
	})
	switch {
	case res.Success:
		respondJSON(w, http.StatusCreated, AddItemResponseDTO{Result: res, Cart: h.snapshot()})
	case res.AlreadyExists:
		respondError(w, http.StatusConflict, "already_exists", res.Message)
	case res.Message == cart.MsgProductIsGift:
		respondError(w, http.StatusUnprocessableEntity, "product_is_gift", res.Message)
	case res.Message == cart.MsgGiftRejected:
		respondError(w, http.StatusUnprocessableEntity, "gift_not_allowed", res.Message)
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", res.Message)
	}
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", err.Error())
		return
	}
	// values below 1 are clamped by the store
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	if !h.cart.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), req.Quantity) {
		respondError(w, http.StatusNotFound, "not_found", "cart item not found")
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot())
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.cart.Remove(r.Context(), chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "not_found", "cart item not found")
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot())
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear(r.Context())
	respondJSON(w, http.StatusOK, h.snapshot())
}

// RefreshGifts asks the reconciler for a new eligibility check, e.g. after
// the evaluator was unreachable.
func (h *CartHandler) RefreshGifts(w http.ResponseWriter, r *http.Request) {
	h.gifts.Trigger()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (h *CartHandler) GiftStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.gifts.Stats())
}

func (h *CartHandler) snapshot() CartResponseDTO {
	return CartResponseDTO{
		Items:     h.cart.Items(),
		ItemCount: h.cart.Count(),
		Total:     h.cart.Total(),
	}
}
