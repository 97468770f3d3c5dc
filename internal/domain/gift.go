package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GiftProduct is a free product offered by the eligibility evaluator.
// Price is the product's real (representative) price.
type GiftProduct struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Image   string          `json:"image,omitempty"`
	InStock bool            `json:"in_stock"`
}

type Eligibility struct {
	Eligible     bool          `json:"eligible"`
	GiftProducts []GiftProduct `json:"gift_products"`
}

// AsCartItem converts the product into a zero-priced gift line item.
func (g GiftProduct) AsCartItem(now time.Time) CartItem {
	original := g.Price
	return CartItem{
		ID: GiftItemID(g.ID),
		Product: ProductSnapshot{
			ID:            g.ID,
			Name:          g.Name,
			Price:         decimal.Zero,
			OriginalPrice: &original,
			Image:         g.Image,
			InStock:       g.InStock,
		},
		Quantity: 1,
		AddedAt:  now,
		IsGift:   true,
	}
}
