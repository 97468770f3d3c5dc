package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// itemNamespace seeds the name-based ids of cart and wishlist items.
var itemNamespace = uuid.MustParse("6f1c4f5e-0d3a-4b8e-9a57-2c1f0b7d9e21")

// ProductSnapshot is a copy of the catalog fields taken when an item is added.
type ProductSnapshot struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Image         string           `json:"image,omitempty"`
	InStock       bool             `json:"in_stock"`
	Category      string           `json:"category,omitempty"`
	SKU           string           `json:"sku,omitempty"`
}

type CartItem struct {
	ID            string          `json:"id"`
	Product       ProductSnapshot `json:"product"`
	Quantity      int             `json:"quantity"`
	SelectedSize  string          `json:"selected_size,omitempty"`
	SelectedColor string          `json:"selected_color,omitempty"`
	AddedAt       time.Time       `json:"added_at"`
	IsGift        bool            `json:"is_gift"`
}

// SameVariant reports whether two items describe the same product variant.
// Storage ids are not compared.
func (c CartItem) SameVariant(o CartItem) bool {
	return c.Product.ID == o.Product.ID &&
		c.SelectedSize == o.SelectedSize &&
		c.SelectedColor == o.SelectedColor
}

// LineTotal is price times quantity. Gifts are priced at zero.
func (c CartItem) LineTotal() decimal.Decimal {
	return c.Product.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// ItemID derives the storage key of a non-gift line item.
func ItemID(productID, size, color string) string {
	return uuid.NewSHA1(itemNamespace, []byte("item\x00"+productID+"\x00"+size+"\x00"+color)).String()
}

// GiftItemID derives the storage key of a gift line item.
func GiftItemID(productID string) string {
	return uuid.NewSHA1(itemNamespace, []byte("gift\x00"+productID)).String()
}

// Projection is the (total, count) pair computed over non-gift items only.
type Projection struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

func (p Projection) Equal(o Projection) bool {
	return p.Count == o.Count && p.Total.Equal(o.Total)
}

// ProjectionOf sums price*quantity and quantities over the non-gift items.
func ProjectionOf(items []CartItem) Projection {
	p := Projection{Total: decimal.Zero}
	for _, item := range items {
		if item.IsGift {
			continue
		}
		p.Total = p.Total.Add(item.LineTotal())
		p.Count += item.Quantity
	}
	return p
}

type AddResult struct {
	Success       bool   `json:"success"`
	AlreadyExists bool   `json:"already_exists"`
	Message       string `json:"message"`
}
