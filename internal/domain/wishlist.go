package domain

import (
	"time"

	"github.com/google/uuid"
)

type WishlistItem struct {
	ID      string          `json:"id"`
	Product ProductSnapshot `json:"product"`
	AddedAt time.Time       `json:"added_at"`
}

func WishlistItemID(productID string) string {
	return uuid.NewSHA1(itemNamespace, []byte("wish\x00"+productID)).String()
}
