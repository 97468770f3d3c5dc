package reconciler

import (
	"slices"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/domain"
)

// Patch is the minimal change that brings the cart's gifts in line with an
// eligibility result.
type Patch struct {
	Remove []domain.CartItem
	Add    []domain.GiftProduct
}

func (p Patch) Empty() bool {
	return len(p.Remove) == 0 && len(p.Add) == 0
}

// Diff compares the gift items in items with the eligible gift products.
// Products already in the cart as regular items are never offered as gifts,
// and gifts present in both sets are kept as they are.
func Diff(items []domain.CartItem, eligible []domain.GiftProduct) Patch {
	regular := make(map[string]bool)
	current := make(map[string]bool)
	for _, item := range items {
		if item.IsGift {
			current[item.Product.ID] = true
		} else {
			regular[item.Product.ID] = true
		}
	}

	expected := make(map[string]bool)
	var patch Patch
	for _, g := range eligible {
		if regular[g.ID] || expected[g.ID] {
			continue
		}
		expected[g.ID] = true
		if !current[g.ID] {
			patch.Add = append(patch.Add, g)
		}
	}

	for _, item := range items {
		if item.IsGift && !expected[item.Product.ID] {
			patch.Remove = append(patch.Remove, item)
		}
	}
	return patch
}

// Apply returns items with the patch applied, in a single new slice.
func (p Patch) Apply(items []domain.CartItem, now time.Time) []domain.CartItem {
	out := slices.DeleteFunc(slices.Clone(items), func(item domain.CartItem) bool {
		return slices.ContainsFunc(p.Remove, func(r domain.CartItem) bool { return r.ID == item.ID })
	})
	for _, g := range p.Add {
		out = append(out, g.AsCartItem(now))
	}
	return out
}

func giftIDs(items []domain.CartItem) []string {
	var ids []string
	for _, item := range items {
		if item.IsGift {
			ids = append(ids, item.Product.ID)
		}
	}
	slices.Sort(ids)
	return ids
}
