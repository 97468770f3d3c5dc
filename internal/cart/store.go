// Package cart holds the authoritative in-memory cart and mirrors every
// committed change to durable storage.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrStaleProjection = errors.New("cart projection changed since the check was issued")
	ErrInvalidPatch    = errors.New("patch must only change gift items")
)

const (
	MsgAdded         = "item added to cart"
	MsgAlreadyExists = "item is already in the cart"
	MsgGiftRejected  = "gift items cannot be added directly"
	MsgProductIsGift = "product is already in the cart as a gift"
	MsgInvalidItem   = "product id is required"
)

// ItemRepository is the persistence adapter the store mirrors to.
type ItemRepository interface {
	Load(ctx context.Context) []domain.CartItem
	Save(ctx context.Context, items []domain.CartItem) error
}

// PatchFunc receives a copy of the current items and returns the replacement
// list. Returning false leaves the cart untouched.
type PatchFunc func(items []domain.CartItem) ([]domain.CartItem, bool)

type Store struct {
	mu     sync.RWMutex
	items  []domain.CartItem
	loaded bool

	repo   ItemRepository
	logger *slog.Logger
	now    func() time.Time

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func NewStore(repo ItemRepository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:  []domain.CartItem{},
		repo:   repo,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan struct{}),
	}
}

// Load replaces the in-memory cart with the durable one. Only the first call
// has an effect; saves are suppressed until it has run.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	if len(s.items) > 0 {
		s.logger.WarnContext(ctx, "discarding cart changes made before initial load", "items", len(s.items))
	}
	s.items = normalize(s.repo.Load(ctx))
	s.loaded = true
	n := len(s.items)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "cart loaded", "items", n)
	s.notify()
}

func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Store) Add(ctx context.Context, item domain.CartItem) domain.AddResult {
	if item.IsGift {
		return domain.AddResult{Message: MsgGiftRejected}
	}
	if item.Product.ID == "" {
		return domain.AddResult{Message: MsgInvalidItem}
	}

	s.mu.Lock()
	for _, existing := range s.items {
		if existing.IsGift && existing.Product.ID == item.Product.ID {
			s.mu.Unlock()
			return domain.AddResult{Message: MsgProductIsGift}
		}
		if !existing.IsGift && existing.SameVariant(item) {
			s.mu.Unlock()
			return domain.AddResult{AlreadyExists: true, Message: MsgAlreadyExists}
		}
	}

	item.ID = domain.ItemID(item.Product.ID, item.SelectedSize, item.SelectedColor)
	item.Quantity = max(item.Quantity, 1)
	if item.AddedAt.IsZero() {
		item.AddedAt = s.now()
	}
	s.commit(ctx, append(slices.Clone(s.items), item))
	s.mu.Unlock()

	s.notify()
	return domain.AddResult{Success: true, Message: MsgAdded}
}

// Remove deletes a non-gift item by storage key. It reports whether anything
// was removed; unknown ids and gift items are left alone.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 || s.items[idx].IsGift {
		s.mu.Unlock()
		return false
	}
	s.commit(ctx, slices.Delete(slices.Clone(s.items), idx, idx+1))
	s.mu.Unlock()

	s.notify()
	return true
}

// UpdateQuantity sets the quantity of a non-gift item, clamped to at least 1.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) bool {
	quantity = max(quantity, 1)

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 || s.items[idx].IsGift {
		s.mu.Unlock()
		return false
	}
	if s.items[idx].Quantity == quantity {
		s.mu.Unlock()
		return true
	}
	next := slices.Clone(s.items)
	next[idx].Quantity = quantity
	s.commit(ctx, next)
	s.mu.Unlock()

	s.notify()
	return true
}

// Clear empties the cart, gifts included.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.commit(ctx, []domain.CartItem{})
	s.mu.Unlock()

	s.notify()
}

// Patch atomically replaces the item list if the non-gift projection still
// equals expected. The replacement may not change the non-gift subset.
func (s *Store) Patch(ctx context.Context, expected domain.Projection, fn PatchFunc) (bool, error) {
	s.mu.Lock()
	if !domain.ProjectionOf(s.items).Equal(expected) {
		s.mu.Unlock()
		return false, ErrStaleProjection
	}
	next, changed := fn(slices.Clone(s.items))
	if !changed {
		s.mu.Unlock()
		return false, nil
	}
	if !sameNonGift(s.items, next) {
		s.mu.Unlock()
		return false, ErrInvalidPatch
	}
	s.commit(ctx, next)
	s.mu.Unlock()

	s.notify()
	return true, nil
}

func (s *Store) Items() []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Count is the sum of quantities over all items, gifts included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, item := range s.items {
		n += item.Quantity
	}
	return n
}

// Total is the sum of price*quantity over non-gift items.
func (s *Store) Total() decimal.Decimal {
	return s.Projection().Total
}

func (s *Store) Projection() domain.Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ProjectionOf(s.items)
}

// Subscribe returns a channel that receives a signal after each committed
// change. Signals coalesce: a slow reader sees one pending signal, not many.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// commit must be called with mu held.
func (s *Store) commit(ctx context.Context, items []domain.CartItem) {
	s.items = items
	if !s.loaded {
		return
	}
	if err := s.repo.Save(ctx, items); err != nil {
		s.logger.ErrorContext(ctx, "cart save failed", "error", err)
	}
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(item domain.CartItem) bool {
		return item.ID == id
	})
}

func sameNonGift(a, b []domain.CartItem) bool {
	filter := func(items []domain.CartItem) []domain.CartItem {
		out := make([]domain.CartItem, 0, len(items))
		for _, item := range items {
			if !item.IsGift {
				out = append(out, item)
			}
		}
		return out
	}
	fa, fb := filter(a), filter(b)
	return slices.EqualFunc(fa, fb, func(x, y domain.CartItem) bool {
		return x.ID == y.ID && x.Quantity == y.Quantity && x.Product.Price.Equal(y.Product.Price)
	})
}

// normalize restores the item invariants on a list read from storage.
func normalize(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	nonGift := make(map[string]bool)
	for _, item := range items {
		if item.IsGift || item.Product.ID == "" {
			continue
		}
		if slices.ContainsFunc(out, item.SameVariant) {
			continue
		}
		item.Quantity = max(item.Quantity, 1)
		if item.ID == "" {
			item.ID = domain.ItemID(item.Product.ID, item.SelectedSize, item.SelectedColor)
		}
		nonGift[item.Product.ID] = true
		out = append(out, item)
	}
	seenGift := make(map[string]bool)
	for _, item := range items {
		if !item.IsGift || nonGift[item.Product.ID] || seenGift[item.Product.ID] {
			continue
		}
		seenGift[item.Product.ID] = true
		if !item.Product.Price.IsZero() && item.Product.OriginalPrice == nil {
			original := item.Product.Price
			item.Product.OriginalPrice = &original
		}
		item.Product.Price = decimal.Zero
		item.Quantity = 1
		if item.ID == "" {
			item.ID = domain.GiftItemID(item.Product.ID)
		}
		out = append(out, item)
	}
	return out
}
