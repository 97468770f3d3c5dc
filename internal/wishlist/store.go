// Package wishlist keeps the saved-for-later product list. It shares the
// cart's persistence contract but has no gift handling.
package wishlist

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/domain"
)

const (
	MsgAdded         = "product added to wishlist"
	MsgAlreadyExists = "product is already in the wishlist"
	MsgInvalidItem   = "product id is required"
)

type ItemRepository interface {
	Load(ctx context.Context) []domain.WishlistItem
	Save(ctx context.Context, items []domain.WishlistItem) error
}

type Store struct {
	mu     sync.RWMutex
	items  []domain.WishlistItem
	loaded bool

	repo   ItemRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(repo ItemRepository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:  []domain.WishlistItem{},
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Load reads the saved wishlist once. Entries without a product id and
// repeated products are dropped.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}

	loaded := s.repo.Load(ctx)
	items := make([]domain.WishlistItem, 0, len(loaded))
	for _, item := range loaded {
		if item.Product.ID == "" || slices.ContainsFunc(items, func(x domain.WishlistItem) bool {
			return x.Product.ID == item.Product.ID
		}) {
			continue
		}
		item.ID = domain.WishlistItemID(item.Product.ID)
		items = append(items, item)
	}
	s.items = items
	s.loaded = true
	s.logger.InfoContext(ctx, "wishlist loaded", "items", len(items))
}

// Add is idempotent by product id: adding a product twice leaves one entry.
func (s *Store) Add(ctx context.Context, product domain.ProductSnapshot) domain.AddResult {
	if product.ID == "" {
		return domain.AddResult{Message: MsgInvalidItem}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(product.ID) >= 0 {
		return domain.AddResult{AlreadyExists: true, Message: MsgAlreadyExists}
	}
	item := domain.WishlistItem{
		ID:      domain.WishlistItemID(product.ID),
		Product: product,
		AddedAt: s.now(),
	}
	s.commit(ctx, append(slices.Clone(s.items), item))
	return domain.AddResult{Success: true, Message: MsgAdded}
}

// Remove accepts either the entry id or the product id.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.items, func(item domain.WishlistItem) bool {
		return item.ID == id || item.Product.ID == id
	})
	if idx < 0 {
		return false
	}
	s.commit(ctx, slices.Delete(slices.Clone(s.items), idx, idx+1))
	return true
}

func (s *Store) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(productID) >= 0
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(ctx, []domain.WishlistItem{})
}

func (s *Store) Items() []domain.WishlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) indexOf(productID string) int {
	return slices.IndexFunc(s.items, func(item domain.WishlistItem) bool {
		return item.Product.ID == productID
	})
}

// commit must be called with mu held.
func (s *Store) commit(ctx context.Context, items []domain.WishlistItem) {
	s.items = items
	if !s.loaded {
		return
	}
	if err := s.repo.Save(ctx, items); err != nil {
		s.logger.ErrorContext(ctx, "wishlist save failed", "error", err)
	}
}
