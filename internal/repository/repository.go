package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

var ErrRecordNotFound = errors.New("record not found")

// KVStore is the durable backend behind a ListStore.
// Consumers define this interface, not the concrete backends.
type KVStore interface {
	// Get returns ErrRecordNotFound when nothing was stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites the record stored under key.
	Put(ctx context.Context, key string, value []byte) error
}

// ListStore keeps a whole list of T as one JSON record under a fixed key.
type ListStore[T any] struct {
	kv     KVStore
	key    string
	logger *slog.Logger
}

func NewListStore[T any](kv KVStore, key string, logger *slog.Logger) *ListStore[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListStore[T]{kv: kv, key: key, logger: logger}
}

// Load returns the saved list. A missing, unreadable or corrupt record
// yields an empty list; the failure is logged and never returned.
func (s *ListStore[T]) Load(ctx context.Context) []T {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrRecordNotFound) {
		return []T{}
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "load record failed", "key", s.key, "error", err)
		return []T{}
	}

	var items []T
	if errUnmarshal := json.Unmarshal(data, &items); errUnmarshal != nil {
		s.logger.WarnContext(ctx, "stored record is corrupt, starting empty", "key", s.key, "error", errUnmarshal)
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

func (s *ListStore[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", s.key, err)
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("save %s failed: %w", s.key, err)
	}
	return nil
}

func (s *ListStore[T]) Key() string {
	return s.key
}
