package repository

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Put(context.Context, string, []byte) error   { return f.err }

func TestListStore_LoadMissingIsEmpty(t *testing.T) {
	list := NewListStore[domain.CartItem](NewMemoryStore(), "cart", nil)

	items := list.Load(context.Background())
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestListStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	list := NewListStore[domain.CartItem](NewMemoryStore(), "cart", nil)

	added := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []domain.CartItem{{
		ID:       domain.ItemID("p1", "M", ""),
		Product:  domain.ProductSnapshot{ID: "p1", Name: "Shirt", Price: decimal.RequireFromString("199.90")},
		Quantity: 2,
		AddedAt:  added,
	}}
	require.NoError(t, list.Save(ctx, in))

	out := list.Load(ctx)
	require.Len(t, out, 1)
	assert.Equal(t, in[0].ID, out[0].ID)
	assert.True(t, out[0].Product.Price.Equal(in[0].Product.Price))
	assert.Equal(t, 2, out[0].Quantity)
	assert.True(t, added.Equal(out[0].AddedAt))
}

func TestListStore_CorruptRecordIsEmptyAndLogged(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	require.NoError(t, kv.Put(ctx, "cart", []byte(`[{"id": "a", "quant`)))

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	list := NewListStore[domain.CartItem](kv, "cart", logger)

	items := list.Load(ctx)
	assert.Empty(t, items)
	assert.Contains(t, buf.String(), "stored record is corrupt")
}

func TestListStore_BackendErrorIsEmpty(t *testing.T) {
	list := NewListStore[domain.CartItem](failingKV{err: errors.New("connection refused")}, "cart", nil)

	assert.Empty(t, list.Load(context.Background()))
}

func TestListStore_SaveWrapsBackendError(t *testing.T) {
	list := NewListStore[domain.CartItem](failingKV{err: errors.New("connection refused")}, "cart", nil)

	err := list.Save(context.Background(), nil)
	require.ErrorContains(t, err, "save cart failed")
	require.ErrorContains(t, err, "connection refused")
}

func TestListStore_SaveNilWritesEmptyArray(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	list := NewListStore[domain.CartItem](kv, "cart", nil)

	require.NoError(t, list.Save(ctx, nil))
	data, err := kv.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
