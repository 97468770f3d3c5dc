package cart

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	m     sync.RWMutex
	items []domain.CartItem
	saves int
	err   error
}

func (m *mockRepository) Load(context.Context) []domain.CartItem {
	m.m.RLock()
	defer m.m.RUnlock()
	return append([]domain.CartItem(nil), m.items...)
}

func (m *mockRepository) Save(_ context.Context, items []domain.CartItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.items = append([]domain.CartItem(nil), items...)
	return nil
}

func (m *mockRepository) saved() ([]domain.CartItem, int) {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.items, m.saves
}

func product(id string, price int64) domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: id, Name: "Product " + id, Price: decimal.NewFromInt(price), InStock: true}
}

func newLoadedStore(t *testing.T, repo *mockRepository) *Store {
	t.Helper()
	if repo == nil {
		repo = &mockRepository{}
	}
	s := NewStore(repo, nil)
	s.Load(context.Background())
	return s
}

// giveGift injects a gift the way the reconciler does.
func giveGift(t *testing.T, s *Store, g domain.GiftProduct) {
	t.Helper()
	changed, err := s.Patch(context.Background(), s.Projection(), func(items []domain.CartItem) ([]domain.CartItem, bool) {
		return append(items, g.AsCartItem(time.Now())), true
	})
	require.NoError(t, err)
	require.True(t, changed)
}

func TestAdd_DuplicateReportsAlreadyExists(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()

	res := s.Add(ctx, domain.CartItem{Product: product("P1", 10000), Quantity: 1})
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyExists)
	assert.True(t, s.Total().Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 1, s.Count())

	res = s.Add(ctx, domain.CartItem{Product: product("P1", 10000), Quantity: 1})
	assert.False(t, res.Success)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, MsgAlreadyExists, res.Message)
	assert.Equal(t, 1, s.Count())
}

func TestAdd_DifferentVariantsAreDistinct(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()

	assert.True(t, s.Add(ctx, domain.CartItem{Product: product("P1", 100), SelectedSize: "M"}).Success)
	assert.True(t, s.Add(ctx, domain.CartItem{Product: product("P1", 100), SelectedSize: "L"}).Success)
	assert.True(t, s.Add(ctx, domain.CartItem{Product: product("P1", 100), SelectedSize: "L", SelectedColor: "red"}).Success)
	assert.Len(t, s.Items(), 3)
}

func TestAdd_NeverDuplicatesVariants(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	sizes := []string{"", "S", "M"}
	colors := []string{"", "red"}

	for i := 0; i < 500; i++ {
		s.Add(ctx, domain.CartItem{
			Product:       product(fmt.Sprintf("P%d", rng.Intn(4)), 10),
			Quantity:      rng.Intn(3),
			SelectedSize:  sizes[rng.Intn(len(sizes))],
			SelectedColor: colors[rng.Intn(len(colors))],
		})
	}

	items := s.Items()
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			assert.False(t, items[i].SameVariant(items[j]), "duplicate variant %+v", items[i])
		}
		assert.GreaterOrEqual(t, items[i].Quantity, 1)
	}
	assert.Len(t, items, 4*len(sizes)*len(colors))
}

func TestAdd_RejectsGift(t *testing.T) {
	repo := &mockRepository{}
	s := newLoadedStore(t, repo)

	res := s.Add(context.Background(), domain.CartItem{Product: product("G1", 0), IsGift: true})
	assert.False(t, res.Success)
	assert.False(t, res.AlreadyExists)
	assert.Equal(t, MsgGiftRejected, res.Message)
	assert.Empty(t, s.Items())
	_, saves := repo.saved()
	assert.Equal(t, 0, saves)
}

func TestAdd_RejectsProductPresentAsGift(t *testing.T) {
	s := newLoadedStore(t, nil)
	giveGift(t, s, domain.GiftProduct{ID: "G1", Price: decimal.NewFromInt(5000)})

	res := s.Add(context.Background(), domain.CartItem{Product: product("G1", 5000)})
	assert.False(t, res.Success)
	assert.Equal(t, MsgProductIsGift, res.Message)
	assert.Len(t, s.Items(), 1)
}

func TestAdd_RequiresProductID(t *testing.T) {
	s := newLoadedStore(t, nil)

	res := s.Add(context.Background(), domain.CartItem{Quantity: 1})
	assert.False(t, res.Success)
	assert.Equal(t, MsgInvalidItem, res.Message)
}

func TestAdd_AssignsDeterministicIDAndDefaults(t *testing.T) {
	s := newLoadedStore(t, nil)
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Add(context.Background(), domain.CartItem{ID: "caller-chosen", Product: product("P1", 10), SelectedColor: "blue", Quantity: -3})

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.ItemID("P1", "", "blue"), items[0].ID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, fixed, items[0].AddedAt)
}

func TestUpdateQuantity_ClampsToOne(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	s.Add(ctx, domain.CartItem{Product: product("P1", 10), Quantity: 4})
	id := s.Items()[0].ID

	assert.True(t, s.UpdateQuantity(ctx, id, 0))
	assert.Equal(t, 1, s.Items()[0].Quantity)

	assert.True(t, s.UpdateQuantity(ctx, id, 7))
	assert.Equal(t, 7, s.Items()[0].Quantity)

	assert.True(t, s.UpdateQuantity(ctx, id, -5))
	assert.Len(t, s.Items(), 1)
	assert.Equal(t, 1, s.Items()[0].Quantity)
}

func TestUpdateQuantity_UnknownAndGift(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	giveGift(t, s, domain.GiftProduct{ID: "G1", Price: decimal.NewFromInt(5000)})

	assert.False(t, s.UpdateQuantity(ctx, "missing", 3))
	assert.False(t, s.UpdateQuantity(ctx, domain.GiftItemID("G1"), 3))

	gift := s.Items()[0]
	assert.Equal(t, 1, gift.Quantity)
	assert.True(t, gift.Product.Price.IsZero())
}

func TestRemove(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	s.Add(ctx, domain.CartItem{Product: product("P1", 10)})
	s.Add(ctx, domain.CartItem{Product: product("P2", 20)})
	giveGift(t, s, domain.GiftProduct{ID: "G1", Price: decimal.NewFromInt(5000)})

	assert.True(t, s.Remove(ctx, domain.ItemID("P1", "", "")))
	assert.False(t, s.Remove(ctx, domain.ItemID("P1", "", "")), "second remove is a no-op")
	assert.False(t, s.Remove(ctx, domain.GiftItemID("G1")), "gifts are not caller-removable")

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "P2", items[0].Product.ID)
	assert.True(t, items[1].IsGift)
}

func TestClear_RemovesGifts(t *testing.T) {
	repo := &mockRepository{}
	s := newLoadedStore(t, repo)
	ctx := context.Background()
	s.Add(ctx, domain.CartItem{Product: product("P1", 10)})
	giveGift(t, s, domain.GiftProduct{ID: "G1", Price: decimal.NewFromInt(5000)})

	s.Clear(ctx)
	assert.Empty(t, s.Items())
	assert.Equal(t, 0, s.Count())
	saved, _ := repo.saved()
	assert.Empty(t, saved)
}

func TestCountAndTotal_GiftsDoNotCountTowardTotal(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	s.Add(ctx, domain.CartItem{Product: product("P1", 20000), Quantity: 2})
	s.Add(ctx, domain.CartItem{Product: product("P2", 10000), Quantity: 1})
	giveGift(t, s, domain.GiftProduct{ID: "G1", Price: decimal.NewFromInt(5000)})

	assert.True(t, s.Total().Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, 4, s.Count())
	p := s.Projection()
	assert.Equal(t, 3, p.Count)
	assert.True(t, p.Total.Equal(decimal.NewFromInt(50000)))
}

func TestPersistence_SuppressedUntilLoaded(t *testing.T) {
	repo := &mockRepository{items: []domain.CartItem{
		{ID: domain.ItemID("P9", "", ""), Product: product("P9", 90), Quantity: 2},
	}}
	s := NewStore(repo, nil)
	ctx := context.Background()

	s.Add(ctx, domain.CartItem{Product: product("P1", 10)})
	saved, saves := repo.saved()
	assert.Equal(t, 0, saves, "no save before initial load")
	require.Len(t, saved, 1)

	s.Load(ctx)
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P9", items[0].Product.ID)

	s.Add(ctx, domain.CartItem{Product: product("P2", 20)})
	saved, saves = repo.saved()
	assert.Equal(t, 1, saves)
	assert.Len(t, saved, 2)

	// later loads are no-ops
	s.Load(ctx)
	assert.Len(t, s.Items(), 2)
}

func TestPersistence_SaveErrorIsNotSurfaced(t *testing.T) {
	repo := &mockRepository{err: fmt.Errorf("disk full")}
	s := newLoadedStore(t, repo)

	res := s.Add(context.Background(), domain.CartItem{Product: product("P1", 10)})
	assert.True(t, res.Success)
	assert.Len(t, s.Items(), 1)
}

func TestLoad_RestoresInvariants(t *testing.T) {
	five := decimal.NewFromInt(5000)
	repo := &mockRepository{items: []domain.CartItem{
		{Product: product("P1", 10), Quantity: 0},
		{Product: product("P1", 10), Quantity: 3},
		{Product: product("P2", 10), Quantity: 1},
		{Product: product("P2", 10), Quantity: 1, IsGift: true},
		{Product: domain.ProductSnapshot{ID: "G1", Price: five}, Quantity: 4, IsGift: true},
		{Product: domain.ProductSnapshot{ID: "G1"}, Quantity: 1, IsGift: true},
	}}
	s := newLoadedStore(t, repo)

	items := s.Items()
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, domain.ItemID("P1", "", ""), items[0].ID)
	assert.Equal(t, "P2", items[1].Product.ID)
	assert.False(t, items[1].IsGift)

	gift := items[2]
	assert.True(t, gift.IsGift)
	assert.Equal(t, domain.GiftItemID("G1"), gift.ID)
	assert.True(t, gift.Product.Price.IsZero())
	require.NotNil(t, gift.Product.OriginalPrice)
	assert.True(t, gift.Product.OriginalPrice.Equal(five))
	assert.Equal(t, 1, gift.Quantity)
}

func TestPatch_StaleProjection(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	before := s.Projection()
	s.Add(ctx, domain.CartItem{Product: product("P1", 10)})

	called := false
	changed, err := s.Patch(ctx, before, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		called = true
		return items, true
	})
	assert.ErrorIs(t, err, ErrStaleProjection)
	assert.False(t, changed)
	assert.False(t, called)
}

func TestPatch_RejectsNonGiftChanges(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	s.Add(ctx, domain.CartItem{Product: product("P1", 10)})

	changed, err := s.Patch(ctx, s.Projection(), func(items []domain.CartItem) ([]domain.CartItem, bool) {
		items[0].Quantity = 9
		return items, true
	})
	assert.ErrorIs(t, err, ErrInvalidPatch)
	assert.False(t, changed)
	assert.Equal(t, 1, s.Items()[0].Quantity)
}

func TestPatch_NoChange(t *testing.T) {
	repo := &mockRepository{}
	s := newLoadedStore(t, repo)

	changed, err := s.Patch(context.Background(), s.Projection(), func(items []domain.CartItem) ([]domain.CartItem, bool) {
		return items, false
	})
	require.NoError(t, err)
	assert.False(t, changed)
	_, saves := repo.saved()
	assert.Equal(t, 0, saves)
}

func TestSubscribe_SignalsAndCoalesces(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()
	ch, unsubscribe := s.Subscribe()

	s.Add(ctx, domain.CartItem{Product: product("P1", 10)})
	s.Add(ctx, domain.CartItem{Product: product("P2", 10)})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}

	unsubscribe()
	s.Clear(ctx)
	select {
	case <-ch:
		t.Fatal("unsubscribed channel got a signal")
	default:
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := newLoadedStore(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(ctx, domain.CartItem{Product: product(fmt.Sprintf("P%d", i%5), 10)})
			_ = s.Total()
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Items(), 5)
}
