// Package reconciler keeps the cart's gift items in sync with the external
// eligibility evaluator.
//
// The reconciler watches the non-gift projection of the cart (total and item
// count over regular items). Its own writes only touch gift items, so they
// never change the projection and never retrigger a check. A check runs after
// a quiet period, at most one is in flight, and a result computed for a cart
// that has since changed is dropped.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/cart"
	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/shopspring/decimal"
)

const DefaultDebounce = 500 * time.Millisecond

type CartStore interface {
	Items() []domain.CartItem
	Patch(ctx context.Context, expected domain.Projection, fn cart.PatchFunc) (bool, error)
	Subscribe() (<-chan struct{}, func())
}

type Checker interface {
	Check(ctx context.Context, total decimal.Decimal, count int) (*domain.Eligibility, error)
}

type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeUnchanged
	OutcomeStale
	OutcomeFailed
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeStale:
		return "stale"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

type Stats struct {
	Cycles    uint64 `json:"cycles"`
	Applied   uint64 `json:"applied"`
	Unchanged uint64 `json:"unchanged"`
	Stale     uint64 `json:"stale"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// acted is what the last successfully reconciled cycle saw and left behind.
type acted struct {
	projection domain.Projection
	gifts      []string
}

type Reconciler struct {
	store    CartStore
	checker  Checker
	debounce time.Duration
	logger   *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool
	rearm    chan struct{}
	force    chan struct{}
	wg       sync.WaitGroup

	mu   sync.Mutex
	last *acted

	cycles, applied, unchanged, stale, failed, dropped atomic.Uint64
}

func New(store CartStore, checker Checker, debounce time.Duration, logger *slog.Logger) *Reconciler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		checker:  checker,
		debounce: debounce,
		logger:   logger,
		now:      time.Now,
		rearm:    make(chan struct{}, 1),
		force:    make(chan struct{}, 1),
	}
}

// Run watches the cart until ctx is cancelled, then waits for the cycle in
// flight to finish.
func (r *Reconciler) Run(ctx context.Context) error {
	changes, unsubscribe := r.store.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(r.debounce)
	timer.Stop()
	defer timer.Stop()

	forced := false
	if r.due() {
		timer.Reset(r.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return nil

		case <-changes:
			if !r.due() {
				continue
			}
			if r.inFlight.Load() {
				// picked up again when the running cycle completes
				r.dropped.Add(1)
				continue
			}
			timer.Reset(r.debounce)

		case <-r.rearm:
			timer.Reset(r.debounce)

		case <-r.force:
			forced = true
			timer.Reset(r.debounce)

		case <-timer.C:
			if !forced && !r.due() {
				continue
			}
			if !r.inFlight.CompareAndSwap(false, true) {
				r.dropped.Add(1)
				if forced {
					timer.Reset(r.debounce)
				}
				continue
			}
			forced = false
			p := domain.ProjectionOf(r.store.Items())
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.cycle(ctx, p)
			}()
		}
	}
}

// RunOnce performs a single cycle immediately, without debouncing. It returns
// OutcomeDropped when another cycle is in flight.
func (r *Reconciler) RunOnce(ctx context.Context) Outcome {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.dropped.Add(1)
		return OutcomeDropped
	}
	return r.cycle(ctx, domain.ProjectionOf(r.store.Items()))
}

// Trigger requests a check after the debounce period even if the cart did
// not change.
func (r *Reconciler) Trigger() {
	select {
	case r.force <- struct{}{}:
	default:
	}
}

func (r *Reconciler) Stats() Stats {
	return Stats{
		Cycles:    r.cycles.Load(),
		Applied:   r.applied.Load(),
		Unchanged: r.unchanged.Load(),
		Stale:     r.stale.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// cycle must be entered with inFlight set; it clears it before returning.
func (r *Reconciler) cycle(ctx context.Context, p domain.Projection) Outcome {
	r.cycles.Add(1)
	outcome := r.reconcile(ctx, p)
	r.inFlight.Store(false)

	switch outcome {
	case OutcomeApplied, OutcomeUnchanged:
		if r.due() {
			r.requestRearm()
		}
	case OutcomeStale:
		r.requestRearm()
	case OutcomeFailed:
		// retry only if the cart moved while the request was out
		if !domain.ProjectionOf(r.store.Items()).Equal(p) {
			r.requestRearm()
		}
	}
	return outcome
}

func (r *Reconciler) reconcile(ctx context.Context, p domain.Projection) Outcome {
	res, err := r.checker.Check(ctx, p.Total, p.Count)
	if err != nil {
		r.failed.Add(1)
		r.logger.WarnContext(ctx, "gift eligibility check failed, keeping current gifts",
			"cart_total", p.Total.String(), "item_count", p.Count, "error", err)
		return OutcomeFailed
	}

	var eligible []domain.GiftProduct
	if res.Eligible {
		eligible = res.GiftProducts
	}

	var patch Patch
	var result []domain.CartItem
	changed, err := r.store.Patch(ctx, p, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		patch = Diff(items, eligible)
		if patch.Empty() {
			result = items
			return items, false
		}
		result = patch.Apply(items, r.now())
		return result, true
	})
	if errors.Is(err, cart.ErrStaleProjection) {
		r.stale.Add(1)
		r.logger.DebugContext(ctx, "discarding stale eligibility result",
			"cart_total", p.Total.String(), "item_count", p.Count)
		return OutcomeStale
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.ErrorContext(ctx, "applying gift patch failed", "error", err)
		return OutcomeFailed
	}

	r.mu.Lock()
	r.last = &acted{projection: p, gifts: giftIDs(result)}
	r.mu.Unlock()

	if !changed {
		r.unchanged.Add(1)
		return OutcomeUnchanged
	}

	r.applied.Add(1)
	added := make([]string, 0, len(patch.Add))
	for _, g := range patch.Add {
		added = append(added, g.ID)
	}
	removed := make([]string, 0, len(patch.Remove))
	for _, item := range patch.Remove {
		removed = append(removed, item.Product.ID)
	}
	r.logger.InfoContext(ctx, "gift items reconciled",
		"cart_total", p.Total.String(), "item_count", p.Count, "added", added, "removed", removed)
	return OutcomeApplied
}

// due reports whether the cart has moved away from what the last reconciled
// cycle acted on.
func (r *Reconciler) due() bool {
	items := r.store.Items()
	p := domain.ProjectionOf(items)
	gifts := giftIDs(items)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return true
	}
	return !r.last.projection.Equal(p) || !slices.Equal(r.last.gifts, gifts)
}

func (r *Reconciler) requestRearm() {
	select {
	case r.rearm <- struct{}{}:
	default:
	}
}
