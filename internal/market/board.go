package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
)

const (
	minTickInterval = 3 * time.Second
	maxTickInterval = 8 * time.Second
)

// Publisher receives every fresh sample. Implementations must tolerate being
// called from ticker goroutines; failures are logged and dropped, never
// retried.
type Publisher interface {
	Publish(ctx context.Context, s Sample) error
}

// NopPublisher discards samples.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Sample) error { return nil }

type itemState struct {
	base    catalog.Item
	price   int64
	trend   Trend
	movedAt time.Time
	cancel  context.CancelFunc
}

// Board owns one jittered ticker per tracked item. Tracking an item starts
// its walk from the base price; untracking cancels the ticker and discards
// all state, so re-tracking restarts from scratch.
type Board struct {
	walker *Walker
	rand   Rand
	pub    Publisher
	log    *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	items  map[string]*itemState
	closed bool
}

func NewBoard(r Rand, pub Publisher, logger *slog.Logger) *Board {
	if pub == nil {
		pub = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		walker: NewWalker(r),
		rand:   r,
		pub:    pub,
		log:    logger,
		now:    time.Now,
		items:  make(map[string]*itemState),
	}
}

// Track starts the price walk for an item and returns a cancel handle. The
// handle stops the ticker and drops the item's state; it is safe to call more
// than once. Tracking an already-tracked item is a no-op returning the same
// effect as the original handle.
func (b *Board) Track(item catalog.Item) (cancel func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	if _, ok := b.items[item.ID]; ok {
		b.mu.Unlock()
		return func() { b.untrack(item.ID) }
	}
	ctx, stop := context.WithCancel(context.Background())
	b.items[item.ID] = &itemState{
		base:   item,
		price:  item.BasePriceMicros,
		trend:  TrendStable,
		cancel: stop,
	}
	b.mu.Unlock()

	go b.run(ctx, item.ID)
	return func() { b.untrack(item.ID) }
}

func (b *Board) untrack(itemID string) {
	b.mu.Lock()
	st, ok := b.items[itemID]
	if ok {
		delete(b.items, itemID)
	}
	b.mu.Unlock()
	if ok {
		st.cancel()
	}
}

// Close cancels every ticker. The board refuses new tracking afterwards.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	states := make([]*itemState, 0, len(b.items))
	for id, st := range b.items {
		states = append(states, st)
		delete(b.items, id)
	}
	b.mu.Unlock()
	for _, st := range states {
		st.cancel()
	}
}

// Snapshot returns the current sample for a tracked item. The trend decays to
// stable once TrendWindow has passed since the last actual move.
func (b *Board) Snapshot(itemID string) (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.items[itemID]
	if !ok {
		return Sample{}, false
	}
	return b.sampleLocked(itemID, st), true
}

func (b *Board) sampleLocked(itemID string, st *itemState) Sample {
	trend := st.trend
	if trend != TrendStable && b.now().Sub(st.movedAt) > TrendWindow {
		trend = TrendStable
	}
	return Sample{
		ItemID:      itemID,
		PriceMicros: st.price,
		Trend:       trend,
		At:          b.now(),
	}
}

func (b *Board) run(ctx context.Context, itemID string) {
	for {
		timer := time.NewTimer(b.jitter())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		sample, ok := b.step(itemID)
		if !ok {
			// Untracked between timer fire and step; stop quietly.
			return
		}
		if err := b.pub.Publish(ctx, sample); err != nil && ctx.Err() == nil {
			b.log.Debug("price publish failed", "item", itemID, "err", err)
		}
	}
}

// step advances one item's walk and returns the resulting sample.
func (b *Board) step(itemID string) (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.items[itemID]
	if !ok {
		return Sample{}, false
	}
	next, trend := b.walker.Tick(st.base.BasePriceMicros, st.price)
	st.price = next
	if trend != TrendStable {
		st.trend = trend
		st.movedAt = b.now()
	}
	return b.sampleLocked(itemID, st), true
}

func (b *Board) jitter() time.Duration {
	span := int64(maxTickInterval - minTickInterval)
	return minTickInterval + time.Duration(b.rand.Int63n(span+1))
}
