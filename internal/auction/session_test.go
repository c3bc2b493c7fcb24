package auction

import (
	"context"
	"errors"
	"testing"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
)

type scriptRand struct {
	floats []float64
	ints   []int64
	fi, ii int
}

func (s *scriptRand) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[s.fi%len(s.floats)]
	s.fi++
	return v
}

func (s *scriptRand) Int63n(n int64) int64 {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[s.ii%len(s.ints)]
	s.ii++
	return v % n
}

func testItem() catalog.Item {
	return catalog.Item{
		ID:              "item-9",
		Title:           "The Great Wave off Kanagawa",
		BasePriceMicros: 100 * ledger.MicrosPerCredit,
	}
}

func testStore(balanceCredits int64) *ledger.MemStore {
	s := ledger.NewMemStore()
	s.Seed(ledger.Ledger{
		UserID:        "user-1",
		BalanceMicros: balanceCredits * ledger.MicrosPerCredit,
		Tier:          ledger.TierGuest,
	})
	return s
}

func TestCompetitorBidsAreMonotonic(t *testing.T) {
	r := &scriptRand{
		floats: []float64{0.0}, // gate always passes
		ints:   []int64{40_000_000, 0, 5_000_000, 2, 25_000_000, 4},
	}
	s := newSession("user-1", testItem(), testStore(10_000), r, nil)

	prev := s.Snapshot().CurrentBidMicros
	for i := 0; i < 30; i++ {
		s.CompetitorBid()
		snap := s.Snapshot()
		if snap.CurrentBidMicros < prev {
			t.Fatalf("currentBid regressed: %d -> %d", prev, snap.CurrentBidMicros)
		}
		prev = snap.CurrentBidMicros
	}
	snap := s.Snapshot()
	for i := 1; i < len(snap.Bids); i++ {
		if snap.Bids[i].AmountMicros < snap.Bids[i-1].AmountMicros {
			t.Fatalf("bid history not non-decreasing at %d", i)
		}
	}
}

func TestUserBidRejectedOnInsufficientFunds(t *testing.T) {
	// Competitors push the price to 180; the user holds 150 and would need
	// 230 for the next step.
	r := &scriptRand{
		floats: []float64{0.0},
		ints:   []int64{40_000_000, 0, 20_000_000, 0},
	}
	s := newSession("user-1", testItem(), testStore(150), r, nil)
	s.CompetitorBid()
	s.CompetitorBid()

	snap := s.Snapshot()
	if snap.CurrentBidMicros != 180*ledger.MicrosPerCredit {
		t.Fatalf("setup: currentBid = %d, want 180 credits", snap.CurrentBidMicros)
	}

	_, err := s.PlaceBid(context.Background())
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	snap = s.Snapshot()
	if snap.CurrentBidMicros != 180*ledger.MicrosPerCredit {
		t.Fatalf("rejected bid changed currentBid to %d", snap.CurrentBidMicros)
	}
	if snap.Status != StatusActive {
		t.Fatalf("rejected bid ended the auction: %s", snap.Status)
	}
}

func TestUserBidAppends(t *testing.T) {
	s := newSession("user-1", testItem(), testStore(1_000), &scriptRand{}, nil)
	snap, err := s.PlaceBid(context.Background())
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if snap.CurrentBidMicros != 150*ledger.MicrosPerCredit {
		t.Fatalf("currentBid = %d, want base + 50 credits", snap.CurrentBidMicros)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Bidder != UserBidder {
		t.Fatalf("bid history = %+v", snap.Bids)
	}
}

func TestEmptyHistorySettlesLost(t *testing.T) {
	store := testStore(1_000)
	s := newSession("user-1", testItem(), store, &scriptRand{floats: []float64{0.99}}, nil)

	ctx := context.Background()
	terminal := false
	for i := 0; i < InitialSeconds; i++ {
		terminal = s.Tick(ctx)
	}
	if !terminal {
		t.Fatalf("countdown exhausted without settlement")
	}
	snap := s.Snapshot()
	if snap.Status != StatusLost {
		t.Fatalf("status = %s, want lost", snap.Status)
	}
	led, _ := store.GetUser(ctx, "user-1")
	if led.BalanceMicros != 1_000*ledger.MicrosPerCredit || len(led.InventoryIDs) != 0 {
		t.Fatalf("ledger mutated by a lost auction: %+v", led)
	}
}

func TestUserWinSettlesAsPurchase(t *testing.T) {
	store := testStore(1_000)
	s := newSession("user-1", testItem(), store, &scriptRand{floats: []float64{0.99}}, nil)
	ctx := context.Background()

	if _, err := s.PlaceBid(ctx); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	for !s.Tick(ctx) {
	}
	snap := s.Snapshot()
	if snap.Status != StatusWon {
		t.Fatalf("status = %s, want won", snap.Status)
	}
	led, _ := store.GetUser(ctx, "user-1")
	want := (1_000 - 150) * ledger.MicrosPerCredit
	if led.BalanceMicros != want {
		t.Fatalf("balance = %d, want %d", led.BalanceMicros, want)
	}
	if !led.Owns("item-9") {
		t.Fatalf("won item missing from inventory: %v", led.InventoryIDs)
	}
}

func TestSettlementInsufficientFundsBecomesLoss(t *testing.T) {
	store := testStore(200)
	s := newSession("user-1", testItem(), store, &scriptRand{floats: []float64{0.99}}, nil)
	ctx := context.Background()

	if _, err := s.PlaceBid(ctx); err != nil {
		t.Fatalf("place bid at 150: %v", err)
	}
	// Balance drops between the last bid and settlement.
	if _, err := store.Credit(ctx, "user-1", -180*ledger.MicrosPerCredit); err != nil {
		t.Fatalf("drain balance: %v", err)
	}
	for !s.Tick(ctx) {
	}
	snap := s.Snapshot()
	if snap.Status != StatusLost {
		t.Fatalf("status = %s, want lost on settlement-time shortfall", snap.Status)
	}
	led, _ := store.GetUser(ctx, "user-1")
	if led.BalanceMicros != 20*ledger.MicrosPerCredit || len(led.InventoryIDs) != 0 {
		t.Fatalf("failed settlement mutated the ledger: %+v", led)
	}
}

func TestCompetitorQuietWindow(t *testing.T) {
	r := &scriptRand{floats: []float64{0.0}, ints: []int64{40_000_000, 0}}
	s := newSession("user-1", testItem(), testStore(1_000), r, nil)
	s.mu.Lock()
	s.remaining = competitorQuietSeconds
	s.mu.Unlock()

	s.CompetitorBid()
	snap := s.Snapshot()
	if len(snap.Bids) != 0 {
		t.Fatalf("competitor bid inside the quiet window")
	}
}

func TestCompetitorProbabilityGate(t *testing.T) {
	r := &scriptRand{floats: []float64{0.99}}
	s := newSession("user-1", testItem(), testStore(1_000), r, nil)
	for i := 0; i < 10; i++ {
		s.CompetitorBid()
	}
	if got := len(s.Snapshot().Bids); got != 0 {
		t.Fatalf("gated competitor placed %d bids", got)
	}
}

func TestBidAfterTerminalRejected(t *testing.T) {
	s := newSession("user-1", testItem(), testStore(1_000), &scriptRand{floats: []float64{0.99}}, nil)
	ctx := context.Background()
	for !s.Tick(ctx) {
	}
	if _, err := s.PlaceBid(ctx); !errors.Is(err, ErrAuctionEnded) {
		t.Fatalf("err = %v, want ErrAuctionEnded", err)
	}
	before := s.Snapshot()
	s.CompetitorBid()
	s.Tick(ctx)
	after := s.Snapshot()
	if before.Status != after.Status || len(before.Bids) != len(after.Bids) {
		t.Fatalf("terminal session mutated: %+v -> %+v", before, after)
	}
}

func TestWatchReceivesTransitions(t *testing.T) {
	s := newSession("user-1", testItem(), testStore(1_000), &scriptRand{}, nil)
	ch := s.Watch()

	first := <-ch
	if first.Status != StatusActive || first.CurrentBidMicros != 100*ledger.MicrosPerCredit {
		t.Fatalf("initial snapshot = %+v", first)
	}

	if _, err := s.PlaceBid(context.Background()); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	next := <-ch
	if next.CurrentBidMicros != 150*ledger.MicrosPerCredit {
		t.Fatalf("watcher snapshot after bid = %+v", next)
	}

	s.close()
	if _, open := <-ch; open {
		// one buffered snapshot may remain; drain until close
		for range ch {
		}
	}
}
