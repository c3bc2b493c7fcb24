package auction

import (
	"context"
	"errors"
	"testing"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
)

func TestOpenRejectsConcurrentSession(t *testing.T) {
	m := NewManager(testStore(1_000), &scriptRand{floats: []float64{0.99}}, nil)
	defer m.Shutdown()

	first, err := m.Open("user-1", testItem())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := m.Open("user-1", testItem()); !errors.Is(err, ErrAuctionConflict) {
		t.Fatalf("second open err = %v, want ErrAuctionConflict", err)
	}
	// A different user on the same item is unrelated.
	if _, err := m.Open("user-2", testItem()); err != nil {
		t.Fatalf("other user open: %v", err)
	}
	if err := m.Close(first.ID(), "user-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenReplacesTerminalSession(t *testing.T) {
	store := testStore(1_000)
	m := NewManager(store, &scriptRand{floats: []float64{0.99}}, nil)
	defer m.Shutdown()

	first, err := m.Open("user-1", testItem())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	ctx := context.Background()
	for !first.Tick(ctx) {
	}
	if first.Snapshot().Status != StatusLost {
		t.Fatalf("setup: first session not terminal")
	}

	second, err := m.Open("user-1", testItem())
	if err != nil {
		t.Fatalf("reopen after terminal: %v", err)
	}
	if second.ID() == first.ID() {
		t.Fatalf("reopen returned the settled session")
	}
	if second.Snapshot().CurrentBidMicros != 100*ledger.MicrosPerCredit {
		t.Fatalf("fresh session did not restart from the base price")
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	m := NewManager(testStore(1_000), &scriptRand{floats: []float64{0.99}}, nil)
	defer m.Shutdown()

	s, err := m.Open("user-1", testItem())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := m.Get(s.ID(), "user-1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := m.Get(s.ID(), "user-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign get err = %v, want ErrSessionNotFound", err)
	}
	if _, err := m.Get("missing", "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing get err = %v, want ErrSessionNotFound", err)
	}
}

func TestCloseRemovesSession(t *testing.T) {
	m := NewManager(testStore(1_000), &scriptRand{floats: []float64{0.99}}, nil)
	defer m.Shutdown()

	s, err := m.Open("user-1", testItem())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Close(s.ID(), "user-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.Get(s.ID(), "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("closed session still reachable: %v", err)
	}
	if err := m.Close(s.ID(), "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("double close err = %v, want ErrSessionNotFound", err)
	}
	// The slot is free again.
	if _, err := m.Open("user-1", testItem()); err != nil {
		t.Fatalf("open after close: %v", err)
	}
}
