package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemStore keeps ledgers in process memory behind one mutex, which serializes
// concurrent mutation requests per the store contract. It backs dev mode and
// the test suite; PgStore is the durable implementation.
type MemStore struct {
	mu      sync.Mutex
	users   map[string]*Ledger
	replays map[string]map[string]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[string]*Ledger),
		replays: make(map[string]map[string]struct{}),
	}
}

// Seed installs or replaces a user record. Intended for startup and tests.
func (s *MemStore) Seed(l Ledger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Tier == "" {
		l.Tier = TierGuest
	}
	cp := l
	cp.InventoryIDs = append([]string(nil), l.InventoryIDs...)
	s.users[l.UserID] = &cp
}

// EnsureUser creates a starter ledger for userID if none exists.
func (s *MemStore) EnsureUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return nil
	}
	s.users[userID] = &Ledger{
		UserID:        userID,
		BalanceMicros: StarterBalanceMicros,
		Tier:          TierGuest,
	}
	return nil
}

func (s *MemStore) GetUser(ctx context.Context, userID string) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return Ledger{}, ErrNotFound
	}
	return snapshot(u), nil
}

func (s *MemStore) Purchase(ctx context.Context, userID, itemID string, priceMicros int64) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return Ledger{}, ErrNotFound
	}
	if u.Owns(itemID) {
		return Ledger{}, ErrAlreadyOwned
	}
	if u.BalanceMicros < priceMicros {
		return Ledger{}, ErrInsufficientFunds
	}
	u.BalanceMicros -= priceMicros
	u.InventoryIDs = append(u.InventoryIDs, itemID)
	sort.Strings(u.InventoryIDs)
	return snapshot(u), nil
}

func (s *MemStore) Credit(ctx context.Context, userID string, deltaMicros int64) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return Ledger{}, ErrNotFound
	}
	if u.BalanceMicros+deltaMicros < 0 {
		return Ledger{}, ErrInsufficientFunds
	}
	u.BalanceMicros += deltaMicros
	return snapshot(u), nil
}

func (s *MemStore) UpgradeTier(ctx context.Context, userID string, target Tier) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return Ledger{}, ErrNotFound
	}
	price, err := u.Tier.UpgradePriceMicros(target)
	if err != nil {
		return Ledger{}, err
	}
	if u.BalanceMicros < price {
		return Ledger{}, ErrInsufficientFunds
	}
	u.BalanceMicros -= price
	u.Tier = target
	return snapshot(u), nil
}

// SeenReplay reports whether a replay key was already applied for the user.
func (s *MemStore) SeenReplay(ctx context.Context, userID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.replays[userID][key]
	return ok, nil
}

// MarkReplay records a replay key after its command has been applied.
func (s *MemStore) MarkReplay(ctx context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replays[userID] == nil {
		s.replays[userID] = make(map[string]struct{})
	}
	s.replays[userID][key] = struct{}{}
	return nil
}

func snapshot(u *Ledger) Ledger {
	cp := *u
	cp.InventoryIDs = append([]string(nil), u.InventoryIDs...)
	return cp
}
