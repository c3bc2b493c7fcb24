package auction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"
)

// Manager owns auction session lifetime. At most one non-terminal session may
// exist per (user, item); a second open for the same pair is rejected outright
// instead of racing two countdowns over one artwork.
type Manager struct {
	store ledger.Store
	rand  market.Rand
	log   *slog.Logger

	mu    sync.Mutex
	byID  map[string]*Session
	byKey map[sessionKey]*Session
}

type sessionKey struct {
	userID string
	itemID string
}

func NewManager(store ledger.Store, r market.Rand, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store: store,
		rand:  r,
		log:   logger,
		byID:  make(map[string]*Session),
		byKey: make(map[sessionKey]*Session),
	}
}

// Open creates a session and starts its timers. A still-running session for
// the same user and item yields ErrAuctionConflict; a finished one is
// replaced.
func (m *Manager) Open(userID string, item catalog.Item) (*Session, error) {
	key := sessionKey{userID: userID, itemID: item.ID}

	m.mu.Lock()
	if existing, ok := m.byKey[key]; ok {
		if !existing.Snapshot().Status.Terminal() {
			m.mu.Unlock()
			return nil, ErrAuctionConflict
		}
		delete(m.byID, existing.id)
		delete(m.byKey, key)
		defer existing.close()
	}
	s := newSession(userID, item, m.store, m.rand, m.log)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	m.byID[s.id] = s
	m.byKey[key] = s
	m.mu.Unlock()

	go s.run(ctx)
	m.log.Info("auction opened", "session", s.id, "item", item.ID, "user", userID)
	return s, nil
}

// Get returns the caller's session by ID. Sessions are private to the user
// who opened them.
func (m *Manager) Get(sessionID, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok || s.userID != userID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears a session down: timers cancelled, watchers closed, registry
// entries dropped. Closing an unknown session is an error so clients notice
// stale handles.
func (m *Manager) Close(sessionID, userID string) error {
	m.mu.Lock()
	s, ok := m.byID[sessionID]
	if !ok || s.userID != userID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.byID, sessionID)
	delete(m.byKey, sessionKey{userID: s.userID, itemID: s.item.ID})
	m.mu.Unlock()

	s.close()
	m.log.Info("auction closed", "session", sessionID)
	return nil
}

// Shutdown cancels every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byID))
	for id, s := range m.byID {
		sessions = append(sessions, s)
		delete(m.byID, id)
	}
	m.byKey = make(map[sessionKey]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
