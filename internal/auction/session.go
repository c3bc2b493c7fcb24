// Package auction runs time-boxed competitive bidding sessions over gallery
// items. Each session is a small state machine (active -> settling -> won or
// lost) driven by a one-second countdown and a probability-gated simulated
// competitor. Every transition funnels through the session's lock, so bids
// are applied strictly in trigger order and currentBid can never regress.
package auction

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"
)

const (
	InitialSeconds = 60

	// UserIncrementMicros is the fixed step a user bid adds on top of the
	// current bid.
	UserIncrementMicros = int64(50) * ledger.MicrosPerCredit

	competitorMinIncrementMicros = int64(10) * ledger.MicrosPerCredit
	competitorMaxIncrementMicros = int64(60) * ledger.MicrosPerCredit

	// Competitors stop bidding inside the final seconds so the user always
	// has a closing window.
	competitorQuietSeconds = 5

	competitorBeat        = 3 * time.Second
	competitorProbability = 0.55

	// UserBidder labels the user's own entries in the bid history.
	UserBidder = "you"
)

var (
	ErrAuctionConflict = errors.New("auction already active for this item")
	ErrAuctionEnded    = errors.New("auction has ended")
	ErrSessionNotFound = errors.New("auction session not found")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusSettling Status = "settling"
	StatusWon      Status = "won"
	StatusLost     Status = "lost"
)

func (s Status) Terminal() bool { return s == StatusWon || s == StatusLost }

type Bid struct {
	ID           string    `json:"id"`
	Bidder       string    `json:"bidder"`
	AmountMicros int64     `json:"amount_micros"`
	At           time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of a session, safe to hand to watchers.
type Snapshot struct {
	SessionID        string `json:"session_id"`
	ItemID           string `json:"item_id"`
	CurrentBidMicros int64  `json:"current_bid_micros"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Status           Status `json:"status"`
	Bids             []Bid  `json:"bids"`
}

var competitorNames = []string{
	"gallery_ghost", "brushstroke88", "the_curator", "monet_money",
	"easel_weasel", "palette_knife", "vermeer_vibes",
}

type Session struct {
	id     string
	userID string
	item   catalog.Item
	store  ledger.Store
	rand   market.Rand
	log    *slog.Logger
	now    func() time.Time
	cancel context.CancelFunc

	mu         sync.Mutex
	status     Status
	currentBid int64
	remaining  int
	bids       []Bid
	watchers   []chan Snapshot
	closed     bool
}

func newSession(userID string, item catalog.Item, store ledger.Store, r market.Rand, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:         uuid.NewString(),
		userID:     userID,
		item:       item,
		store:      store,
		rand:       r,
		log:        logger,
		now:        time.Now,
		status:     StatusActive,
		currentBid: item.BasePriceMicros,
		remaining:  InitialSeconds,
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }
func (s *Session) ItemID() string { return s.item.ID }

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:        s.id,
		ItemID:           s.item.ID,
		CurrentBidMicros: s.currentBid,
		RemainingSeconds: s.remaining,
		Status:           s.status,
		Bids:             append([]Bid(nil), s.bids...),
	}
}

// Watch returns a channel fed a snapshot after every transition. Slow
// watchers lose intermediate snapshots rather than stalling the session. The
// channel closes when the session is closed.
func (s *Session) Watch() <-chan Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 16)
	if s.closed {
		close(ch)
		return ch
	}
	ch <- s.snapshotLocked()
	s.watchers = append(s.watchers, ch)
	return ch
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Tick advances the countdown one second and reports whether the session has
// reached a terminal state. Reaching zero triggers settlement in-line, still
// under the transition lock.
func (s *Session) Tick(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return s.status.Terminal()
	}
	s.remaining--
	if s.remaining > 0 {
		s.broadcastLocked()
		return false
	}
	s.remaining = 0
	s.settleLocked(ctx)
	return true
}

// CompetitorBid maybe synthesizes one simulated competitor bid. It never
// fires inside the closing quiet window and never lowers the current bid.
func (s *Session) CompetitorBid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || s.remaining <= competitorQuietSeconds {
		return
	}
	if s.rand.Float64() >= competitorProbability {
		return
	}
	span := competitorMaxIncrementMicros - competitorMinIncrementMicros
	inc := competitorMinIncrementMicros + s.rand.Int63n(span+1)
	name := competitorNames[int(s.rand.Int63n(int64(len(competitorNames))))]
	s.appendBidLocked(name, s.currentBid+inc)
}

// PlaceBid applies a user bid of currentBid plus the fixed increment. The
// user's live balance is checked first; rejection leaves the session
// untouched so the auction simply continues without them.
func (s *Session) PlaceBid(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return s.snapshotLocked(), ErrAuctionEnded
	}
	next := s.currentBid + UserIncrementMicros
	led, err := s.store.GetUser(ctx, s.userID)
	if err != nil {
		return s.snapshotLocked(), err
	}
	if led.BalanceMicros < next {
		return s.snapshotLocked(), ledger.ErrInsufficientFunds
	}
	s.appendBidLocked(UserBidder, next)
	return s.snapshotLocked(), nil
}

func (s *Session) appendBidLocked(bidder string, amountMicros int64) {
	if amountMicros < s.currentBid {
		// Monotonic invariant: a bid below the standing price is a bug in the
		// caller, not a transition.
		return
	}
	s.bids = append(s.bids, Bid{
		ID:           uuid.NewString(),
		Bidder:       bidder,
		AmountMicros: amountMicros,
		At:           s.now(),
	})
	s.currentBid = amountMicros
	s.broadcastLocked()
}

// settleLocked resolves the auction. An empty history or a competitor as the
// last bidder loses by default. A winning user triggers a real purchase at
// the final bid; any ledger refusal at this point (balance moved, item bought
// elsewhere) downgrades the outcome to lost rather than erroring.
func (s *Session) settleLocked(ctx context.Context) {
	s.status = StatusSettling
	s.broadcastLocked()

	if len(s.bids) == 0 || s.bids[len(s.bids)-1].Bidder != UserBidder {
		s.status = StatusLost
		s.broadcastLocked()
		return
	}

	if _, err := s.store.Purchase(ctx, s.userID, s.item.ID, s.currentBid); err != nil {
		s.log.Info("auction settlement purchase refused",
			"session", s.id, "item", s.item.ID, "err", err)
		s.status = StatusLost
		s.broadcastLocked()
		return
	}
	s.status = StatusWon
	s.broadcastLocked()
}

// close cancels timers and closes watcher channels. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	watchers := s.watchers
	s.watchers = nil
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	for _, ch := range watchers {
		close(ch)
	}
}

// run owns the session's timers. Cancelling ctx stops both; a cancelled
// timer firing late is absorbed by the status checks in Tick/CompetitorBid.
func (s *Session) run(ctx context.Context) {
	countdown := time.NewTicker(time.Second)
	defer countdown.Stop()
	competitor := time.NewTicker(competitorBeat)
	defer competitor.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-countdown.C:
			if s.Tick(ctx) {
				return
			}
		case <-competitor.C:
			s.CompetitorBid()
		}
	}
}
