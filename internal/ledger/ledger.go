// Package ledger defines the user ledger boundary: balances, owned items and
// membership tiers, plus the Store contract every economy operation mutates
// the ledger through. The simulation core never touches ledger state directly;
// it asks a Store and trusts only the ledger the Store hands back.
package ledger

import (
	"context"
	"errors"
	"math"
)

const (
	MicrosPerCredit = int64(1_000_000)

	StarterBalanceMicros = int64(1_000) * MicrosPerCredit

	ArtistTierPriceMicros = int64(500) * MicrosPerCredit
	PatronTierPriceMicros = int64(2_000) * MicrosPerCredit
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyOwned      = errors.New("item already owned")
	ErrTierChange        = errors.New("invalid tier change")
	ErrTxConflict        = errors.New("transaction conflict, retry")
)

type Tier string

const (
	TierGuest  Tier = "guest"
	TierArtist Tier = "artist"
	TierPatron Tier = "patron"
)

func (t Tier) Valid() bool {
	switch t {
	case TierGuest, TierArtist, TierPatron:
		return true
	}
	return false
}

// rank orders tiers for upgrade checks. Downgrades are rejected.
func (t Tier) rank() int {
	switch t {
	case TierArtist:
		return 1
	case TierPatron:
		return 2
	default:
		return 0
	}
}

// UpgradePriceMicros returns the cost of moving from tier t to target.
// ErrTierChange covers downgrades, same-tier no-ops and unknown tiers.
func (t Tier) UpgradePriceMicros(target Tier) (int64, error) {
	if !t.Valid() || !target.Valid() || target.rank() <= t.rank() {
		return 0, ErrTierChange
	}
	switch target {
	case TierArtist:
		return ArtistTierPriceMicros, nil
	default:
		return PatronTierPriceMicros, nil
	}
}

// Ledger is the authoritative user record. InventoryIDs is a set in spirit;
// stores guarantee uniqueness and callers must treat order as incidental.
type Ledger struct {
	UserID        string   `json:"user_id"`
	BalanceMicros int64    `json:"balance_micros"`
	InventoryIDs  []string `json:"inventory_ids"`
	Tier          Tier     `json:"tier"`
}

func (l Ledger) Owns(itemID string) bool {
	for _, id := range l.InventoryIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Store is the ledger mutation boundary. Every mutation applies its effects
// atomically and returns the post-transaction ledger so callers observe
// authoritative state instead of trusting their own optimistic copy.
//
// Purchase is intentionally not idempotent: invoking it twice with the same
// arguments fails the second time only because the item is then owned, and a
// repeated Credit always re-applies. Callers own at-most-once semantics.
type Store interface {
	GetUser(ctx context.Context, userID string) (Ledger, error)
	Purchase(ctx context.Context, userID, itemID string, priceMicros int64) (Ledger, error)
	Credit(ctx context.Context, userID string, deltaMicros int64) (Ledger, error)
	UpgradeTier(ctx context.Context, userID string, target Tier) (Ledger, error)
}

func CreditsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerCredit)))
}

func MicrosToCredits(v int64) float64 {
	return float64(v) / float64(MicrosPerCredit)
}
