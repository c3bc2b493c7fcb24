// Package market animates a plausible-looking live valuation for each
// displayed artwork. There is no real market data behind it: a seeded random
// walk nudges the price around the catalog base, and a per-item ticker with
// jittered intervals drives the walk while the item stays tracked.
package market

import (
	mathrand "math/rand"
	"sync"
	"time"
)

const (
	// MinPriceMicros is the strictly positive floor, 0.01 credit. A walk can
	// never push a valuation to zero or below.
	MinPriceMicros = int64(10_000)

	// MoveProbability gates each tick; most ticks leave the price alone.
	MoveProbability = 0.3

	// MaxDeltaFrac bounds a single move to ±5% of the item's base price.
	MaxDeltaFrac = 0.05

	// TrendWindow is how long an up/down indicator persists before the
	// displayed trend decays back to stable.
	TrendWindow = 2 * time.Second
)

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Sample is one ephemeral price observation. Samples are never persisted;
// they live exactly as long as the item stays tracked.
type Sample struct {
	ItemID      string    `json:"item_id"`
	PriceMicros int64     `json:"price_micros"`
	Trend       Trend     `json:"trend"`
	At          time.Time `json:"at"`
}

// Rand is the random source the simulation draws from. Injecting it keeps
// price walks and competitor bids replayable in tests.
type Rand interface {
	Float64() float64
	Int63n(n int64) int64
}

// lockedRand guards a seeded math/rand.Rand so timer goroutines can share it.
type lockedRand struct {
	mu sync.Mutex
	r  *mathrand.Rand
}

func NewRand(seed int64) Rand {
	return &lockedRand{r: mathrand.New(mathrand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Int63n(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int63n(n)
}

// Walker produces the next step of a price walk. It is pure given its random
// source: no external dependency, no failure mode.
type Walker struct {
	rand Rand
}

func NewWalker(r Rand) *Walker {
	return &Walker{rand: r}
}

// Tick advances the walk one step. With MoveProbability it applies a bounded
// random delta scaled to the base price, clamped to MinPriceMicros; otherwise
// the price is left untouched. The returned trend describes this tick only.
func (w *Walker) Tick(baseMicros, prevMicros int64) (int64, Trend) {
	if prevMicros < MinPriceMicros {
		prevMicros = MinPriceMicros
	}
	if w.rand.Float64() >= MoveProbability {
		return prevMicros, TrendStable
	}
	span := int64(float64(baseMicros) * MaxDeltaFrac)
	if span <= 0 {
		return prevMicros, TrendStable
	}
	delta := w.rand.Int63n(2*span+1) - span
	next := prevMicros + delta
	if next < MinPriceMicros {
		next = MinPriceMicros
	}
	switch {
	case next > prevMicros:
		return next, TrendUp
	case next < prevMicros:
		return next, TrendDown
	default:
		return next, TrendStable
	}
}
