// Package book implements the canonical live order book: a thread-safe
// bid/ask map per market that venue adapters mutate via snapshots and
// deltas, and that detectors and the recorder read via depth/imbalance
// queries and a change-callback fan-out.
package book

import (
	"sort"
	"sync"
	"time"

	"pmarb/pkg/types"
)

// Level is one price/size pair in the book.
type Level struct {
	Price float64
	Size  float64
}

// Snapshot is a read-only copy of a book's current state, bids sorted
// descending by price and asks ascending.
type Snapshot struct {
	Platform types.Platform
	MarketID string
	Bids     []Level
	Asks     []Level
	Updated  time.Time
}

// UpdateFn is invoked after every mutating call, outside the book's lock.
type UpdateFn func(b *Book)

// Book is the canonical YES-anchored order book for one (platform, market_id).
type Book struct {
	mu        sync.RWMutex
	platform  types.Platform
	marketID  string
	bids      map[float64]float64
	asks      map[float64]float64
	isSynced  bool
	updated   time.Time
	callbacks []UpdateFn
}

// New creates an empty, unsynced book for a market.
func New(platform types.Platform, marketID string) *Book {
	return &Book{
		platform: platform,
		marketID: marketID,
		bids:     make(map[float64]float64),
		asks:     make(map[float64]float64),
	}
}

// Platform returns the book's venue.
func (b *Book) Platform() types.Platform { return b.platform }

// MarketID returns the book's market identifier.
func (b *Book) MarketID() string { return b.marketID }

// AddCallback registers a function fired after every mutating call. Order
// of registration is preserved; a panicking callback is recovered and
// logged-by-caller-convention (the callback itself should log), never
// allowed to prevent the remaining callbacks from running.
func (b *Book) AddCallback(fn UpdateFn) {
	b.mu.Lock()
	b.callbacks = append(b.callbacks, fn)
	b.mu.Unlock()
}

func (b *Book) fire() {
	b.mu.RLock()
	cbs := make([]UpdateFn, len(b.callbacks))
	copy(cbs, b.callbacks)
	b.mu.RUnlock()

	for _, cb := range cbs {
		func() {
			defer func() { recover() }()
			cb(b)
		}()
	}
}

// ApplySnapshot atomically replaces both sides of the book. Levels with
// size <= 0 are dropped. Marks the book synced.
func (b *Book) ApplySnapshot(bids, asks []Level) {
	b.mu.Lock()
	newBids := make(map[float64]float64, len(bids))
	for _, l := range bids {
		if l.Size > 0 {
			newBids[l.Price] = l.Size
		}
	}
	newAsks := make(map[float64]float64, len(asks))
	for _, l := range asks {
		if l.Size > 0 {
			newAsks[l.Price] = l.Size
		}
	}
	b.bids = newBids
	b.asks = newAsks
	b.isSynced = true
	b.updated = time.Now().UTC()
	b.mu.Unlock()

	b.fire()
}

// ApplyDelta sets a single level's size absolutely. newSize <= 0 removes
// the level.
func (b *Book) ApplyDelta(side types.Side, price, newSize float64) {
	b.mu.Lock()
	m := b.sideMap(side)
	if newSize <= 0 {
		delete(m, price)
	} else {
		m[price] = newSize
	}
	b.updated = time.Now().UTC()
	b.mu.Unlock()

	b.fire()
}

// ApplyDeltaIncrement adds delta to a level's current size (0 if absent).
// A resulting size <= 0 removes the level.
func (b *Book) ApplyDeltaIncrement(side types.Side, price, delta float64) {
	b.mu.Lock()
	m := b.sideMap(side)
	next := m[price] + delta
	if next <= 0 {
		delete(m, price)
	} else {
		m[price] = next
	}
	b.updated = time.Now().UTC()
	b.mu.Unlock()

	b.fire()
}

func (b *Book) sideMap(side types.Side) map[float64]float64 {
	if side == types.SideBid {
		return b.bids
	}
	return b.asks
}

// IsSynced reports whether a snapshot has ever been applied.
func (b *Book) IsSynced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isSynced
}

// BestBid returns the highest bid price, or (0,false) if the book has no bids.
func (b *Book) BestBid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestOf(b.bids, true)
}

// BestAsk returns the lowest ask price, or (0,false) if the book has no asks.
func (b *Book) BestAsk() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestOf(b.asks, false)
}

func bestOf(m map[float64]float64, wantMax bool) (float64, bool) {
	if len(m) == 0 {
		return 0, false
	}
	first := true
	var best float64
	for p := range m {
		if first || (wantMax && p > best) || (!wantMax && p < best) {
			best = p
			first = false
		}
	}
	return best, true
}

// Spread returns ask-bid, or (0,false) if either side is empty.
func (b *Book) Spread() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask - bid, true
}

// Mid returns (bid+ask)/2, or the single-sided price if only one side is
// present, or (0,false) if the book is entirely empty.
func (b *Book) Mid() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	switch {
	case okB && okA:
		return (bid + ask) / 2, true
	case okB:
		return bid, true
	case okA:
		return ask, true
	default:
		return 0, false
	}
}

// BidDepth sums bid-side size within pct of the best bid.
func (b *Book) BidDepth(pct float64) float64 {
	bid, ok := b.BestBid()
	if !ok {
		return 0
	}
	floor := bid * (1 - pct)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for p, s := range b.bids {
		if p >= floor {
			total += s
		}
	}
	return total
}

// AskDepth sums ask-side size within pct of the best ask.
func (b *Book) AskDepth(pct float64) float64 {
	ask, ok := b.BestAsk()
	if !ok {
		return 0
	}
	ceil := ask * (1 + pct)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for p, s := range b.asks {
		if p <= ceil {
			total += s
		}
	}
	return total
}

// Imbalance returns bidDepth / (bidDepth+askDepth) within pct of touch,
// defaulting to 0.5 when both sides are empty.
func (b *Book) Imbalance(pct float64) float64 {
	bidVol := b.BidDepth(pct)
	askVol := b.AskDepth(pct)
	total := bidVol + askVol
	if total == 0 {
		return 0.5
	}
	return bidVol / total
}

// Snapshot returns a sorted, read-only copy of the current book state.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := make([]Level, 0, len(b.bids))
	for p, s := range b.bids {
		bids = append(bids, Level{Price: p, Size: s})
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	asks := make([]Level, 0, len(b.asks))
	for p, s := range b.asks {
		asks = append(asks, Level{Price: p, Size: s})
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	return Snapshot{
		Platform: b.platform,
		MarketID: b.marketID,
		Bids:     bids,
		Asks:     asks,
		Updated:  b.updated,
	}
}
