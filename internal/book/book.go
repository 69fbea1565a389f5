package book

import (
	"sync"

	"github.com/shopspring/decimal"

	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

var decimalTwo = decimal.NewFromInt(2)

// ApplyResult reports the outcome of applying a MarketDataEvent.
type ApplyResult uint8

const (
	// Applied means the event was accepted and the book mutated (or, for a
	// Trade event that only advances last_trade_seq, bookkeeping updated).
	Applied ApplyResult = iota
	// Stale means seq <= last_update_seq (or <= last_trade_seq for Trade);
	// the event was silently ignored.
	Stale
	// GapDetected means prev_seq didn't match last_update_seq; the book is
	// now marked stale and rejects further deltas until a Snapshot arrives.
	GapDetected
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "Applied"
	case Stale:
		return "Stale"
	case GapDetected:
		return "GapDetected"
	default:
		return "Unknown"
	}
}

// OrderBook pairs a bid and ask BookSide with sequence bookkeeping.
// last_update_seq never decreases; a Snapshot replaces both sides
// atomically (all-or-nothing from an external observer's view, since
// mutation happens under the write lock). ApplyEvent does not check the two
// sides against each other: levels that leave best bid >= best ask are
// applied as given, and IsCrossed reports that state.
type OrderBook struct {
	mu sync.RWMutex

	instrumentID string
	maxDepth     int

	bids *BookSide
	asks *BookSide

	lastUpdateSeq uint64
	lastTradeSeq  uint64
	awaitingSnap  bool // true after a gap, until the next Snapshot
}

// NewOrderBook creates an empty book for instrumentID with the given
// bounded per-side depth (DefaultMaxDepth if maxDepth <= 0).
func NewOrderBook(instrumentID string, maxDepth int) *OrderBook {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &OrderBook{
		instrumentID: instrumentID,
		maxDepth:     maxDepth,
		bids:         NewBookSide(events.Buy, maxDepth),
		asks:         NewBookSide(events.Sell, maxDepth),
	}
}

// InstrumentID returns the book's instrument.
func (b *OrderBook) InstrumentID() string { return b.instrumentID }

// ApplyEvent applies a batched MarketDataEvent. Idempotent for events
// already seen.
func (b *OrderBook) ApplyEvent(evt *events.MarketDataEvent) ApplyResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Kind {
	case events.Snapshot:
		return b.applySnapshotLocked(evt)
	case events.Trade:
		return b.applyTradeLocked(evt)
	default:
		return b.applyDeltaLocked(evt)
	}
}

func (b *OrderBook) applySnapshotLocked(evt *events.MarketDataEvent) ApplyResult {
	if evt.Seq <= b.lastUpdateSeq && !b.awaitingSnap {
		return Stale
	}

	newBids := NewBookSide(events.Buy, b.maxDepth)
	newAsks := NewBookSide(events.Sell, b.maxDepth)
	for _, u := range evt.Updates() {
		if u.Side == events.Buy {
			newBids.Apply(u.Price, u.Quantity, evt.Seq, evt.TsMicros)
		} else {
			newAsks.Apply(u.Price, u.Quantity, evt.Seq, evt.TsMicros)
		}
	}

	// Atomic replace: the new sides are built off to the side and only
	// swapped in once fully constructed, so a reader taking the lock never
	// observes a partially-replaced book.
	b.bids = newBids
	b.asks = newAsks
	b.lastUpdateSeq = evt.Seq
	b.awaitingSnap = false
	return Applied
}

func (b *OrderBook) applyTradeLocked(evt *events.MarketDataEvent) ApplyResult {
	if evt.Seq <= b.lastTradeSeq {
		return Stale
	}
	b.lastTradeSeq = evt.Seq
	return Applied
}

func (b *OrderBook) applyDeltaLocked(evt *events.MarketDataEvent) ApplyResult {
	if evt.Seq <= b.lastUpdateSeq {
		return Stale
	}
	if b.awaitingSnap {
		return GapDetected
	}
	if evt.PrevSeq != b.lastUpdateSeq {
		b.awaitingSnap = true
		return GapDetected
	}

	for _, u := range evt.Updates() {
		if u.Side == events.Buy {
			b.bids.Apply(u.Price, u.Quantity, evt.Seq, evt.TsMicros)
		} else {
			b.asks.Apply(u.Price, u.Quantity, evt.Seq, evt.TsMicros)
		}
	}
	b.lastUpdateSeq = evt.Seq
	return Applied
}

// BestBid returns the best bid level and true, or false if bids are empty.
func (b *OrderBook) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.Best()
}

// BestAsk returns the best ask level and true, or false if asks are empty.
func (b *OrderBook) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.Best()
}

// MidPrice returns the decimal midpoint of best bid and ask, or false if
// either side is empty. Returned as decimal.Decimal rather than a Price:
// the midpoint of two tick-aligned prices may fall between ticks, and
// downstream fair-value math (bp spreads, grouping) needs that extra
// precision before the final tick-rounding step.
func (b *OrderBook) MidPrice(tick fixedpoint.TickSize) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, bidOk := b.bids.Best()
	ask, askOk := b.asks.Best()
	if !bidOk || !askOk {
		return decimal.Zero, false
	}
	bidD := bid.Price.Decimal(tick)
	askD := ask.Price.Decimal(tick)
	return bidD.Add(askD).Div(decimalTwo), true
}

// BestBidAskDecimal returns both best prices as decimals, or false if
// either side is empty.
func (b *OrderBook) BestBidAskDecimal(tick fixedpoint.TickSize) (bid, ask decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bidLvl, bidOk := b.bids.Best()
	askLvl, askOk := b.asks.Best()
	if !bidOk || !askOk {
		return decimal.Zero, decimal.Zero, false
	}
	return bidLvl.Price.Decimal(tick), askLvl.Price.Decimal(tick), true
}

// TopLevelsDecimal returns top-n levels on a side, each with decimal price,
// for VWAP-style fair value computation.
func (b *OrderBook) TopLevelsDecimal(side events.Side, n int, tick fixedpoint.TickSize) []struct {
	Price decimal.Decimal
	Qty   fixedpoint.Quantity
} {
	lvls := b.TopLevels(side, n)
	out := make([]struct {
		Price decimal.Decimal
		Qty   fixedpoint.Quantity
	}, len(lvls))
	for i, l := range lvls {
		out[i].Price = l.Price.Decimal(tick)
		out[i].Qty = l.TotalQty
	}
	return out
}

// Spread returns true and the tick-count spread between best ask and best
// bid, or false if either side is empty.
func (b *OrderBook) Spread() (ticks int64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, bidOk := b.bids.Best()
	ask, askOk := b.asks.Best()
	if !bidOk || !askOk {
		return 0, false
	}
	return ask.Price.Ticks() - bid.Price.Ticks(), true
}

// Depth sums the top n levels of the given side.
func (b *OrderBook) Depth(side events.Side, n int) fixedpoint.Quantity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if side == events.Buy {
		return b.bids.Depth(n)
	}
	return b.asks.Depth(n)
}

// TopLevels returns a bounded snapshot of the given side's top n levels.
func (b *OrderBook) TopLevels(side events.Side, n int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if side == events.Buy {
		return b.bids.TopLevels(n)
	}
	return b.asks.TopLevels(n)
}

// IsCrossed reports whether the book currently violates the non-crossing
// invariant (best bid >= best ask with both sides non-empty). Used by
// tests and defensive assertions. ApplyEvent neither rejects nor repairs
// crossed levels, so this returns true whenever the feed delivered them.
func (b *OrderBook) IsCrossed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, bidOk := b.bids.Best()
	ask, askOk := b.asks.Best()
	if !bidOk || !askOk {
		return false
	}
	return bid.Price.Cmp(ask.Price) >= 0
}

// LastUpdateSeq returns the book's current update sequence.
func (b *OrderBook) LastUpdateSeq() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateSeq
}

// AwaitingSnapshot reports whether the book is stale pending a Snapshot.
func (b *OrderBook) AwaitingSnapshot() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.awaitingSnap
}
