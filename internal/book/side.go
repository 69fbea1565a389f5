// Package book implements the order book engine: sorted per-side price
// ladders with O(log N) locate via binary search, O(N) shift on
// insert/delete, gap-aware snapshot+delta application, and O(1) best-level
// caching via the invariant that index 0 is always a side's best level.
//
// Grounded on the teacher's internal/market.Book (RWMutex-guarded mirror,
// full-replace snapshot semantics, best-level reads at index 0) combined
// with the sorted-slice-per-level approach of the ndrandal feed simulator's
// orderbook.Book, generalized to real incremental delta application, binary
// search insertion, and seq-gap detection per the specification.
package book

import (
	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

// DefaultMaxDepth is the default bounded capacity of a BookSide.
const DefaultMaxDepth = 5000

// Level is a single price level: {price, total_qty, order_count,
// last_update_seq, last_update_ts}. A level with TotalQty <= 0 does not
// exist in a BookSide — IsEmpty levels are removed, never retained.
type Level struct {
	Price         fixedpoint.Price
	TotalQty      fixedpoint.Quantity
	OrderCount    int
	LastUpdateSeq uint64
	LastUpdateTs  int64
}

// IsEmpty reports the book-side emptiness invariant for this level.
func (l Level) IsEmpty() bool { return l.TotalQty <= 0 }

// BookSide is an ordered sequence of Level of bounded capacity, descending
// by price on the bid side and ascending on the ask side. Index 0 is always
// the side's best level.
type BookSide struct {
	side     events.Side
	maxDepth int
	levels   []Level
}

// NewBookSide creates an empty side with the given bounded capacity.
func NewBookSide(side events.Side, maxDepth int) *BookSide {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &BookSide{side: side, maxDepth: maxDepth}
}

// better reports whether price a has priority over price b on this side —
// higher price wins on the bid side, lower price wins on the ask side.
func (bs *BookSide) better(a, b fixedpoint.Price) bool {
	if bs.side == events.Buy {
		return a.Cmp(b) > 0
	}
	return a.Cmp(b) < 0
}

// locate performs a binary search for price, returning the index at which
// it is found, or the index at which it should be inserted to preserve
// ordering (the same convention as Go's sort.Search: the first index whose
// element is not "better than" price).
func (bs *BookSide) locate(price fixedpoint.Price) (idx int, found bool) {
	lo, hi := 0, len(bs.levels)
	for lo < hi {
		mid := (lo + hi) / 2
		switch bs.levels[mid].Price.Cmp(price) {
		case 0:
			return mid, true
		default:
			if bs.better(bs.levels[mid].Price, price) {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
	}
	return lo, false
}

// Apply applies a single level update: removes the level if qty <= 0,
// updates in place if the price already exists, or inserts a new level at
// its sorted position, evicting the current worst level if the side is at
// capacity. A new level whose insertion position is at or beyond maxDepth
// on a full side is rejected — its price is worse than every tracked level.
func (bs *BookSide) Apply(price fixedpoint.Price, qty fixedpoint.Quantity, seq uint64, ts int64) {
	idx, found := bs.locate(price)

	if qty <= 0 {
		if found {
			bs.levels = append(bs.levels[:idx], bs.levels[idx+1:]...)
		}
		return
	}

	if found {
		lvl := &bs.levels[idx]
		lvl.TotalQty = qty
		lvl.LastUpdateSeq = seq
		lvl.LastUpdateTs = ts
		return
	}

	if idx >= bs.maxDepth {
		return
	}

	bs.levels = append(bs.levels, Level{})
	copy(bs.levels[idx+1:], bs.levels[idx:len(bs.levels)-1])
	bs.levels[idx] = Level{
		Price:         price,
		TotalQty:      qty,
		OrderCount:    1,
		LastUpdateSeq: seq,
		LastUpdateTs:  ts,
	}
	if len(bs.levels) > bs.maxDepth {
		bs.levels = bs.levels[:bs.maxDepth]
	}
}

// Best returns the side's best level and true, or the zero value and false
// if the side is empty.
func (bs *BookSide) Best() (Level, bool) {
	if len(bs.levels) == 0 {
		return Level{}, false
	}
	return bs.levels[0], true
}

// Depth sums the quantity of the top n levels.
func (bs *BookSide) Depth(n int) fixedpoint.Quantity {
	if n > len(bs.levels) {
		n = len(bs.levels)
	}
	var total fixedpoint.Quantity
	for i := 0; i < n; i++ {
		total = total.Add(bs.levels[i].TotalQty)
	}
	return total
}

// TopLevels returns a bounded copy of the top n levels, best first.
func (bs *BookSide) TopLevels(n int) []Level {
	if n > len(bs.levels) {
		n = len(bs.levels)
	}
	out := make([]Level, n)
	copy(out, bs.levels[:n])
	return out
}

// LevelCount returns the number of non-empty levels currently tracked.
func (bs *BookSide) LevelCount() int { return len(bs.levels) }
