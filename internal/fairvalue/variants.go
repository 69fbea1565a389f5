package fairvalue

import (
	"time"

	"github.com/shopspring/decimal"

	"hftcore/internal/book"
	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

// Midp fires on any change to (best_bid + best_ask) / 2.
type Midp struct {
	instrumentID string
	tick         fixedpoint.TickSize
	last         decimal.Decimal
	hasLast      bool
}

// NewMidp creates a plain midpoint provider for instrumentID.
func NewMidp(instrumentID string, tick fixedpoint.TickSize) *Midp {
	return &Midp{instrumentID: instrumentID, tick: tick}
}

func (p *Midp) InstrumentID() string { return p.instrumentID }

func (p *Midp) Update(b *book.OrderBook) (Changed, bool) {
	mid, ok := b.MidPrice(p.tick)
	if !ok {
		return Changed{}, false
	}
	if p.hasLast && mid.Equal(p.last) {
		return Changed{}, false
	}
	p.last, p.hasLast = mid, true
	return Changed{InstrumentID: p.instrumentID, FV: mid, Ts: time.Now()}, true
}

// BestMidp uses one side's best price directly instead of averaging both.
// Side selects which best price is used as the fair value.
type BestMidp struct {
	instrumentID string
	tick         fixedpoint.TickSize
	side         events.Side
	last         decimal.Decimal
	hasLast      bool
}

// NewBestMidp creates a one-sided best-price provider. side == Buy uses the
// best bid (BestMidp proper); side == Sell uses the best ask (OppositeBest).
func NewBestMidp(instrumentID string, tick fixedpoint.TickSize, side events.Side) *BestMidp {
	return &BestMidp{instrumentID: instrumentID, tick: tick, side: side}
}

func (p *BestMidp) InstrumentID() string { return p.instrumentID }

func (p *BestMidp) Update(b *book.OrderBook) (Changed, bool) {
	var lvl book.Level
	var ok bool
	if p.side == events.Buy {
		lvl, ok = b.BestBid()
	} else {
		lvl, ok = b.BestAsk()
	}
	if !ok {
		return Changed{}, false
	}
	fv := lvl.Price.Decimal(p.tick)
	if p.hasLast && fv.Equal(p.last) {
		return Changed{}, false
	}
	p.last, p.hasLast = fv, true
	return Changed{InstrumentID: p.instrumentID, FV: fv, Ts: time.Now()}, true
}

// VwapMidp is the midpoint of the volume-weighted average price of the
// top-N levels on each side.
type VwapMidp struct {
	instrumentID string
	tick         fixedpoint.TickSize
	depth        int
	last         decimal.Decimal
	hasLast      bool
}

// NewVwapMidp creates a VWAP-midpoint provider averaging the top depth
// levels per side.
func NewVwapMidp(instrumentID string, tick fixedpoint.TickSize, depth int) *VwapMidp {
	if depth <= 0 {
		depth = 5
	}
	return &VwapMidp{instrumentID: instrumentID, tick: tick, depth: depth}
}

func (p *VwapMidp) InstrumentID() string { return p.instrumentID }

func vwap(levels []struct {
	Price decimal.Decimal
	Qty   fixedpoint.Quantity
}) (decimal.Decimal, bool) {
	var notional decimal.Decimal
	var totalQty decimal.Decimal
	for _, l := range levels {
		qty := l.Qty.Decimal()
		notional = notional.Add(l.Price.Mul(qty))
		totalQty = totalQty.Add(qty)
	}
	if totalQty.IsZero() {
		return decimal.Zero, false
	}
	return notional.Div(totalQty), true
}

func (p *VwapMidp) Update(b *book.OrderBook) (Changed, bool) {
	bidLevels := b.TopLevelsDecimal(events.Buy, p.depth, p.tick)
	askLevels := b.TopLevelsDecimal(events.Sell, p.depth, p.tick)
	if len(bidLevels) == 0 || len(askLevels) == 0 {
		return Changed{}, false
	}
	bidVwap, ok := vwap(bidLevels)
	if !ok {
		return Changed{}, false
	}
	askVwap, ok := vwap(askLevels)
	if !ok {
		return Changed{}, false
	}
	mid := bidVwap.Add(askVwap).Div(two)
	if p.hasLast && mid.Equal(p.last) {
		return Changed{}, false
	}
	p.last, p.hasLast = mid, true
	return Changed{InstrumentID: p.instrumentID, FV: mid, Ts: time.Now()}, true
}

// Grouped is the BP-quantized, hysteresis fair-value provider: downstream
// consumers rely on it to avoid flapping on sub-bp noise. The group size is
// computed once, on the first tick, from the raw midpoint, and locked for
// the provider's lifetime — a later price collapse does not change
// granularity.
type Grouped struct {
	instrumentID string
	tick         fixedpoint.TickSize

	groupLocked bool
	group       decimal.Decimal

	lastGroupedMid decimal.Decimal
	hasLast        bool
}

// NewGrouped creates a grouped-midpoint provider for instrumentID.
func NewGrouped(instrumentID string, tick fixedpoint.TickSize) *Grouped {
	return &Grouped{instrumentID: instrumentID, tick: tick}
}

func (p *Grouped) InstrumentID() string { return p.instrumentID }

// GroupSize returns the locked group size, or the zero decimal if no tick
// has been processed yet.
func (p *Grouped) GroupSize() decimal.Decimal { return p.group }

func (p *Grouped) Update(b *book.OrderBook) (Changed, bool) {
	bidD, askD, ok := b.BestBidAskDecimal(p.tick)
	if !ok {
		return Changed{}, false
	}

	if !p.groupLocked {
		rawMid := bidD.Add(askD).Div(two)
		n := rawMid.Mul(bpUnit).Div(p.tick.Decimal()).Round(0)
		if n.Cmp(decimal.NewFromInt(1)) < 0 {
			n = decimal.NewFromInt(1)
		}
		p.group = n.Mul(p.tick.Decimal())
		p.groupLocked = true
	}

	groupedBid := floorToMultiple(bidD, p.group)
	groupedAsk := ceilToMultiple(askD, p.group)
	mid := groupedBid.Add(groupedAsk).Div(two)

	if p.hasLast && mid.Equal(p.lastGroupedMid) {
		return Changed{}, false
	}
	p.lastGroupedMid, p.hasLast = mid, true
	return Changed{InstrumentID: p.instrumentID, FV: mid, Ts: time.Now()}, true
}
