package quote

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"hftcore/internal/events"
	"hftcore/internal/order"
	"hftcore/pkg/fixedpoint"
)

// Log is a pure sink used for testing: it records the latest intended
// quote and fires lifecycle callbacks but never talks to the gateway.
type Log struct {
	mu      sync.Mutex
	last    *events.Quote
	onQuote func(target *events.Quote, isBuyTaker bool)
}

// NewLog creates a Log quoter. onQuote may be nil.
func NewLog(onQuote func(target *events.Quote, isBuyTaker bool)) *Log {
	return &Log{onQuote: onQuote}
}

func (l *Log) UpdateQuote(_ context.Context, target *events.Quote, isBuyTaker bool) error {
	l.mu.Lock()
	l.last = target
	l.mu.Unlock()
	if l.onQuote != nil {
		l.onQuote(target, isBuyTaker)
	}
	return nil
}

// LastQuote returns the most recently recorded target, or nil.
func (l *Log) LastQuote() *events.Quote {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Single owns at most one live order and reconciles it against the target
// on every call: no live order -> submit; live order with a different
// price -> replace; nil target -> cancel. Replace is only attempted while
// the order is in {New, PartiallyFilled} per §4.6; while the order is in any
// other non-terminal state the call does nothing, and once it is terminal
// the next call submits a fresh order.
type Single struct {
	p Params

	mu  sync.Mutex
	cur *order.Order
}

// NewSingle creates a Single quoter for one side of one instrument.
func NewSingle(p Params) *Single { return &Single{p: p} }

func (s *Single) UpdateQuote(ctx context.Context, target *events.Quote, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcile(ctx, target)
}

func (s *Single) reconcile(ctx context.Context, target *events.Quote) error {
	if terminalOrder(s.cur) {
		s.cur = nil
	}

	if target == nil {
		if s.cur == nil {
			return nil
		}
		o := s.cur
		if err := o.Cancel(); err != nil {
			return nil // already non-live; nothing to do
		}
		if err := s.p.Gateway.CancelOrder(ctx, o); err != nil {
			o.CancelFailed()
			return err
		}
		return nil
	}

	if s.cur == nil {
		o := s.p.Router.NewOrder(s.p.Side, s.p.InstrumentID, s.p.BookName, target.Price, target.Quantity, order.GTC, true)
		s.cur = o
		return s.submit(ctx, o)
	}

	o := s.cur
	if o.Price.Cmp(target.Price) == 0 && o.Quantity.Cmp(target.Quantity) == 0 {
		return nil
	}
	if !o.SnapshotStatus().Live() {
		return nil
	}
	if err := o.Replace(target.Price, target.Quantity); err != nil {
		return nil
	}
	if err := s.p.Gateway.ReplaceOrder(ctx, o, target.Price, target.Quantity); err != nil {
		o.ReplaceFailed()
		return err
	}
	return nil
}

// CurrentPrice returns the live order's price, if any.
func (s *Single) CurrentPrice() (fixedpoint.Price, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !liveOrder(s.cur) {
		return fixedpoint.Price(0), false
	}
	return s.cur.Price, true
}

func (s *Single) submit(ctx context.Context, o *order.Order) error {
	if err := o.Submit(); err != nil {
		return err
	}
	if err := s.p.Gateway.SubmitOrder(ctx, o); err != nil {
		o.SubmitFailed()
		return err
	}
	return nil
}

// GroupSizeFunc returns a fair-value provider's locked quantization group
// (see internal/fairvalue.Grouped.GroupSize).
type GroupSizeFunc func() decimal.Decimal

// MidPriceFunc returns the current quoted-instrument book midpoint.
type MidPriceFunc func() (decimal.Decimal, bool)

// nearMidBandBp is the "near-mid" tolerance used by GroupedSingle to decide
// whether a partially filled order should be chased or abandoned (§4.5).
const nearMidBandBp = 3

// GroupedSingle behaves like Single but quantizes the target to the
// provider's frozen group before reconciling, skips the replace entirely
// when the grouped price is unchanged, and cancels (instead of chasing)
// a partially filled order whose new grouped target has drifted outside a
// ±3bp band around the current midpoint.
type GroupedSingle struct {
	p       Params
	groupOf GroupSizeFunc
	midOf   MidPriceFunc

	mu          sync.Mutex
	cur         *order.Order
	lastGrouped fixedpoint.Price
	hasGrouped  bool
}

// NewGroupedSingle creates a GroupedSingle quoter.
func NewGroupedSingle(p Params, groupOf GroupSizeFunc, midOf MidPriceFunc) *GroupedSingle {
	return &GroupedSingle{p: p, groupOf: groupOf, midOf: midOf}
}

func (g *GroupedSingle) UpdateQuote(ctx context.Context, target *events.Quote, _ bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if terminalOrder(g.cur) {
		g.cur = nil
		g.hasGrouped = false
	}

	if target == nil {
		return g.cancelCurrent(ctx)
	}

	grouped := g.snapToGroup(target.Price)

	if g.cur == nil {
		o := g.p.Router.NewOrder(g.p.Side, g.p.InstrumentID, g.p.BookName, grouped, target.Quantity, order.GTC, true)
		g.cur = o
		g.lastGrouped = grouped
		g.hasGrouped = true
		if err := o.Submit(); err != nil {
			return err
		}
		if err := g.p.Gateway.SubmitOrder(ctx, o); err != nil {
			o.SubmitFailed()
			return err
		}
		return nil
	}

	if g.hasGrouped && grouped.Cmp(g.lastGrouped) == 0 {
		return nil
	}

	o := g.cur
	if o.SnapshotStatus() == order.PartiallyFilled && g.outsideNearMidBand(grouped) {
		return g.cancelCurrent(ctx)
	}
	if !o.SnapshotStatus().Live() {
		return nil
	}
	if err := o.Replace(grouped, target.Quantity); err != nil {
		return nil
	}
	if err := g.p.Gateway.ReplaceOrder(ctx, o, grouped, target.Quantity); err != nil {
		o.ReplaceFailed()
		return err
	}
	g.lastGrouped = grouped
	return nil
}

// CurrentPrice returns the live order's price, if any.
func (g *GroupedSingle) CurrentPrice() (fixedpoint.Price, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !liveOrder(g.cur) {
		return fixedpoint.Price(0), false
	}
	return g.cur.Price, true
}

func (g *GroupedSingle) cancelCurrent(ctx context.Context) error {
	if g.cur == nil {
		return nil
	}
	o := g.cur
	if err := o.Cancel(); err != nil {
		return nil
	}
	if err := g.p.Gateway.CancelOrder(ctx, o); err != nil {
		o.CancelFailed()
		return err
	}
	return nil
}

func (g *GroupedSingle) snapToGroup(price fixedpoint.Price) fixedpoint.Price {
	group := g.groupOf()
	if group.IsZero() {
		return price
	}
	raw := price.Decimal(g.p.TickSize)
	multiple := raw.Div(group)
	var snapped decimal.Decimal
	if g.p.Side == events.Buy {
		snapped = multiple.Floor().Mul(group)
	} else {
		snapped = multiple.Ceil().Mul(group)
	}
	if g.p.Side == events.Buy {
		return fixedpoint.PriceFromDecimalFloor(snapped, g.p.TickSize)
	}
	return fixedpoint.PriceFromDecimalCeil(snapped, g.p.TickSize)
}

func (g *GroupedSingle) outsideNearMidBand(grouped fixedpoint.Price) bool {
	mid, ok := g.midOf()
	if !ok || mid.IsZero() {
		return false
	}
	bandBp := decimal.New(nearMidBandBp, -4)
	band := mid.Mul(bandBp)
	lo := mid.Sub(band)
	hi := mid.Add(band)
	gp := grouped.Decimal(g.p.TickSize)
	return gp.LessThan(lo) || gp.GreaterThan(hi)
}

// Layered maintains a book of Depth orders spaced GroupingBp of price
// apart, centered on the target. Creation order is outermost-first,
// innermost-last so the passive legs rest before the aggressive one is
// placed. A significant move in the target (outside one layer's spacing)
// cancels every layer; the next UpdateQuote rebuilds them.
type Layered struct {
	p          Params
	depth      int
	groupingBp decimal.Decimal

	mu      sync.Mutex
	layers  []*order.Order
	centerP fixedpoint.Price
	hasCtr  bool
}

// NewLayered creates a Layered (Multi / OrdersOnGroup) quoter.
func NewLayered(p Params, depth int, groupingBp decimal.Decimal) *Layered {
	if depth < 1 {
		depth = 1
	}
	return &Layered{p: p, depth: depth, groupingBp: groupingBp}
}

func (l *Layered) UpdateQuote(ctx context.Context, target *events.Quote, _ bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if target == nil {
		return l.cancelAll(ctx)
	}

	if l.hasCtr && l.significantMove(target.Price) {
		if err := l.cancelAll(ctx); err != nil {
			return err
		}
	}

	if len(l.layers) > 0 {
		return nil // layers already resting against the (still valid) center
	}

	spacing := l.spacingDecimal(target.Price)
	// outermost first (i = depth-1), innermost last (i = 0)
	for i := l.depth - 1; i >= 0; i-- {
		layerPrice := l.layerPrice(target.Price, spacing, i)
		o := l.p.Router.NewOrder(l.p.Side, l.p.InstrumentID, l.p.BookName, layerPrice, target.Quantity, order.GTC, true)
		if err := o.Submit(); err != nil {
			continue
		}
		if err := l.p.Gateway.SubmitOrder(ctx, o); err != nil {
			o.SubmitFailed()
			continue
		}
		l.layers = append(l.layers, o)
	}
	l.centerP = target.Price
	l.hasCtr = true
	return nil
}

func (l *Layered) cancelAll(ctx context.Context) error {
	var firstErr error
	for _, o := range l.layers {
		if !liveOrder(o) {
			continue
		}
		if err := o.Cancel(); err != nil {
			continue
		}
		if err := l.p.Gateway.CancelOrder(ctx, o); err != nil {
			o.CancelFailed()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	l.layers = nil
	l.hasCtr = false
	return firstErr
}

func (l *Layered) spacingDecimal(center fixedpoint.Price) decimal.Decimal {
	price := center.Decimal(l.p.TickSize)
	return fixedpoint.ApplyBp(price, l.groupingBp).Sub(price).Abs()
}

func (l *Layered) layerPrice(center fixedpoint.Price, spacing decimal.Decimal, i int) fixedpoint.Price {
	offset := spacing.Mul(decimal.NewFromInt(int64(i)))
	centerDec := center.Decimal(l.p.TickSize)
	if l.p.Side == events.Buy {
		return fixedpoint.PriceFromDecimalFloor(centerDec.Sub(offset), l.p.TickSize)
	}
	return fixedpoint.PriceFromDecimalCeil(centerDec.Add(offset), l.p.TickSize)
}

func (l *Layered) significantMove(newCenter fixedpoint.Price) bool {
	spacing := l.spacingDecimal(newCenter)
	if spacing.IsZero() {
		return l.centerP.Cmp(newCenter) != 0
	}
	diff := newCenter.Decimal(l.p.TickSize).Sub(l.centerP.Decimal(l.p.TickSize)).Abs()
	return diff.GreaterThanOrEqual(spacing)
}

// Shadow is the IOC-like aggressive variant: it always submits a fresh
// immediate-or-cancel order for the target and never leaves resting size,
// so "replace" degenerates to submit-a-new-IOC on every changed target.
type Shadow struct {
	p Params

	mu  sync.Mutex
	cur *order.Order
}

// NewShadow creates a Shadow quoter.
func NewShadow(p Params) *Shadow { return &Shadow{p: p} }

func (s *Shadow) UpdateQuote(ctx context.Context, target *events.Quote, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if terminalOrder(s.cur) {
		s.cur = nil
	}
	if target == nil {
		return nil
	}
	if s.cur != nil && s.cur.Price.Cmp(target.Price) == 0 && s.cur.Quantity.Cmp(target.Quantity) == 0 {
		return nil
	}

	o := s.p.Router.NewOrder(s.p.Side, s.p.InstrumentID, s.p.BookName, target.Price, target.Quantity, order.IOC, false)
	s.cur = o
	if err := o.Submit(); err != nil {
		return err
	}
	if err := s.p.Gateway.SubmitOrder(ctx, o); err != nil {
		o.SubmitFailed()
		return err
	}
	return nil
}

// CurrentPrice returns the live order's price, if any.
func (s *Shadow) CurrentPrice() (fixedpoint.Price, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !liveOrder(s.cur) {
		return fixedpoint.Price(0), false
	}
	return s.cur.Price, true
}

// BestPriceFunc returns the quoted-instrument book's best price on the
// quoter's side.
type BestPriceFunc func() (fixedpoint.Price, bool)

// ShadowMaker is the resting aggressive variant: it leaves the remainder
// of a partial fill on the book and cancels only when outquoted (loses
// price priority to a better resting order).
type ShadowMaker struct {
	p      Params
	bestOf BestPriceFunc

	mu  sync.Mutex
	cur *order.Order
}

// NewShadowMaker creates a ShadowMaker quoter.
func NewShadowMaker(p Params, bestOf BestPriceFunc) *ShadowMaker {
	return &ShadowMaker{p: p, bestOf: bestOf}
}

func (s *ShadowMaker) UpdateQuote(ctx context.Context, target *events.Quote, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if terminalOrder(s.cur) {
		s.cur = nil
	}
	if target == nil {
		return s.cancelCurrent(ctx)
	}

	if s.cur == nil {
		o := s.p.Router.NewOrder(s.p.Side, s.p.InstrumentID, s.p.BookName, target.Price, target.Quantity, order.GTC, false)
		s.cur = o
		if err := o.Submit(); err != nil {
			return err
		}
		if err := s.p.Gateway.SubmitOrder(ctx, o); err != nil {
			o.SubmitFailed()
			return err
		}
		return nil
	}

	if s.outquoted() {
		return s.cancelCurrent(ctx)
	}
	return nil
}

// CurrentPrice returns the live order's price, if any.
func (s *ShadowMaker) CurrentPrice() (fixedpoint.Price, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !liveOrder(s.cur) {
		return fixedpoint.Price(0), false
	}
	return s.cur.Price, true
}

func (s *ShadowMaker) outquoted() bool {
	if s.bestOf == nil || s.cur == nil {
		return false
	}
	best, ok := s.bestOf()
	if !ok {
		return false
	}
	if s.p.Side == events.Buy {
		return best.Cmp(s.cur.Price) > 0
	}
	return best.Cmp(s.cur.Price) < 0
}

func (s *ShadowMaker) cancelCurrent(ctx context.Context) error {
	if s.cur == nil {
		return nil
	}
	o := s.cur
	if err := o.Cancel(); err != nil {
		return nil
	}
	if err := s.p.Gateway.CancelOrder(ctx, o); err != nil {
		o.CancelFailed()
		return err
	}
	return nil
}
