// Package engine implements the QuotingEngine and MarketMaker (§4.4): the
// translation of a fair-value update into a target QuotePair (skew, tick
// rounding, dynamic grouping, hitting logic, inventory gate) and the
// dispatch of that target to the bid/ask Quoters, plus fill accounting
// and the full-fill cooldown.
//
// Grounded on the teacher's strategy.Maker.quoteUpdate/computeQuotes
// pipeline (internal/strategy/maker.go): book-staleness check, compute,
// reconcile. The Avellaneda-Stoikov reservation-price formula is replaced
// by the specification's skew-bp/hitting-logic algorithm; the
// cancel-then-reconcile dispatch shape is kept in the sibling quote
// package's quoters.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"hftcore/internal/book"
	"hftcore/internal/events"
	"hftcore/internal/fairvalue"
	"hftcore/internal/quote"
	"hftcore/pkg/fixedpoint"
)

// FXConverter translates a fair-value quote into the quoted instrument's
// currency. The identity converter is used when base currencies are
// equivalent (including the USD/USDT pair, see internal/fx).
type FXConverter interface {
	Convert(fv decimal.Decimal) decimal.Decimal
}

// IdentityFX is the nullable/no-op converter for same-currency instruments.
type IdentityFX struct{}

// Convert returns fv unchanged.
func (IdentityFX) Convert(fv decimal.Decimal) decimal.Decimal { return fv }

// NowFunc abstracts the monotonic clock for testability (cooldown deadlines).
type NowFunc func() time.Time

// DefaultCooldown is the pause duration after a full fill (§4.4, "typical
// 3 s").
const DefaultCooldown = 3 * time.Second

var bpDivisor = decimal.NewFromInt(10000)

// Engine computes a target QuotePair from a fair-value update following
// the algorithm in §4.4. It is pure with respect to its own inputs
// (params, fill counters, clock) plus the read-only quoted-instrument book
// consulted for hitting logic.
type Engine struct {
	mu         sync.RWMutex
	params     events.QuotingParameters
	tick       fixedpoint.TickSize
	fx         FXConverter
	quotedBook *book.OrderBook
	now        NowFunc
	cooldown   time.Duration

	totalBuyFills  atomic.Int64
	totalSellFills atomic.Int64
	pausedUntil    atomic.Int64 // UnixNano deadline; 0 means not paused

	logger *slog.Logger
}

// New constructs an Engine. fx may be nil (treated as IdentityFX); now may
// be nil (treated as time.Now).
func New(params events.QuotingParameters, tick fixedpoint.TickSize, fx FXConverter, quotedBook *book.OrderBook, now NowFunc, logger *slog.Logger) *Engine {
	if fx == nil {
		fx = IdentityFX{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		params:     params,
		tick:       tick,
		fx:         fx,
		quotedBook: quotedBook,
		now:        now,
		cooldown:   DefaultCooldown,
		logger:     logger.With("component", "engine", "instrument_id", params.InstrumentID),
	}
}

// SetCooldown overrides DefaultCooldown.
func (e *Engine) SetCooldown(d time.Duration) { e.cooldown = d }

// Params returns a copy of the engine's current tunables.
func (e *Engine) Params() events.QuotingParameters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// UpdateParams replaces the engine's tunables in place (used by the
// instance manager for a "mutate in place" deployment, §4.7).
func (e *Engine) UpdateParams(p events.QuotingParameters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p
}

// Paused reports whether the engine is inside its post-full-fill cooldown.
func (e *Engine) Paused() bool {
	until := e.pausedUntil.Load()
	return until != 0 && e.now().UnixNano() < until
}

// OnFill applies fill accounting (§4.4): the same-side counter increments
// by qty, the opposite-side counter decrements by qty (clamped at 0).
// Fills for other instruments are ignored. fullyFilled, when true, starts
// the cooldown.
func (e *Engine) OnFill(f events.Fill, fullyFilled bool) {
	if f.InstrumentID != e.Params().InstrumentID {
		return
	}

	qty := f.Quantity.Ticks()
	if f.Side == events.Buy {
		e.totalBuyFills.Add(qty)
		clampDown(&e.totalSellFills, qty)
	} else {
		e.totalSellFills.Add(qty)
		clampDown(&e.totalBuyFills, qty)
	}

	if fullyFilled {
		e.pausedUntil.Store(e.now().Add(e.cooldown).UnixNano())
		e.logger.Info("order fully filled, pausing", "cooldown", e.cooldown)
	}
}

func clampDown(counter *atomic.Int64, qty int64) {
	for {
		cur := counter.Load()
		next := cur - qty
		if next < 0 {
			next = 0
		}
		if counter.CompareAndSwap(cur, next) {
			return
		}
	}
}

// TotalBuyFills returns the running buy-fill counter in Quantity ticks.
func (e *Engine) TotalBuyFills() fixedpoint.Quantity {
	return fixedpoint.NewQuantity(e.totalBuyFills.Load())
}

// TotalSellFills returns the running sell-fill counter in Quantity ticks.
func (e *Engine) TotalSellFills() fixedpoint.Quantity {
	return fixedpoint.NewQuantity(e.totalSellFills.Load())
}

// OwnPrices carries the quoters' currently-resting prices, if any, so
// Pennying hitting logic can detect and preserve an already-favorable live
// quote instead of chasing its own order (§4.4 step 7).
type OwnPrices struct {
	Bid    fixedpoint.Price
	HasBid bool
	Ask    fixedpoint.Price
	HasAsk bool
}

// Compute runs the per-requote algorithm (§4.4 steps 1-8) against a fresh
// fair-value reading, returning the target QuotePair. ok is false if the
// engine is paused (step 1) — callers must not dispatch in that case.
func (e *Engine) Compute(fvChanged fairvalue.Changed, own OwnPrices) (pair events.QuotePair, ok bool) {
	if e.Paused() {
		return events.QuotePair{}, false
	}

	p := e.Params()
	fv := e.fx.Convert(fvChanged.FV)

	buyFills := e.totalBuyFills.Load()
	sellFills := e.totalSellFills.Load()
	orderSize := p.Size.Ticks()
	var nBuy, nSell int64
	if orderSize > 0 {
		nBuy = buyFills / orderSize
		nSell = sellFills / orderSize
	}
	adj := p.SkewBp.Mul(decimal.NewFromInt(nSell - nBuy))

	effectiveBidBp := p.BidSpreadBp.Add(adj)
	effectiveAskBp := p.AskSpreadBp.Add(adj)

	rawBid := fixedpoint.ApplyBp(fv, effectiveBidBp)
	rawAsk := fixedpoint.ApplyBp(fv, effectiveAskBp)

	bidPrice := fixedpoint.PriceFromDecimalFloor(rawBid, e.tick)
	askPrice := fixedpoint.PriceFromDecimalCeil(rawAsk, e.tick)

	if p.GroupingBp.IsPositive() {
		bidPrice = snapGroup(bidPrice, fv, p.GroupingBp, e.tick, false)
		askPrice = snapGroup(askPrice, fv, p.GroupingBp, e.tick, true)
	}

	if e.quotedBook != nil {
		bidPrice = e.applyHittingLogic(p.HittingLogic, events.Buy, bidPrice, own.Bid, own.HasBid)
		askPrice = e.applyHittingLogic(p.HittingLogic, events.Sell, askPrice, own.Ask, own.HasAsk)
	}

	bid := &events.Quote{Price: bidPrice, Quantity: p.Size}
	ask := &events.Quote{Price: askPrice, Quantity: p.Size}

	if p.MaxCumBidFills.IsPositive() && fixedpoint.NewQuantity(buyFills).Cmp(p.MaxCumBidFills) > 0 {
		bid = nil
	}
	if p.MaxCumAskFills.IsPositive() && fixedpoint.NewQuantity(sellFills).Cmp(p.MaxCumAskFills) > 0 {
		ask = nil
	}

	return events.QuotePair{InstrumentID: p.InstrumentID, Bid: bid, Ask: ask}, true
}

// snapGroup recomputes the dynamic group multiple from the live
// grouping_bp parameter on every call (unlike fairvalue.Grouped's
// lifetime-locked 1bp group size — §4.3 vs §4.4 step 6 are distinct
// mechanisms) and snaps price to it: floor for the bid side, ceil for ask.
func snapGroup(price fixedpoint.Price, fv decimal.Decimal, groupingBp decimal.Decimal, tick fixedpoint.TickSize, ceil bool) fixedpoint.Price {
	n := fv.Mul(groupingBp).Div(bpDivisor).Div(tick.Decimal()).Round(0)
	if n.LessThanOrEqual(decimal.NewFromInt(1)) {
		n = decimal.NewFromInt(1)
	}
	group := n.Mul(tick.Decimal())
	raw := price.Decimal(tick)
	multiple := raw.Div(group)
	var snapped decimal.Decimal
	if ceil {
		snapped = multiple.Ceil().Mul(group)
		return fixedpoint.PriceFromDecimalCeil(snapped, tick)
	}
	snapped = multiple.Floor().Mul(group)
	return fixedpoint.PriceFromDecimalFloor(snapped, tick)
}

// applyHittingLogic implements §4.4 step 7 against the quoted-instrument
// book's current best bid/ask. side selects which market best to compare
// against (Buy -> best bid, Sell -> best ask). ownPrice/hasOwn is the
// quoter's currently-resting price on this side, used only by Pennying to
// detect self-pennying.
func (e *Engine) applyHittingLogic(logic events.HittingLogic, side events.Side, price fixedpoint.Price, ownPrice fixedpoint.Price, hasOwn bool) fixedpoint.Price {
	if logic == events.AllowAll {
		return price
	}

	var marketBest fixedpoint.Price
	var haveBest bool
	if side == events.Buy {
		lvl, ok := e.quotedBook.BestBid()
		marketBest, haveBest = lvl.Price, ok
	} else {
		lvl, ok := e.quotedBook.BestAsk()
		marketBest, haveBest = lvl.Price, ok
	}
	if !haveBest {
		return price
	}

	switch logic {
	case events.OurBest:
		if side == events.Buy && price.Cmp(marketBest) > 0 {
			return marketBest
		}
		if side == events.Sell && price.Cmp(marketBest) < 0 {
			return marketBest
		}
		return price
	case events.Pennying:
		if side == events.Buy {
			if hasOwn && ownPrice.Cmp(marketBest) >= 0 {
				// our live order already sits at or better than market best:
				// self-pennying is prevented, leave it unchanged.
				return ownPrice
			}
			if price.Cmp(marketBest) > 0 {
				// our intent would cross/outdo the market best: pull to one
				// tick inside it instead.
				return marketBest.Add(1)
			}
			return price
		}
		if hasOwn && ownPrice.Cmp(marketBest) <= 0 {
			return ownPrice
		}
		if price.Cmp(marketBest) < 0 {
			return marketBest.Sub(1)
		}
		return price
	}
	return price
}

// MarketMaker owns a pair of Quoters for one instrument, dispatches the
// Engine's computed QuotePair to them, and wires fill/status accounting
// back into the Engine. It is the validating boundary between the pure
// algorithm and the side-effecting quoters (§4.4 step 9).
type MarketMaker struct {
	Engine    *Engine
	BidQuoter quote.Quoter
	AskQuoter quote.Quoter
}

// NewMarketMaker pairs an Engine with its bid/ask quoters.
func NewMarketMaker(e *Engine, bidQuoter, askQuoter quote.Quoter) *MarketMaker {
	return &MarketMaker{Engine: e, BidQuoter: bidQuoter, AskQuoter: askQuoter}
}

// OnFairValueChanged computes the target QuotePair and dispatches it to
// both quoters. If the engine is paused (cooldown), the requote cycle is
// skipped entirely: neither quoter is touched, so a resting order on the
// side that didn't just fully fill keeps its queue priority.
func (m *MarketMaker) OnFairValueChanged(ctx context.Context, fvChanged fairvalue.Changed) error {
	var own OwnPrices
	if pa, ok := m.BidQuoter.(quote.PriceAware); ok {
		own.Bid, own.HasBid = pa.CurrentPrice()
	}
	if pa, ok := m.AskQuoter.(quote.PriceAware); ok {
		own.Ask, own.HasAsk = pa.CurrentPrice()
	}

	pair, ok := m.Engine.Compute(fvChanged, own)
	if !ok {
		return nil
	}

	bidErr := m.BidQuoter.UpdateQuote(ctx, pair.Bid, false)
	askErr := m.AskQuoter.UpdateQuote(ctx, pair.Ask, false)
	if bidErr != nil {
		return bidErr
	}
	return askErr
}
