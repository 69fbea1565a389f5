// Package app is the composition root's reference Builder (§4.7): it wires
// an events.QuotingParameters entry into a running engine.MarketMaker plus
// its fairvalue.Provider, using the routers/gateways assembled at startup
// (cmd/quoter/main.go) and the distributor's book registry.
//
// Grounded on the teacher's Engine.startMarketLocked (internal/engine/engine.go),
// which wires one market's strategy, book, and exchange clients together
// under the slots map; generalized here from "one hard-coded Polymarket
// client" into "whichever exchange's resources the config names," and from
// the Avellaneda-Stoikov single quoting style into a dispatch over every
// QuoterType the specification defines.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"hftcore/internal/book"
	"hftcore/internal/distributor"
	"hftcore/internal/engine"
	"hftcore/internal/events"
	"hftcore/internal/fairvalue"
	"hftcore/internal/fx"
	"hftcore/internal/instance"
	"hftcore/internal/instrument"
	"hftcore/internal/quote"
	"hftcore/internal/router"
	"hftcore/pkg/fixedpoint"
)

// bookCapacity is the default per-instrument book depth the builder
// allocates; independent of the wire-level BookSide.maxDepth default, kept
// generous since these books back live quoting rather than deep analytics.
const bookCapacity = 1000

// Builder implements instance.Builder, wiring a QuotingParameters entry
// against the shared instrument repository, the per-exchange order
// routers, the per-instrument order gateways, the distributor (for
// book/FV registration), and a shared FX rate graph.
//
// Routers are shared per exchange (one live-order registry per venue);
// gateways are resolved per instrument because a gateway.Gateway is bound
// to a single TickSize at construction (internal/gateway.New) and one
// exchange typically lists instruments with different tick sizes.
type Builder struct {
	instruments *instrument.Repository
	routers     map[string]*router.Router // keyed by exchange/market
	gateways    map[string]quote.Gateway  // keyed by instrument_id
	dist        *distributor.Distributor
	fxConv      *fx.Converter
	logger      *slog.Logger
}

// New constructs a Builder. fxConv may be nil; every instance then quotes
// with engine.IdentityFX, which is only correct when every instrument's
// quote currency matches its FV instrument's quote currency.
func New(instruments *instrument.Repository, routers map[string]*router.Router, gateways map[string]quote.Gateway, dist *distributor.Distributor, fxConv *fx.Converter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		instruments: instruments,
		routers:     routers,
		gateways:    gateways,
		dist:        dist,
		fxConv:      fxConv,
		logger:      logger.With("component", "builder"),
	}
}

// Build constructs the engine/quoters/FV-provider wiring named by p,
// registers the FV provider against the FV instrument's distributor
// binding, and returns the exchanges each side lives on so the instance
// manager can react to connection-state changes.
func (b *Builder) Build(ctx context.Context, p events.QuotingParameters) (instance.BuildResult, error) {
	quotedInst, ok := b.instruments.ByID(p.InstrumentID)
	if !ok {
		return instance.BuildResult{}, fmt.Errorf("app: unknown instrument %q", p.InstrumentID)
	}
	fvInstID := p.FVInstrumentID
	if fvInstID == "" {
		fvInstID = p.InstrumentID
	}
	fvInst, ok := b.instruments.ByID(fvInstID)
	if !ok {
		return instance.BuildResult{}, fmt.Errorf("app: unknown FV instrument %q", fvInstID)
	}

	quotedRouter, ok := b.routers[quotedInst.Market]
	if !ok {
		return instance.BuildResult{}, fmt.Errorf("app: no router for exchange %q", quotedInst.Market)
	}
	quotedGateway, ok := b.gateways[quotedInst.InstrumentID]
	if !ok {
		return instance.BuildResult{}, fmt.Errorf("app: no gateway for instrument %q", quotedInst.InstrumentID)
	}
	if _, ok := b.routers[fvInst.Market]; !ok {
		return instance.BuildResult{}, fmt.Errorf("app: no router for FV exchange %q", fvInst.Market)
	}

	quotedBook := b.registeredBook(p.InstrumentID)
	var fvBook *book.OrderBook
	if fvInstID == p.InstrumentID {
		fvBook = quotedBook
	} else {
		fvBook = b.registeredBook(fvInstID)
	}

	provider, err := buildProvider(p, fvInstID, fvInst.MinimumPriceVariation)
	if err != nil {
		return instance.BuildResult{}, err
	}

	var conv engine.FXConverter
	if b.fxConv != nil && fvInst.QuoteCurrency != quotedInst.QuoteCurrency {
		conv = fx.NewPair(b.fxConv, fvInst.QuoteCurrency, quotedInst.QuoteCurrency)
	}
	eng := engine.New(p, quotedInst.MinimumPriceVariation, conv, quotedBook, nil, b.logger)

	bidQuoter := b.buildQuoter(p, events.Buy, p.BidQuoterType, quotedInst, quotedRouter, quotedGateway, quotedBook, provider)
	askQuoter := b.buildQuoter(p, events.Sell, p.AskQuoterType, quotedInst, quotedRouter, quotedGateway, quotedBook, provider)
	mm := engine.NewMarketMaker(eng, bidQuoter, askQuoter)

	b.dist.RegisterProvider(fvBook.InstrumentID(), provider, func(c fairvalue.Changed) {
		if err := mm.OnFairValueChanged(ctx, c); err != nil {
			b.logger.Warn("fair value dispatch failed", "instrument_id", p.InstrumentID, "error", err)
		}
	})

	return instance.BuildResult{
		MarketMaker:    mm,
		FVProvider:     provider,
		QuotedExchange: quotedInst.Market,
		FVExchange:     fvInst.Market,
	}, nil
}

// registeredBook returns the distributor's book for instrumentID,
// allocating and registering a fresh one the first time it's requested and
// reusing the existing one on every subsequent call (two quoting
// instances may share a book, e.g. an index-FV instrument quoted by
// several instruments).
func (b *Builder) registeredBook(instrumentID string) *book.OrderBook {
	if bk, ok := b.dist.Book(instrumentID); ok {
		return bk
	}
	bk := book.NewOrderBook(instrumentID, bookCapacity)
	b.dist.RegisterBook(bk)
	return bk
}

func buildProvider(p events.QuotingParameters, fvInstID string, tick fixedpoint.TickSize) (fairvalue.Provider, error) {
	switch p.FVModel {
	case "", "midp":
		return fairvalue.NewMidp(fvInstID, tick), nil
	case "best_bid":
		return fairvalue.NewBestMidp(fvInstID, tick, events.Buy), nil
	case "best_ask":
		return fairvalue.NewBestMidp(fvInstID, tick, events.Sell), nil
	case "vwap":
		return fairvalue.NewVwapMidp(fvInstID, tick, p.Depth), nil
	case "grouped":
		return fairvalue.NewGrouped(fvInstID, tick), nil
	default:
		return nil, fmt.Errorf("app: unknown fv_model %q", p.FVModel)
	}
}

func (b *Builder) buildQuoter(p events.QuotingParameters, side events.Side, qt events.QuoterType, inst instrument.Instrument, rtr *router.Router, gw quote.Gateway, quotedBook *book.OrderBook, provider fairvalue.Provider) quote.Quoter {
	params := quote.Params{
		InstrumentID: p.InstrumentID,
		BookName:     p.BookName,
		Side:         side,
		TickSize:     inst.MinimumPriceVariation,
		Router:       rtr,
		Gateway:      gw,
		Logger:       b.logger,
	}

	switch qt {
	case events.SingleQuoterType:
		return quote.NewSingle(params)
	case events.GroupedSingleQuoterType:
		grouped, ok := provider.(*fairvalue.Grouped)
		if !ok {
			b.logger.Warn("grouped quoter requested without a Grouped fv provider, falling back to Single", "instrument_id", p.InstrumentID)
			return quote.NewSingle(params)
		}
		return quote.NewGroupedSingle(params,
			func() decimal.Decimal { return grouped.GroupSize() },
			func() (decimal.Decimal, bool) { return quotedBook.MidPrice(inst.MinimumPriceVariation) },
		)
	case events.LayeredQuoterType:
		return quote.NewLayered(params, p.Depth, p.GroupingBp)
	case events.ShadowQuoterType:
		return quote.NewShadow(params)
	case events.ShadowMakerQuoterType:
		return quote.NewShadowMaker(params, func() (fixedpoint.Price, bool) {
			return bestPriceForSide(quotedBook, side)
		})
	default:
		return quote.NewLog(nil)
	}
}

func bestPriceForSide(b *book.OrderBook, side events.Side) (fixedpoint.Price, bool) {
	if side == events.Buy {
		lvl, ok := b.BestBid()
		return lvl.Price, ok
	}
	lvl, ok := b.BestAsk()
	return lvl.Price, ok
}
