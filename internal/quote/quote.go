// Package quote implements the Quoter variants (§4.5): Log, Single,
// GroupedSingle, Layered/Multi, Shadow and ShadowMaker. Each owns the live
// order(s) resting against a target price on one side of one instrument and
// reconciles them against a fresh target on every call.
//
// Grounded on the teacher's strategy.Maker.reconcileOrders diff-and-cancel
// pattern (internal/strategy/maker.go), generalized from its single
// bid/ask pair into the shared update_quote(target, is_buy_taker, ctx)
// contract and specialized per variant.
package quote

import (
	"context"
	"log/slog"

	"hftcore/internal/events"
	"hftcore/internal/order"
	"hftcore/internal/router"
	"hftcore/pkg/fixedpoint"
)

// Gateway is the injected order-transport boundary. Reference
// implementation: internal/gateway (resty + HMAC auth). Every method
// suspends only at the network I/O point; book/order bookkeeping around it
// is synchronous (§5).
type Gateway interface {
	SubmitOrder(ctx context.Context, o *order.Order) error
	ReplaceOrder(ctx context.Context, o *order.Order, price fixedpoint.Price, qty fixedpoint.Quantity) error
	CancelOrder(ctx context.Context, o *order.Order) error
}

// Quoter is the contract every variant implements (§4.5). target == nil
// means "no quote this side; cancel any live order." isBuyTaker indicates
// whether the last observed trade lifted the offer (true) or hit the bid
// (false); Log passes it to its callback, and the other variants in this
// package ignore it.
type Quoter interface {
	UpdateQuote(ctx context.Context, target *events.Quote, isBuyTaker bool) error
}

// PriceAware is implemented by single-order quoters so the engine's
// Pennying hitting logic can compare its computed target against the
// order actually resting on the book and avoid chasing its own quote
// (§4.4 step 7, "self-pennying is prevented"). Layered and Log do not
// implement it: a layered book has no single current price, and Log never
// places a real order.
type PriceAware interface {
	CurrentPrice() (fixedpoint.Price, bool)
}

// Params bundles the fields every non-Log quoter needs to build and
// register an order.
type Params struct {
	InstrumentID string
	BookName     string
	Side         events.Side
	TickSize     fixedpoint.TickSize
	Router       *router.Router
	Gateway      Gateway
	Logger       *slog.Logger
}

func (p Params) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger.With("component", "quoter", "instrument_id", p.InstrumentID, "side", p.Side)
}

func liveOrder(o *order.Order) bool {
	return o != nil && o.SnapshotStatus().Live()
}

func terminalOrder(o *order.Order) bool {
	return o != nil && o.SnapshotStatus().Terminal()
}
