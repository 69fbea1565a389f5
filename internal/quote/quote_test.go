package quote

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"hftcore/internal/events"
	"hftcore/internal/order"
	"hftcore/internal/router"
	"hftcore/pkg/fixedpoint"
)

type seqIDGen struct{ n int64 }

func (g *seqIDGen) NextClientOrderID() string {
	return fmt.Sprintf("c%d", atomic.AddInt64(&g.n, 1))
}

// fakeGateway acks every submit/replace immediately and synchronously via
// the order's own OnReport, so tests can drive the state machine without a
// real network boundary.
type fakeGateway struct {
	submits  int
	replaces int
	cancels  int
	rejectAll bool
}

func (g *fakeGateway) SubmitOrder(_ context.Context, o *order.Order) error {
	g.submits++
	if g.rejectAll {
		o.OnReport(events.OrderStatusReport{Status: events.ReportRejected})
		return nil
	}
	o.OnReport(events.OrderStatusReport{Status: events.ReportAck, ExchangeOrderID: "e-" + o.ClientOrderID})
	return nil
}

func (g *fakeGateway) ReplaceOrder(_ context.Context, o *order.Order, _ fixedpoint.Price, _ fixedpoint.Quantity) error {
	g.replaces++
	o.OnReport(events.OrderStatusReport{Status: events.ReportAck})
	return nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, o *order.Order) error {
	g.cancels++
	o.OnReport(events.OrderStatusReport{Status: events.ReportCancelled})
	return nil
}

func newTestParams(gw Gateway, side events.Side) Params {
	return Params{
		InstrumentID: "BTC-USD",
		BookName:     "binance",
		Side:         side,
		TickSize:     fixedpoint.NewTickSize(decimal.RequireFromString("0.5")),
		Router:       router.New(&seqIDGen{}, order.NewFactory(), 20, nil),
		Gateway:      gw,
	}
}

func q(price, qty int64) *events.Quote {
	return &events.Quote{Price: fixedpoint.NewPrice(price), Quantity: fixedpoint.NewQuantity(qty)}
}

func TestSingleSubmitsThenReplacesThenCancels(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	s := NewSingle(newTestParams(gw, events.Buy))
	ctx := context.Background()

	if err := s.UpdateQuote(ctx, q(100, 10), false); err != nil {
		t.Fatalf("initial submit: %v", err)
	}
	if gw.submits != 1 {
		t.Fatalf("submits = %d, want 1", gw.submits)
	}

	if err := s.UpdateQuote(ctx, q(101, 10), false); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if gw.replaces != 1 {
		t.Errorf("replaces = %d, want 1", gw.replaces)
	}

	// identical target: no-op
	if err := s.UpdateQuote(ctx, q(101, 10), false); err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if gw.replaces != 1 {
		t.Errorf("replaces = %d after identical target, want still 1", gw.replaces)
	}

	if err := s.UpdateQuote(ctx, nil, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gw.cancels != 1 {
		t.Errorf("cancels = %d, want 1", gw.cancels)
	}

	// target reappears after cancel: must submit a fresh order
	if err := s.UpdateQuote(ctx, q(102, 10), false); err != nil {
		t.Fatalf("resubmit after cancel: %v", err)
	}
	if gw.submits != 2 {
		t.Errorf("submits = %d, want 2 after resubmit", gw.submits)
	}
}

func TestGroupedSingleSkipsReplaceWhenGroupedPriceUnchanged(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	groupSize := decimal.RequireFromString("1.0")
	g := NewGroupedSingle(newTestParams(gw, events.Buy),
		func() decimal.Decimal { return groupSize },
		func() (decimal.Decimal, bool) { return decimal.Zero, false })
	ctx := context.Background()

	// tick=0.5: price 100 (=50.0 decimal) floors to group 1.0 -> 50.0
	if err := g.UpdateQuote(ctx, q(100, 10), false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gw.submits != 1 {
		t.Fatalf("submits = %d, want 1", gw.submits)
	}

	// price 101 (=50.5) still floors into the same 1.0-wide group [50,51)
	if err := g.UpdateQuote(ctx, q(101, 10), false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if gw.replaces != 0 {
		t.Errorf("replaces = %d, want 0 (grouped price unchanged)", gw.replaces)
	}

	// price 104 (=52.0) moves to a new group: must replace
	if err := g.UpdateQuote(ctx, q(104, 10), false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if gw.replaces != 1 {
		t.Errorf("replaces = %d, want 1 after crossing group boundary", gw.replaces)
	}
}

func TestLayeredCreatesOutermostFirst(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	var createdOrder []fixedpoint.Price
	p := newTestParams(gw, events.Buy)

	l := NewLayered(p, 3, decimal.NewFromInt(10)) // 10bp spacing
	ctx := context.Background()

	if err := l.UpdateQuote(ctx, q(20000, 10), false); err != nil {
		t.Fatalf("build layers: %v", err)
	}
	if len(l.layers) != 3 {
		t.Fatalf("len(layers) = %d, want 3", len(l.layers))
	}
	for _, o := range l.layers {
		createdOrder = append(createdOrder, o.Price)
	}
	// outermost (furthest from center, lowest bid price) must be first
	for i := 1; i < len(createdOrder); i++ {
		if createdOrder[i-1].Cmp(createdOrder[i]) >= 0 {
			t.Errorf("layer prices not increasing toward center: %v", createdOrder)
		}
	}
}

func TestLayeredRebuildsOnSignificantMove(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	l := NewLayered(newTestParams(gw, events.Sell), 2, decimal.NewFromInt(5))
	ctx := context.Background()

	l.UpdateQuote(ctx, q(20000, 10), false)
	firstSubmits := gw.submits

	// same target: no rebuild
	l.UpdateQuote(ctx, q(20000, 10), false)
	if gw.submits != firstSubmits {
		t.Errorf("submits changed on unchanged target: %d -> %d", firstSubmits, gw.submits)
	}

	// large jump: must cancel and rebuild
	l.UpdateQuote(ctx, q(40000, 10), false)
	if gw.cancels == 0 {
		t.Errorf("expected cancellation on significant price move")
	}
}

func TestShadowAlwaysSubmitsFreshIOCOnChange(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	s := NewShadow(newTestParams(gw, events.Buy))
	ctx := context.Background()

	s.UpdateQuote(ctx, q(100, 10), false)
	if s.cur.Kind != order.IOC {
		t.Errorf("Shadow order kind = %v, want IOC", s.cur.Kind)
	}
	if gw.submits != 1 {
		t.Fatalf("submits = %d, want 1", gw.submits)
	}

	s.UpdateQuote(ctx, q(101, 10), false)
	if gw.submits != 2 {
		t.Errorf("submits = %d, want 2 on changed target", gw.submits)
	}
}

func TestShadowMakerCancelsOnlyWhenOutquoted(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	best := fixedpoint.NewPrice(100)
	sm := NewShadowMaker(newTestParams(gw, events.Buy), func() (fixedpoint.Price, bool) { return best, true })
	ctx := context.Background()

	sm.UpdateQuote(ctx, q(100, 10), false)
	if gw.submits != 1 {
		t.Fatalf("submits = %d, want 1", gw.submits)
	}

	// still at best: no cancel
	sm.UpdateQuote(ctx, q(100, 10), false)
	if gw.cancels != 0 {
		t.Errorf("cancelled while still at best price")
	}

	// market moves ahead of us: outquoted, must cancel
	best = fixedpoint.NewPrice(101)
	sm.UpdateQuote(ctx, q(100, 10), false)
	if gw.cancels != 1 {
		t.Errorf("cancels = %d, want 1 once outquoted", gw.cancels)
	}
}
