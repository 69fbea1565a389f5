package instance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hftcore/internal/engine"
	"hftcore/internal/events"
	"hftcore/internal/quote"
	"hftcore/pkg/fixedpoint"
)

// stubBuilder builds a MarketMaker out of two Log quoters so tests can
// inspect UpdateQuote calls without a gateway or router.
type stubBuilder struct {
	buildCount int
	failNext   bool
	lastBid    *quote.Log
	lastAsk    *quote.Log
}

func (b *stubBuilder) Build(_ context.Context, p events.QuotingParameters) (BuildResult, error) {
	b.buildCount++
	if b.failNext {
		b.failNext = false
		return BuildResult{}, errors.New("build failed")
	}
	bid := quote.NewLog(nil)
	ask := quote.NewLog(nil)
	b.lastBid, b.lastAsk = bid, ask
	e := engine.New(p, fixedpoint.NewTickSize(decimal.RequireFromString("0.5")), nil, nil, nil, nil)
	return BuildResult{
		MarketMaker:    engine.NewMarketMaker(e, bid, ask),
		FVProvider:     nil,
		QuotedExchange: p.BookName,
		FVExchange:     p.BookName,
	}, nil
}

func baseParams(instrumentID string) events.QuotingParameters {
	return events.QuotingParameters{
		InstrumentID: instrumentID,
		BookName:     "binance",
		AskSpreadBp:  decimal.NewFromInt(10),
		BidSpreadBp:  decimal.NewFromInt(-10),
		Size:         fixedpoint.NewQuantity(1),
		HittingLogic: events.AllowAll,
	}
}

func TestFirstDeployIsInactiveSecondIdenticalDeployActivates(t *testing.T) {
	t.Parallel()
	b := &stubBuilder{}
	m := New(b, nil, nil)
	ctx := context.Background()
	p := baseParams("BTC-USD")

	if err := m.UpdateInstanceParameters(ctx, p); err != nil {
		t.Fatalf("first deploy: %v", err)
	}
	if m.Active("BTC-USD") {
		t.Errorf("instance active after first deploy, want inactive")
	}

	if err := m.UpdateInstanceParameters(ctx, p); err != nil {
		t.Fatalf("second deploy: %v", err)
	}
	if !m.Active("BTC-USD") {
		t.Errorf("instance inactive after second identical deploy, want active")
	}
	if b.buildCount != 1 {
		t.Errorf("buildCount = %d, want 1 (tunable-only/identical updates mutate in place)", b.buildCount)
	}
}

func TestTunableOnlyChangeMutatesInPlaceAndToggles(t *testing.T) {
	t.Parallel()
	b := &stubBuilder{}
	m := New(b, nil, nil)
	ctx := context.Background()
	p := baseParams("BTC-USD")

	m.UpdateInstanceParameters(ctx, p)
	m.UpdateInstanceParameters(ctx, p) // now active

	p2 := p
	p2.AskSpreadBp = decimal.NewFromInt(20)
	if err := m.UpdateInstanceParameters(ctx, p2); err != nil {
		t.Fatalf("tunable update: %v", err)
	}
	if m.Active("BTC-USD") {
		t.Errorf("instance should toggle to inactive on a third update")
	}
	if b.buildCount != 1 {
		t.Errorf("buildCount = %d, want 1 (tunable change must not reconstruct)", b.buildCount)
	}

	result, ok := m.Instance("BTC-USD")
	if !ok {
		t.Fatalf("instance missing")
	}
	if got := result.MarketMaker.Engine.Params().AskSpreadBp; !got.Equal(p2.AskSpreadBp) {
		t.Errorf("engine params not mutated in place: AskSpreadBp = %v, want %v", got, p2.AskSpreadBp)
	}
}

func TestCoreChangeRetiresAndReconstructs(t *testing.T) {
	t.Parallel()
	b := &stubBuilder{}
	m := New(b, nil, nil)
	ctx := context.Background()
	p := baseParams("BTC-USD")

	m.UpdateInstanceParameters(ctx, p)
	m.UpdateInstanceParameters(ctx, p) // active, buildCount=1

	firstResult, _ := m.Instance("BTC-USD")

	p2 := p
	p2.FVModel = "vwap"
	if err := m.UpdateInstanceParameters(ctx, p2); err != nil {
		t.Fatalf("core change: %v", err)
	}
	if b.buildCount != 2 {
		t.Fatalf("buildCount = %d, want 2 after core-field change", b.buildCount)
	}
	if m.Active("BTC-USD") {
		t.Errorf("reconstructed instance must start inactive")
	}

	secondResult, _ := m.Instance("BTC-USD")
	if secondResult.MarketMaker == firstResult.MarketMaker {
		t.Errorf("core change must construct a fresh MarketMaker")
	}
}

func TestRetireInstanceCancelsLiveOrdersAndKeepsShell(t *testing.T) {
	t.Parallel()
	b := &stubBuilder{}
	m := New(b, nil, nil)
	ctx := context.Background()
	p := baseParams("BTC-USD")

	m.UpdateInstanceParameters(ctx, p)
	m.UpdateInstanceParameters(ctx, p) // active

	result, _ := m.Instance("BTC-USD")
	result.MarketMaker.BidQuoter.(*quote.Log).UpdateQuote(ctx, &events.Quote{Price: fixedpoint.NewPrice(100), Quantity: fixedpoint.NewQuantity(1)}, false)

	m.RetireInstance(ctx, "BTC-USD")

	if m.Active("BTC-USD") {
		t.Errorf("instance still active after retire")
	}
	if _, ok := m.Instance("BTC-USD"); !ok {
		t.Errorf("shell must remain for redeployment")
	}
	if got := result.MarketMaker.BidQuoter.(*quote.Log).LastQuote(); got != nil {
		t.Errorf("bid quoter not cancelled on retire: last quote = %v", got)
	}
}

func TestAdapterDisconnectRetiresMatchingExchangeOnly(t *testing.T) {
	t.Parallel()
	b := &stubBuilder{}
	m := New(b, nil, nil)
	ctx := context.Background()

	pBinance := baseParams("BTC-USD")
	pBinance.BookName = "binance"
	pOther := baseParams("ETH-USD")
	pOther.BookName = "coinbase"

	for _, p := range []events.QuotingParameters{pBinance, pOther} {
		m.UpdateInstanceParameters(ctx, p)
		m.UpdateInstanceParameters(ctx, p)
	}

	m.OnAdapterConnectionStateChanged(ctx, events.AdapterConnectionStateChanged{Connected: false, Exchange: "binance"})

	if m.Active("BTC-USD") {
		t.Errorf("binance instance should be retired on binance disconnect")
	}
	if !m.Active("ETH-USD") {
		t.Errorf("coinbase instance should be unaffected by binance disconnect")
	}
}

func TestAdapterReconnectRedeploysAfterStabilizationDelay(t *testing.T) {
	t.Parallel()
	b := &stubBuilder{}
	var scheduled func()
	var scheduledDelay time.Duration
	fakeAfter := func(d time.Duration, f func()) *time.Timer {
		scheduledDelay = d
		scheduled = f
		return time.NewTimer(time.Hour) // never fires on its own; test invokes scheduled() directly
	}
	m := New(b, nil, fakeAfter)
	ctx := context.Background()
	p := baseParams("BTC-USD")
	m.UpdateInstanceParameters(ctx, p)
	m.UpdateInstanceParameters(ctx, p) // active

	m.OnAdapterConnectionStateChanged(ctx, events.AdapterConnectionStateChanged{Connected: false, Exchange: "binance"})
	if m.Active("BTC-USD") {
		t.Fatalf("expected instance retired before reconnect")
	}

	m.OnAdapterConnectionStateChanged(ctx, events.AdapterConnectionStateChanged{Connected: true, Exchange: "binance"})
	if scheduled == nil {
		t.Fatalf("reconnect did not schedule a redeploy")
	}
	if scheduledDelay != ReconnectStabilizationDelay {
		t.Errorf("scheduled delay = %v, want %v", scheduledDelay, ReconnectStabilizationDelay)
	}
	if m.Active("BTC-USD") {
		t.Errorf("instance must stay inactive until the stabilization delay elapses")
	}

	scheduled()
	if !m.Active("BTC-USD") {
		t.Errorf("instance must be redeployed and active once the stabilization callback runs")
	}
	if b.buildCount != 2 {
		t.Errorf("buildCount = %d, want 2 (redeploy rebuilds the instance)", b.buildCount)
	}
}

func TestBuildFailurePropagatesOnFirstDeploy(t *testing.T) {
	t.Parallel()
	b := &stubBuilder{failNext: true}
	m := New(b, nil, nil)
	ctx := context.Background()
	p := baseParams("BTC-USD")

	if err := m.UpdateInstanceParameters(ctx, p); err == nil {
		t.Fatalf("expected error from failed build")
	}
	if _, ok := m.Instance("BTC-USD"); ok {
		t.Errorf("no instance should be recorded after a failed first build")
	}
}
