package feed

import (
	"testing"

	"github.com/shopspring/decimal"

	"hftcore/pkg/fixedpoint"
)

func fixedTick(instrumentID string) (fixedpoint.TickSize, bool) {
	if instrumentID != "BTC-USD" {
		return fixedpoint.TickSize{}, false
	}
	return fixedpoint.NewTickSize(decimal.NewFromFloat(0.01)), true
}

func TestDecodeSnapshotBuildsMarketDataEvent(t *testing.T) {
	t.Parallel()
	d := NewJSONDecoder("binance", fixedTick)
	raw := []byte(`{"event_type":"snapshot","instrument_id":"BTC-USD","seq":5,"ts_micros":100,
		"levels":[{"side":"buy","price":"100.00","quantity":"1.5"},{"side":"sell","price":"100.50","quantity":"2"}]}`)

	md, isMD, _, isReport, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !isMD || isReport {
		t.Fatalf("expected market data event, got isMD=%v isReport=%v", isMD, isReport)
	}
	if md.InstrumentID != "BTC-USD" || md.Seq != 5 {
		t.Errorf("unexpected event: %+v", md)
	}
	if len(md.Updates()) != 2 {
		t.Fatalf("Updates() len = %d, want 2", len(md.Updates()))
	}
}

func TestDecodeOrderEventBuildsReport(t *testing.T) {
	t.Parallel()
	d := NewJSONDecoder("binance", fixedTick)
	raw := []byte(`{"event_type":"order","client_order_id":"c1","exchange_order_id":"e1",
		"instrument_id":"BTC-USD","status":"filled","last_price":"100.00","last_quantity":"1",
		"leaves_quantity":"0","execution_id":"x1"}`)

	_, isMD, report, isReport, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if isMD || !isReport {
		t.Fatalf("expected order report, got isMD=%v isReport=%v", isMD, isReport)
	}
	if report.ClientOrderID != "c1" || report.ExecutionID != "x1" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestDecodeIgnoredEventTypeReturnsNeither(t *testing.T) {
	t.Parallel()
	d := NewJSONDecoder("binance", fixedTick)
	raw := []byte(`{"event_type":"best_bid_ask","instrument_id":"BTC-USD"}`)

	_, isMD, _, isReport, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if isMD || isReport {
		t.Errorf("expected informational event to be dropped, got isMD=%v isReport=%v", isMD, isReport)
	}
}

func TestDecodeUnknownInstrumentErrors(t *testing.T) {
	t.Parallel()
	d := NewJSONDecoder("binance", fixedTick)
	raw := []byte(`{"event_type":"snapshot","instrument_id":"ETH-USD","seq":1,"levels":[]}`)

	if _, _, _, _, err := d.Decode(raw); err == nil {
		t.Errorf("expected error for unknown instrument")
	}
}

func TestDecodeNonJSONFrameIsSilentlyDropped(t *testing.T) {
	t.Parallel()
	d := NewJSONDecoder("binance", fixedTick)
	_, isMD, _, isReport, err := d.Decode([]byte("not json"))
	if err != nil {
		t.Errorf("expected nil error for non-json frame, got %v", err)
	}
	if isMD || isReport {
		t.Errorf("expected non-json frame to be dropped")
	}
}

func TestSubscribeMessageIncludesTopics(t *testing.T) {
	t.Parallel()
	d := NewJSONDecoder("binance", fixedTick)
	msg, err := d.SubscribeMessage([]string{"BTC-USD"})
	if err != nil {
		t.Fatalf("SubscribeMessage: %v", err)
	}
	sub, ok := msg.(wireSubscribeMsg)
	if !ok {
		t.Fatalf("unexpected message type %T", msg)
	}
	if len(sub.Topics) != 1 || sub.Topics[0] != "BTC-USD" {
		t.Errorf("unexpected topics: %+v", sub.Topics)
	}
}
