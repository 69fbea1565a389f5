package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

// wireEnvelope peeks at a frame's discriminator before committing to a
// concrete decode, mirroring the teacher's event_type-tagged ws protocol.
type wireEnvelope struct {
	EventType string `json:"event_type"`
}

type wireLevel struct {
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type wireSnapshotEvent struct {
	InstrumentID string      `json:"instrument_id"`
	Seq          uint64      `json:"seq"`
	TsMicros     int64       `json:"ts_micros"`
	Levels       []wireLevel `json:"levels"`
}

type wireDeltaEvent struct {
	InstrumentID string      `json:"instrument_id"`
	PrevSeq      uint64      `json:"prev_seq"`
	Seq          uint64      `json:"seq"`
	TsMicros     int64       `json:"ts_micros"`
	Levels       []wireLevel `json:"levels"`
}

type wireTradeEvent struct {
	InstrumentID string `json:"instrument_id"`
	Seq          uint64 `json:"seq"`
	TsMicros     int64  `json:"ts_micros"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
}

type wireOrderEvent struct {
	ClientOrderID   string `json:"client_order_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
	InstrumentID    string `json:"instrument_id"`
	Status          string `json:"status"`
	LastPrice       string `json:"last_price"`
	LastQuantity    string `json:"last_quantity"`
	LeavesQuantity  string `json:"leaves_quantity"`
	ExecutionID     string `json:"execution_id"`
	Reason          string `json:"reason"`
}

type wireSubscribeMsg struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

type wireUnsubscribeMsg struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// JSONDecoder is the default Decoder (§6): an event_type-tagged JSON
// envelope carrying book snapshots, incremental deltas, trades, and order
// reports, with prices/quantities given as decimal strings converted to
// fixed-point ticks via the instrument's TickSize.
//
// Grounded on the teacher's WSFeed.dispatchMessage envelope-peek-then-
// unmarshal pattern (internal/exchange/ws.go), generalized from
// Polymarket's book/price_change/trade/order event set into the
// specification's Snapshot/Delta/Trade/OrderReport split, and from
// float64 prices into fixed-point ticks resolved per instrument.
type JSONDecoder struct {
	exchange string
	tickOf   func(instrumentID string) (fixedpoint.TickSize, bool)
}

// NewJSONDecoder constructs a JSONDecoder. tickOf resolves an
// instrument's tick size (typically internal/instrument.Repository.ByID);
// a miss causes the frame to be dropped as unparsable.
func NewJSONDecoder(exchange string, tickOf func(instrumentID string) (fixedpoint.TickSize, bool)) *JSONDecoder {
	return &JSONDecoder{exchange: exchange, tickOf: tickOf}
}

func (d *JSONDecoder) Decode(raw []byte) (md events.MarketDataEvent, isMD bool, report events.OrderStatusReport, isReport bool, err error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return events.MarketDataEvent{}, false, events.OrderStatusReport{}, false, nil
	}

	switch env.EventType {
	case "snapshot":
		var w wireSnapshotEvent
		if err := json.Unmarshal(raw, &w); err != nil {
			return md, false, report, false, fmt.Errorf("feed: decode snapshot: %w", err)
		}
		md, err = d.buildMarketDataEvent(events.Snapshot, w.InstrumentID, 0, w.Seq, w.TsMicros, w.Levels)
		if err != nil {
			return md, false, report, false, err
		}
		return md, true, report, false, nil

	case "delta":
		var w wireDeltaEvent
		if err := json.Unmarshal(raw, &w); err != nil {
			return md, false, report, false, fmt.Errorf("feed: decode delta: %w", err)
		}
		md, err = d.buildMarketDataEvent(events.Update, w.InstrumentID, w.PrevSeq, w.Seq, w.TsMicros, w.Levels)
		if err != nil {
			return md, false, report, false, err
		}
		return md, true, report, false, nil

	case "trade":
		var w wireTradeEvent
		if err := json.Unmarshal(raw, &w); err != nil {
			return md, false, report, false, fmt.Errorf("feed: decode trade: %w", err)
		}
		md, err = d.buildMarketDataEvent(events.Trade, w.InstrumentID, 0, w.Seq, w.TsMicros, []wireLevel{
			{Side: w.Side, Price: w.Price, Quantity: w.Quantity},
		})
		if err != nil {
			return md, false, report, false, err
		}
		return md, true, report, false, nil

	case "order":
		var w wireOrderEvent
		if err := json.Unmarshal(raw, &w); err != nil {
			return md, false, report, false, fmt.Errorf("feed: decode order: %w", err)
		}
		tick, ok := d.tickOf(w.InstrumentID)
		if !ok {
			return md, false, report, false, fmt.Errorf("feed: unknown instrument %q in order report", w.InstrumentID)
		}
		report, err = buildOrderStatusReport(w, tick)
		if err != nil {
			return md, false, report, false, err
		}
		return md, false, report, true, nil

	case "last_trade_price", "tick_size_change", "best_bid_ask", "ping", "pong":
		return md, false, report, false, nil

	default:
		return md, false, report, false, nil
	}
}

func (d *JSONDecoder) buildMarketDataEvent(kind events.EventKind, instrumentID string, prevSeq, seq uint64, tsMicros int64, levels []wireLevel) (events.MarketDataEvent, error) {
	tick, ok := d.tickOf(instrumentID)
	if !ok {
		return events.MarketDataEvent{}, fmt.Errorf("feed: unknown instrument %q", instrumentID)
	}

	entries := make([]events.PriceLevelEntry, 0, len(levels))
	for _, lvl := range levels {
		side, err := parseSide(lvl.Side)
		if err != nil {
			return events.MarketDataEvent{}, err
		}
		price, err := parsePrice(lvl.Price, tick)
		if err != nil {
			return events.MarketDataEvent{}, err
		}
		qty, err := parseQuantity(lvl.Quantity)
		if err != nil {
			return events.MarketDataEvent{}, err
		}
		entries = append(entries, events.PriceLevelEntry{Side: side, Price: price, Quantity: qty})
	}

	md := events.MarketDataEvent{
		PrevSeq:      prevSeq,
		Seq:          seq,
		TsMicros:     tsMicros,
		Kind:         kind,
		InstrumentID: instrumentID,
		Exchange:     d.exchange,
	}
	md.SetUpdates(entries)
	return md, nil
}

func buildOrderStatusReport(w wireOrderEvent, tick fixedpoint.TickSize) (events.OrderStatusReport, error) {
	status, err := parseReportStatus(w.Status)
	if err != nil {
		return events.OrderStatusReport{}, err
	}
	lastPrice, err := parsePrice(w.LastPrice, tick)
	if err != nil {
		return events.OrderStatusReport{}, err
	}
	lastQty, err := parseQuantity(w.LastQuantity)
	if err != nil {
		return events.OrderStatusReport{}, err
	}
	leavesQty, err := parseQuantity(w.LeavesQuantity)
	if err != nil {
		return events.OrderStatusReport{}, err
	}

	return events.OrderStatusReport{
		ClientOrderID:   w.ClientOrderID,
		ExchangeOrderID: w.ExchangeOrderID,
		InstrumentID:    w.InstrumentID,
		Status:          status,
		LastQuantity:    lastQty,
		LastPrice:       lastPrice,
		LeavesQuantity:  leavesQty,
		ExecutionID:     w.ExecutionID,
		Reason:          w.Reason,
		Ts:              time.Now(),
	}, nil
}

func parseSide(s string) (events.Side, error) {
	switch s {
	case "buy", "bid":
		return events.Buy, nil
	case "sell", "ask":
		return events.Sell, nil
	default:
		return 0, fmt.Errorf("feed: unknown side %q", s)
	}
}

func parseReportStatus(s string) (events.ReportStatus, error) {
	switch s {
	case "ack", "new":
		return events.ReportAck, nil
	case "partially_filled":
		return events.ReportPartiallyFilled, nil
	case "filled":
		return events.ReportFilled, nil
	case "cancelled", "canceled":
		return events.ReportCancelled, nil
	case "rejected":
		return events.ReportRejected, nil
	case "replaced":
		return events.ReportReplaced, nil
	default:
		return 0, fmt.Errorf("feed: unknown report status %q", s)
	}
}

func parsePrice(s string, tick fixedpoint.TickSize) (fixedpoint.Price, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("feed: parse price %q: %w", s, err)
	}
	return fixedpoint.PriceFromDecimalRound(d, tick), nil
}

func parseQuantity(s string) (fixedpoint.Quantity, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("feed: parse quantity %q: %w", s, err)
	}
	return fixedpoint.QuantityFromDecimal(d), nil
}

func (d *JSONDecoder) SubscribeMessage(topics []string) (any, error) {
	return wireSubscribeMsg{Type: "subscribe", Topics: topics}, nil
}

func (d *JSONDecoder) UnsubscribeMessage(topics []string) (any, error) {
	return wireUnsubscribeMsg{Type: "unsubscribe", Topics: topics}, nil
}
