// Package events defines the cache-line-friendly value records that flow
// between pipeline stages: batched market-data updates, order status
// reports, fills, connection-state changes, and the quoting-parameter
// value object shared by the engine and the instance manager.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"hftcore/pkg/fixedpoint"
)

// Side identifies which side of a book or order.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// EventKind discriminates the kind of market-data event carried in a batch.
type EventKind uint8

const (
	Add EventKind = iota
	Update
	Delete
	Trade
	Snapshot
)

func (k EventKind) String() string {
	switch k {
	case Add:
		return "Add"
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	case Trade:
		return "Trade"
	case Snapshot:
		return "Snapshot"
	default:
		return "Unknown"
	}
}

// MaxInlineUpdates bounds the array embedded directly in a MarketDataEvent.
// Event kinds other than Snapshot never exceed this in practice; a Snapshot
// whose level count exceeds it falls back to a heap-allocated Overflow slice
// rather than truncating (see SPEC_FULL §9).
const MaxInlineUpdates = 40

// PriceLevelEntry is a single {side, price, quantity} update within a
// MarketDataEvent batch.
type PriceLevelEntry struct {
	Side     Side
	Price    fixedpoint.Price
	Quantity fixedpoint.Quantity
}

// MarketDataEvent is a batched market-data update. Carrying a batch avoids
// a per-level allocation on the hot path; the Inline array holds up to
// MaxInlineUpdates entries without escaping to the heap, and Overflow is
// used only when UpdateCount exceeds that cap.
type MarketDataEvent struct {
	PrevSeq      uint64
	Seq          uint64
	TsMicros     int64
	Kind         EventKind
	InstrumentID string
	Exchange     string
	TopicID      string
	UpdateCount  int
	Inline       [MaxInlineUpdates]PriceLevelEntry
	Overflow     []PriceLevelEntry
}

// Updates returns the batch's entries regardless of whether they live in
// the inline array or the overflow slice.
func (e *MarketDataEvent) Updates() []PriceLevelEntry {
	if e.UpdateCount > MaxInlineUpdates {
		return e.Overflow
	}
	return e.Inline[:e.UpdateCount]
}

// SetUpdates populates the batch from entries, using the inline array when
// possible and falling back to Overflow only above the cap.
func (e *MarketDataEvent) SetUpdates(entries []PriceLevelEntry) {
	e.UpdateCount = len(entries)
	if len(entries) > MaxInlineUpdates {
		e.Overflow = entries
		return
	}
	e.Overflow = nil
	copy(e.Inline[:], entries)
}

// ReportStatus is the exchange-reported order status carried on an
// OrderStatusReport, independent of the router's own state-machine status
// so a report can be matched before the router interprets it.
type ReportStatus uint8

const (
	ReportAck ReportStatus = iota
	ReportPartiallyFilled
	ReportFilled
	ReportCancelled
	ReportRejected
	ReportReplaced
)

// OrderStatusReport is delivered by the order gateway / feed adapter to the
// OrderRouter. LastQuantity/LastPrice/ExecutionID describe an incremental
// fill, if any; a report with LastQuantity == 0 carries no fill.
type OrderStatusReport struct {
	ClientOrderID   string
	ExchangeOrderID string
	InstrumentID    string
	Status          ReportStatus
	LastQuantity    fixedpoint.Quantity
	LastPrice       fixedpoint.Price
	LeavesQuantity  fixedpoint.Quantity
	ExecutionID     string
	Reason          string
	Ts              time.Time
}

// Fill is an immutable execution record, deduplicated within an order by
// ExecutionID.
type Fill struct {
	InstrumentID    string
	BookName        string
	ClientOrderID   string
	ExchangeOrderID string
	ExecutionID     string
	Side            Side
	Price           fixedpoint.Price
	Quantity        fixedpoint.Quantity
	Ts              time.Time
}

// AdapterConnectionStateChanged is raised by a feed adapter when its
// connection to an exchange transitions.
type AdapterConnectionStateChanged struct {
	Connected bool
	Exchange  string
	Reason    string
}

// HittingLogic selects how a quoter behaves relative to the quoted book's
// best price on the quote's own side (bid against best bid, ask against
// best ask).
type HittingLogic uint8

const (
	AllowAll HittingLogic = iota
	OurBest
	Pennying
)

// QuoterType selects which Quoter implementation a side is assigned to.
type QuoterType uint8

const (
	LogQuoterType QuoterType = iota
	SingleQuoterType
	GroupedSingleQuoterType
	LayeredQuoterType
	ShadowQuoterType
	ShadowMakerQuoterType
)

// QuotingParameters is the value object controlling one QuotingInstance.
type QuotingParameters struct {
	InstrumentID   string
	FVInstrumentID string
	FVModel        string
	BookName       string

	AskSpreadBp decimal.Decimal
	BidSpreadBp decimal.Decimal
	SkewBp      decimal.Decimal
	Size        fixedpoint.Quantity
	Depth       int

	BidQuoterType QuoterType
	AskQuoterType QuoterType
	PostOnly      bool

	MaxCumBidFills fixedpoint.Quantity
	MaxCumAskFills fixedpoint.Quantity

	HittingLogic HittingLogic
	GroupingBp   decimal.Decimal
}

// SameCore reports whether two parameter sets agree on every "core" field
// (§4.7): changing any of these requires retire-then-reconstruct rather
// than an in-place mutation.
func (p QuotingParameters) SameCore(o QuotingParameters) bool {
	return p.FVModel == o.FVModel &&
		p.FVInstrumentID == o.FVInstrumentID &&
		p.BidQuoterType == o.BidQuoterType &&
		p.AskQuoterType == o.AskQuoterType &&
		p.Depth == o.Depth &&
		p.PostOnly == o.PostOnly &&
		p.BookName == o.BookName
}

// Quote is one side of a target QuotePair.
type Quote struct {
	Price    fixedpoint.Price
	Quantity fixedpoint.Quantity
}

// QuotePair is the per-requote output of the QuotingEngine: a nullable
// target for each side. A nil side means "no quote this side; cancel any
// live order."
type QuotePair struct {
	InstrumentID string
	Bid          *Quote
	Ask          *Quote
}
