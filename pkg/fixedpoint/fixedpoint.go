// Package fixedpoint implements the Price and Quantity scalar types used
// throughout the pipeline. Both are signed 64-bit integer tick counts with
// a fixed scale, and book levels, orders and fills store and compare them as
// integers. Conversion to and from decimal is explicit: besides wire parsing
// and display, ApplyBp and the PriceFromDecimal* helpers do decimal
// arithmetic and are called on every requote by the engine and quoters.
package fixedpoint

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantityScale is the fixed decimal scale shared by every Quantity value:
// one unit of Quantity is 1e-8 of a contract/share/coin.
const QuantityScale = 100_000_000

// Quantity is an integer count of 1e-8ths. It never carries an
// instrument-specific scale — only Price does, via TickSize.
type Quantity int64

// NewQuantity wraps a raw tick count.
func NewQuantity(ticks int64) Quantity { return Quantity(ticks) }

// Ticks returns the raw integer tick count.
func (q Quantity) Ticks() int64 { return int64(q) }

// Decimal converts to a human-scale decimal.Decimal for display/wire use.
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), 0).Shift(-8)
}

// QuantityFromDecimal parses a human-scale quantity into ticks, rounding to
// the nearest 1e-8th.
func QuantityFromDecimal(d decimal.Decimal) Quantity {
	scaled := d.Shift(8).Round(0)
	return Quantity(scaled.IntPart())
}

func (q Quantity) Add(o Quantity) Quantity { return q + o }
func (q Quantity) Sub(o Quantity) Quantity { return q - o }
func (q Quantity) IsZero() bool            { return q == 0 }
func (q Quantity) IsPositive() bool        { return q > 0 }
func (q Quantity) Cmp(o Quantity) int {
	switch {
	case q < o:
		return -1
	case q > o:
		return 1
	default:
		return 0
	}
}

func (q Quantity) String() string { return q.Decimal().String() }

// TickSize is an instrument's minimum price increment, expressed as a
// decimal (e.g. 0.5, 0.01). Price values are integer multiples of it.
type TickSize decimal.Decimal

// NewTickSize wraps a decimal tick size.
func NewTickSize(d decimal.Decimal) TickSize { return TickSize(d) }

func (t TickSize) Decimal() decimal.Decimal { return decimal.Decimal(t) }

// Price is an integer count of instrument ticks. The same Price value means
// different absolute prices on instruments with different TickSize — callers
// must always carry the TickSize alongside a Price when converting to
// decimal.
type Price int64

// NewPrice wraps a raw tick count.
func NewPrice(ticks int64) Price { return Price(ticks) }

// Ticks returns the raw integer tick count.
func (p Price) Ticks() int64 { return int64(p) }

// Decimal converts a Price to its absolute decimal value given the
// instrument's tick size.
func (p Price) Decimal(tick TickSize) decimal.Decimal {
	return tick.Decimal().Mul(decimal.New(int64(p), 0))
}

// PriceFromDecimalRound converts an absolute decimal price to the nearest
// tick, rounding half away from zero.
func PriceFromDecimalRound(d decimal.Decimal, tick TickSize) Price {
	ticks := d.Div(tick.Decimal()).Round(0)
	return Price(ticks.IntPart())
}

// PriceFromDecimalFloor converts an absolute decimal price down to the
// nearest tick at or below it. Used for bid-side rounding.
func PriceFromDecimalFloor(d decimal.Decimal, tick TickSize) Price {
	ticks := d.Div(tick.Decimal()).Floor()
	return Price(ticks.IntPart())
}

// PriceFromDecimalCeil converts an absolute decimal price up to the nearest
// tick at or above it. Used for ask-side rounding.
func PriceFromDecimalCeil(d decimal.Decimal, tick TickSize) Price {
	ticks := d.Div(tick.Decimal()).Ceil()
	return Price(ticks.IntPart())
}

func (p Price) Add(ticks int64) Price { return p + Price(ticks) }
func (p Price) Sub(ticks int64) Price { return p - Price(ticks) }
func (p Price) Less(o Price) bool     { return p < o }
func (p Price) LessEq(o Price) bool   { return p <= o }

// Cmp returns -1, 0, or 1 comparing p to o.
func (p Price) Cmp(o Price) int {
	switch {
	case p < o:
		return -1
	case p > o:
		return 1
	default:
		return 0
	}
}

func (p Price) String() string { return fmt.Sprintf("%dticks", int64(p)) }

// ApplyBp applies a basis-point adjustment (1bp = 1e-4) to an absolute
// decimal price, returning the adjusted decimal. Used by the quoting engine
// before tick-rounding back into a Price.
func ApplyBp(base decimal.Decimal, bp decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(bp.Div(decimal.NewFromInt(10000)))
	return base.Mul(factor)
}
