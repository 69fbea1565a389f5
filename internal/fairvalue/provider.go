// Package fairvalue implements the fair-value providers that derive a
// mid-like signal from an OrderBook and suppress downstream noise. Grouped
// fair value uses decimal arithmetic deliberately: the bp-quantization and
// hysteresis math needs sub-tick precision before the final grouped price
// is handed to the quoting engine. This package is not the only user of
// decimal.Decimal outside pkg/fixedpoint: the engine and the quoters also do
// their bp and grouping math in decimal on every requote, while book levels
// and orders hold integer ticks.
package fairvalue

import (
	"time"

	"github.com/shopspring/decimal"

	"hftcore/internal/book"
	"hftcore/pkg/fixedpoint"
)

// Changed is fired by a Provider when its fair value materially changes.
type Changed struct {
	InstrumentID string
	FV           decimal.Decimal
	Ts           time.Time
}

// Provider is the common contract for every fair-value variant. Update is
// called synchronously on the distributor thread after a book mutation;
// implementations must not block.
type Provider interface {
	InstrumentID() string
	Update(b *book.OrderBook) (Changed, bool)
}

func floorToMultiple(v, group decimal.Decimal) decimal.Decimal {
	return v.Div(group).Floor().Mul(group)
}

func ceilToMultiple(v, group decimal.Decimal) decimal.Decimal {
	return v.Div(group).Ceil().Mul(group)
}

var two = decimal.NewFromInt(2)
var bpUnit = decimal.New(1, -4) // 1bp = 1e-4
