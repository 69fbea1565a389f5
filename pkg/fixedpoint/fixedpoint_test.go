package fixedpoint

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuantityDecimalRoundTrip(t *testing.T) {
	t.Parallel()
	d := decimal.RequireFromString("12.34567891")
	q := QuantityFromDecimal(d)
	if q.Ticks() != 1234567891 {
		t.Errorf("Ticks() = %d, want 1234567891", q.Ticks())
	}
	if got := q.Decimal().String(); got != "12.34567891" {
		t.Errorf("Decimal() = %s, want 12.34567891", got)
	}
}

func TestPriceFloorCeil(t *testing.T) {
	t.Parallel()
	tick := NewTickSize(decimal.RequireFromString("0.5"))

	bid := PriceFromDecimalFloor(decimal.RequireFromString("49950.3"), tick)
	if got := bid.Decimal(tick); !got.Equal(decimal.RequireFromString("49950")) {
		t.Errorf("floor = %s, want 49950", got)
	}

	ask := PriceFromDecimalCeil(decimal.RequireFromString("50075.1"), tick)
	if got := ask.Decimal(tick); !got.Equal(decimal.RequireFromString("50075.5")) {
		t.Errorf("ceil = %s, want 50075.5", got)
	}
}

func TestApplyBp(t *testing.T) {
	t.Parallel()
	base := decimal.RequireFromString("50005")
	got := ApplyBp(base, decimal.NewFromInt(-10))
	want := decimal.RequireFromString("49954.995")
	if !got.Equal(want) {
		t.Errorf("ApplyBp = %s, want %s", got, want)
	}
}

func TestQuantityClamp(t *testing.T) {
	t.Parallel()
	q := NewQuantity(100)
	q = q.Sub(150)
	if q.IsPositive() {
		t.Errorf("expected non-positive after overshoot, got %d", q.Ticks())
	}
}
