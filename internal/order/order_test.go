package order

import (
	"testing"
	"time"

	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

func newTestOrder() *Order {
	o := New()
	NewBuilder(o).
		ClientOrderID("c1").
		Side(events.Buy).
		InstrumentID("BTC-USD").
		BookName("binance").
		Price(fixedpoint.NewPrice(100)).
		Quantity(fixedpoint.NewQuantity(10)).
		Build()
	return o
}

func TestSubmitReplaceCancelHappyPath(t *testing.T) {
	t.Parallel()
	o := newTestOrder()

	if err := o.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.SnapshotStatus() != NewRequest {
		t.Fatalf("status = %v, want NewRequest", o.SnapshotStatus())
	}

	o.OnReport(events.OrderStatusReport{Status: events.ReportAck, ExchangeOrderID: "e1"})
	if o.SnapshotStatus() != New {
		t.Fatalf("status = %v, want New", o.SnapshotStatus())
	}

	if err := o.Replace(fixedpoint.NewPrice(101), fixedpoint.NewQuantity(12)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	o.OnReport(events.OrderStatusReport{Status: events.ReportAck})
	if o.Price.Ticks() != 101 || o.Quantity.Ticks() != 12 {
		t.Errorf("replace did not apply staged price/qty: price=%d qty=%d", o.Price.Ticks(), o.Quantity.Ticks())
	}

	if err := o.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	o.OnReport(events.OrderStatusReport{Status: events.ReportCancelled})
	if o.SnapshotStatus() != Cancelled {
		t.Fatalf("status = %v, want Cancelled", o.SnapshotStatus())
	}
}

func TestIllegalTransitionsAreRejectedWithoutSideEffect(t *testing.T) {
	t.Parallel()
	o := newTestOrder()

	if err := o.Cancel(); err != ErrIllegalTransition {
		t.Errorf("Cancel on Pending = %v, want ErrIllegalTransition", err)
	}
	if o.SnapshotStatus() != Pending {
		t.Errorf("status mutated despite illegal transition: %v", o.SnapshotStatus())
	}

	o.Submit()
	o.OnReport(events.OrderStatusReport{Status: events.ReportAck})
	o.OnReport(events.OrderStatusReport{Status: events.ReportCancelled})

	if err := o.Replace(fixedpoint.NewPrice(200), fixedpoint.NewQuantity(1)); err != ErrIllegalTransition {
		t.Errorf("Replace on Cancelled = %v, want ErrIllegalTransition", err)
	}
}

func TestSubmitFailedRevertsToPriorStatus(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Submit()
	o.SubmitFailed()
	if o.SnapshotStatus() != Pending {
		t.Errorf("status = %v, want Pending after SubmitFailed", o.SnapshotStatus())
	}
}

func TestFillIdempotence(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Submit()
	o.OnReport(events.OrderStatusReport{Status: events.ReportAck})

	var fillCount int
	o.OnFilled(func(*Order, events.Fill) { fillCount++ })

	report := events.OrderStatusReport{
		Status:         events.ReportPartiallyFilled,
		LastQuantity:   fixedpoint.NewQuantity(5),
		LastPrice:      fixedpoint.NewPrice(100),
		LeavesQuantity: fixedpoint.NewQuantity(5),
		ExecutionID:    "exec-1",
		Ts:             time.Now(),
	}

	for i := 0; i < 5; i++ {
		o.OnReport(report)
	}

	if fillCount != 1 {
		t.Errorf("fillCount = %d, want 1 for repeated identical report", fillCount)
	}
	if len(o.Fills) != 1 {
		t.Errorf("len(Fills) = %d, want 1", len(o.Fills))
	}
	if o.SnapshotStatus() != PartiallyFilled {
		t.Errorf("status = %v, want PartiallyFilled", o.SnapshotStatus())
	}
}

func TestFullFillTransitionsToFilled(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Submit()
	o.OnReport(events.OrderStatusReport{Status: events.ReportAck})

	o.OnReport(events.OrderStatusReport{
		Status:         events.ReportFilled,
		LastQuantity:   fixedpoint.NewQuantity(10),
		LastPrice:      fixedpoint.NewPrice(100),
		LeavesQuantity: fixedpoint.NewQuantity(0),
		ExecutionID:    "exec-full",
	})

	if o.SnapshotStatus() != Filled {
		t.Errorf("status = %v, want Filled", o.SnapshotStatus())
	}
}

func TestFactoryReusesReleasedOrders(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	o1 := f.Acquire()
	o1.ClientOrderID = "abc"
	o1.Fills = append(o1.Fills, events.Fill{ExecutionID: "x"})
	f.Release(o1)

	o2 := f.Acquire()
	if o2 != o1 {
		t.Fatalf("Acquire did not reuse released order")
	}
	if o2.ClientOrderID != "" || len(o2.Fills) != 0 || o2.SnapshotStatus() != Pending {
		t.Errorf("Acquire did not reset pooled order: %+v", o2)
	}
}
