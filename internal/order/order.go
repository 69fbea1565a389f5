// Package order implements the order lifecycle state machine: Order,
// OrderBuilder, and OrderFactory (pooling). OrderRouter lives in the
// sibling internal/router package to keep the per-order state machine and
// the concurrent-map/lazy-deregistration concern separately testable.
//
// Ownership: the router registers every Order and is the component that
// releases it back to the Factory. Quoters also keep a pointer to the
// order(s) they placed and issue Submit/Replace/Cancel on it directly, so a
// live Order has more than one strong reference.
package order

import (
	"errors"
	"sync"
	"time"

	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

// Status is a node in the order lifecycle state machine.
type Status uint8

const (
	Pending Status = iota
	NewRequest
	New
	PartiallyFilled
	ReplaceRequest
	CancelRequest
	Filled
	Cancelled
	Rejected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case NewRequest:
		return "NewRequest"
	case New:
		return "New"
	case PartiallyFilled:
		return "PartiallyFilled"
	case ReplaceRequest:
		return "ReplaceRequest"
	case CancelRequest:
		return "CancelRequest"
	case Filled:
		return "Filled"
	case Cancelled:
		return "Cancelled"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status is one an order never leaves.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// Live reports whether the order currently rests on the exchange book
// (i.e. replace/cancel requests are legal against it).
func (s Status) Live() bool {
	return s == New || s == PartiallyFilled
}

// OrderKind selects time-in-force / execution semantics.
type OrderKind uint8

const (
	GTC OrderKind = iota
	IOC
)

// ErrIllegalTransition is returned by a request method when the order is
// not in a compatible state; per §4.6 the request is ignored without side
// effect.
var ErrIllegalTransition = errors.New("order: illegal state transition")

// StatusChangedFunc observes a status transition.
type StatusChangedFunc func(o *Order, prev, next Status)

// FilledFunc observes a deduplicated fill.
type FilledFunc func(o *Order, fill events.Fill)

// Order is the mutable entity owned by exactly one OrderRouter once
// registered. Its observer list is a small single-writer slot per callback
// — Reset clears it, which is essential for pooling (§9).
type Order struct {
	mu sync.Mutex

	ClientOrderID   string
	ExchangeOrderID string
	Side            events.Side
	InstrumentID    string
	BookName        string
	Price           fixedpoint.Price
	Quantity        fixedpoint.Quantity
	LeavesQty       fixedpoint.Quantity
	Kind            OrderKind
	PostOnly        bool
	Status          Status
	LastUpdateTime  time.Time
	Fills           []events.Fill

	pendingPrice fixedpoint.Price
	pendingQty   fixedpoint.Quantity
	priorStatus  Status
	seenExecIDs  map[string]struct{}

	onStatusChanged StatusChangedFunc
	onFilled        FilledFunc
}

// New creates a fresh Pending order.
func New() *Order {
	return &Order{Status: Pending, seenExecIDs: make(map[string]struct{})}
}

// Reset returns the order to a pristine Pending state for pool reuse,
// clearing fills, dedup state, and the observer list.
func (o *Order) Reset() {
	o.mu.Lock()
	seen := o.seenExecIDs
	for k := range seen {
		delete(seen, k)
	}
	o.mu.Unlock()

	// The struct copy also replaces the mutex, so it happens after Unlock.
	*o = Order{seenExecIDs: seen}
	o.Status = Pending
}

// OnStatusChanged installs the single status-change observer.
func (o *Order) OnStatusChanged(fn StatusChangedFunc) { o.onStatusChanged = fn }

// OnFilled installs the single fill observer.
func (o *Order) OnFilled(fn FilledFunc) { o.onFilled = fn }

func (o *Order) snapshotStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Status
}

// Submit transitions Pending -> NewRequest.
func (o *Order) Submit() error {
	return o.transition(func() error {
		if o.Status != Pending {
			return ErrIllegalTransition
		}
		o.priorStatus = o.Status
		o.Status = NewRequest
		return nil
	})
}

// SubmitFailed reverts a NewRequest back to its prior status after a
// synchronous gateway rejection.
func (o *Order) SubmitFailed() {
	o.transition(func() error {
		if o.Status == NewRequest {
			o.Status = o.priorStatus
		}
		return nil
	})
}

// Replace transitions New/PartiallyFilled -> ReplaceRequest, staging the
// new price/quantity for application on ack.
func (o *Order) Replace(price fixedpoint.Price, qty fixedpoint.Quantity) error {
	return o.transition(func() error {
		if !o.Status.Live() {
			return ErrIllegalTransition
		}
		o.priorStatus = o.Status
		o.pendingPrice = price
		o.pendingQty = qty
		o.Status = ReplaceRequest
		return nil
	})
}

// ReplaceFailed reverts a ReplaceRequest back to its prior status.
func (o *Order) ReplaceFailed() {
	o.transition(func() error {
		if o.Status == ReplaceRequest {
			o.Status = o.priorStatus
		}
		return nil
	})
}

// Cancel transitions New/PartiallyFilled -> CancelRequest.
func (o *Order) Cancel() error {
	return o.transition(func() error {
		if !o.Status.Live() {
			return ErrIllegalTransition
		}
		o.priorStatus = o.Status
		o.Status = CancelRequest
		return nil
	})
}

// CancelFailed reverts a CancelRequest back to its prior status.
func (o *Order) CancelFailed() {
	o.transition(func() error {
		if o.Status == CancelRequest {
			o.Status = o.priorStatus
		}
		return nil
	})
}

// transition runs fn under the order's mutex, then fires the status-changed
// observer (outside the lock) if the status actually moved.
func (o *Order) transition(fn func() error) error {
	o.mu.Lock()
	prev := o.Status
	err := fn()
	next := o.Status
	o.mu.Unlock()

	if err == nil && next != prev && o.onStatusChanged != nil {
		o.onStatusChanged(o, prev, next)
	}
	return err
}

// ReportOutcome summarizes the effect of applying an OrderStatusReport.
type ReportOutcome struct {
	PrevStatus    Status
	NewStatus     Status
	StatusChanged bool
	Filled        bool
	Fill          events.Fill
}

// OnReport applies an exchange report to the order's state machine. Fill
// recognition follows §4.6: a fill is recognized when the report carries
// LastQuantity > 0, LastPrice > 0, and a non-empty ExecutionID not already
// present in the order's fill list — only then is the Filled observer
// fired, and at most once per ExecutionID no matter how many times the
// same report is redelivered.
func (o *Order) OnReport(report events.OrderStatusReport) ReportOutcome {
	o.mu.Lock()

	if !report.Ts.IsZero() && !o.LastUpdateTime.IsZero() && report.Ts.Before(o.LastUpdateTime) {
		cur := o.Status
		o.mu.Unlock()
		return ReportOutcome{PrevStatus: cur, NewStatus: cur}
	}

	prev := o.Status

	switch report.Status {
	case events.ReportAck:
		switch o.Status {
		case NewRequest:
			o.ExchangeOrderID = report.ExchangeOrderID
			o.Status = New
		case ReplaceRequest:
			o.Price = o.pendingPrice
			o.Quantity = o.pendingQty
			o.LeavesQty = o.pendingQty
			o.Status = New
		}
	case events.ReportCancelled:
		if o.Status == CancelRequest || o.Status.Live() {
			o.Status = Cancelled
		}
	case events.ReportRejected:
		o.Status = Rejected
	}

	var outcome ReportOutcome
	if report.LastQuantity > 0 && report.LastPrice > 0 && report.ExecutionID != "" {
		if _, seen := o.seenExecIDs[report.ExecutionID]; !seen {
			o.seenExecIDs[report.ExecutionID] = struct{}{}
			f := events.Fill{
				InstrumentID:    o.InstrumentID,
				BookName:        o.BookName,
				ClientOrderID:   o.ClientOrderID,
				ExchangeOrderID: o.ExchangeOrderID,
				ExecutionID:     report.ExecutionID,
				Side:            o.Side,
				Price:           report.LastPrice,
				Quantity:        report.LastQuantity,
				Ts:              report.Ts,
			}
			o.Fills = append(o.Fills, f)
			o.LeavesQty = report.LeavesQuantity
			if o.LeavesQty <= 0 {
				o.Status = Filled
			} else if o.Status == New {
				o.Status = PartiallyFilled
			}
			outcome.Filled = true
			outcome.Fill = f
		}
	}
	if !report.Ts.IsZero() {
		o.LastUpdateTime = report.Ts
	}

	outcome.PrevStatus = prev
	outcome.NewStatus = o.Status
	outcome.StatusChanged = outcome.NewStatus != prev
	o.mu.Unlock()

	if outcome.StatusChanged && o.onStatusChanged != nil {
		o.onStatusChanged(o, outcome.PrevStatus, outcome.NewStatus)
	}
	if outcome.Filled && o.onFilled != nil {
		o.onFilled(o, outcome.Fill)
	}
	return outcome
}

// SnapshotStatus returns the order's current status under lock.
func (o *Order) SnapshotStatus() Status { return o.snapshotStatus() }

// SnapshotFills returns a copy of the order's fill list under lock.
func (o *Order) SnapshotFills() []events.Fill {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]events.Fill, len(o.Fills))
	copy(out, o.Fills)
	return out
}
