// Package distributor implements the Distributor thread (§5.2): the single
// consumer of a feed adapter's market-data ring. It fans each event out to
// the event's instrument OrderBook and to every FV provider registered
// against that book, invoking a synchronous, non-blocking callback when a
// provider's fair value materially changes.
//
// Grounded on the teacher's Engine.dispatchMarketEvents/routeBookEvent
// pair (internal/engine/engine.go): a single goroutine pulling off a feed
// channel, resolving the event's target by a lookup map, and handing it to
// that target's book. Generalized from a channel-select over two fixed
// event kinds into a ring-buffer poll loop over one batched MarketDataEvent
// kind, and from "one book per slot" into "one book plus N FV providers
// per book."
package distributor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hftcore/internal/book"
	"hftcore/internal/events"
	"hftcore/internal/fairvalue"
	"hftcore/internal/ring"
)

// FairValueHandler is invoked synchronously on the distributor thread
// whenever a registered provider's Update reports a material change. It
// must be non-blocking and bounded-work per §5 ("these callbacks must be
// non-blocking and bounded-work").
type FairValueHandler func(fairvalue.Changed)

// DroppedHandler is the callback signature for reporting an instrument's
// dropped-event count. The Distributor itself never invokes it.
type DroppedHandler func(instrumentID string, dropped uint64)

type binding struct {
	book      *book.OrderBook
	providers []fvBinding
}

type fvBinding struct {
	provider fairvalue.Provider
	onChange FairValueHandler
}

// BookUpdateHandler is invoked synchronously on the distributor thread
// after an event is successfully applied to its book, before FV fan-out.
// Used by the observability layer to keep best bid/ask/spread gauges
// current without the distributor depending on the obs package.
type BookUpdateHandler func(instrumentID string, b *book.OrderBook)

// Distributor owns the instrument_id -> OrderBook map and the book ->
// FV-provider fan-out list, and drains one market-data ring on its own
// goroutine.
type Distributor struct {
	logger *slog.Logger

	mu       sync.RWMutex
	bindings map[string]*binding // keyed by OrderBook.InstrumentID()

	idlePoll    time.Duration
	onBookApply BookUpdateHandler
}

// New constructs an empty Distributor. idlePoll is the sleep between empty
// ring polls (keeps the consumer goroutine from spinning at 100% CPU while
// still being wait-free on the producer side); 0 defaults to 200µs.
func New(logger *slog.Logger, idlePoll time.Duration) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	if idlePoll <= 0 {
		idlePoll = 200 * time.Microsecond
	}
	return &Distributor{
		logger:   logger.With("component", "distributor"),
		bindings: make(map[string]*binding),
		idlePoll: idlePoll,
	}
}

// SetBookUpdateHandler installs fn to be called after every successfully
// applied event, for every book. A nil fn disables the callback.
func (d *Distributor) SetBookUpdateHandler(fn BookUpdateHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onBookApply = fn
}

// RegisterBook makes b the target for events carrying b.InstrumentID().
// A second registration under the same instrument_id is a no-op: the
// first-registered book wins.
func (d *Distributor) RegisterBook(b *book.OrderBook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bindings[b.InstrumentID()]; ok {
		return
	}
	d.bindings[b.InstrumentID()] = &binding{book: b}
}

// Book returns the OrderBook registered for instrumentID, if any.
func (d *Distributor) Book(instrumentID string) (*book.OrderBook, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.bindings[instrumentID]
	if !ok {
		return nil, false
	}
	return b.book, true
}

// RegisterProvider subscribes provider to updates of the OrderBook whose
// instrument_id is bookInstrumentID; onChange fires with the provider's
// Changed result whenever Update reports a material change.
func (d *Distributor) RegisterProvider(bookInstrumentID string, provider fairvalue.Provider, onChange FairValueHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bindings[bookInstrumentID]
	if !ok {
		return
	}
	b.providers = append(b.providers, fvBinding{provider: provider, onChange: onChange})
}

// Unregister removes every provider bound to bookInstrumentID, so none of
// them fires again for that book.
func (d *Distributor) Unregister(bookInstrumentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.bindings[bookInstrumentID]; ok {
		b.providers = nil
	}
}

// Run drains events from r until ctx is cancelled, applying each to its
// target book and fanning out to registered FV providers in-line, on this
// goroutine (§5: "causally ordered on the distributor thread").
func (d *Distributor) Run(ctx context.Context, r *ring.SPSC[events.MarketDataEvent]) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		evt, ok := r.TryRead()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.idlePoll):
			}
			continue
		}
		d.process(evt)
	}
}

func (d *Distributor) process(evt events.MarketDataEvent) {
	d.mu.RLock()
	b, ok := d.bindings[evt.InstrumentID]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug("event for unregistered instrument dropped", "instrument_id", evt.InstrumentID)
		return
	}

	switch result := b.book.ApplyEvent(&evt); result {
	case book.Stale:
		return
	case book.GapDetected:
		d.logger.Warn("sequence gap detected, awaiting snapshot", "instrument_id", evt.InstrumentID, "seq", evt.Seq, "prev_seq", evt.PrevSeq)
		return
	}

	d.mu.RLock()
	onApply := d.onBookApply
	providers := append([]fvBinding(nil), b.providers...)
	d.mu.RUnlock()

	if onApply != nil {
		onApply(evt.InstrumentID, b.book)
	}

	for _, fv := range providers {
		changed, ok := fv.provider.Update(b.book)
		if !ok {
			continue
		}
		if fv.onChange != nil {
			fv.onChange(changed)
		}
	}
}
