// Package router implements OrderRouter: client-order-id assignment, the
// concurrent order registry, report routing, and lazy deregistration.
//
// Grounded on the teacher's internal/strategy.Maker.reconcileOrders +
// activeOrders map pattern (a map of live orders kept in sync with
// incoming lifecycle events) generalized into a standalone, reusable
// router with the bounded-FIFO eviction the specification requires.
package router

import (
	"log/slog"
	"sync"

	"hftcore/internal/events"
	"hftcore/internal/order"
	"hftcore/pkg/fixedpoint"
)

// IDGenerator assigns monotonic client order ids. The snowflake-backed
// reference implementation in internal/idgen encodes the order source in
// the id's node-id bits, below the timestamp bits rather than in the high
// bits.
type IDGenerator interface {
	NextClientOrderID() string
}

// DefaultFIFOCapacity is the lazy-deregistration FIFO's default depth.
const DefaultFIFOCapacity = 20

// Router assigns ids, owns the registry of live orders, and routes
// incoming OrderStatusReports to the matching Order.
type Router struct {
	idGen   IDGenerator
	factory *order.Factory
	logger  *slog.Logger

	mu           sync.RWMutex
	byClientID   map[string]*order.Order
	byExchangeID map[string]string // exchange_order_id -> client_order_id

	fifoMu  sync.Mutex
	fifo    []string
	fifoCap int
	inFifo  map[string]struct{}

	handlersMu     sync.RWMutex
	fillHandlers   []func(events.Fill)
	statusHandlers []func(o *order.Order, prev, next order.Status)
}

// New creates a router with the given FIFO capacity (DefaultFIFOCapacity
// if cap <= 0).
func New(idGen IDGenerator, factory *order.Factory, fifoCap int, logger *slog.Logger) *Router {
	if fifoCap <= 0 {
		fifoCap = DefaultFIFOCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		idGen:        idGen,
		factory:      factory,
		logger:       logger.With("component", "router"),
		byClientID:   make(map[string]*order.Order),
		byExchangeID: make(map[string]string),
		fifoCap:      fifoCap,
		inFifo:       make(map[string]struct{}),
	}
}

// NewOrder acquires a pooled order, assigns it a client_order_id, and
// registers it in the active map. The order is not yet submitted; callers
// call Submit() then hand the request to the order gateway.
func (r *Router) NewOrder(side events.Side, instrumentID, bookName string, price fixedpoint.Price, qty fixedpoint.Quantity, kind order.OrderKind, postOnly bool) *order.Order {
	o := r.factory.Acquire()
	id := r.idGen.NextClientOrderID()
	order.NewBuilder(o).
		ClientOrderID(id).
		Side(side).
		InstrumentID(instrumentID).
		BookName(bookName).
		Price(price).
		Quantity(qty).
		Kind(kind).
		PostOnly(postOnly).
		Build()

	o.OnFilled(func(o *order.Order, f events.Fill) { r.dispatchFill(f) })
	o.OnStatusChanged(func(o *order.Order, prev, next order.Status) { r.dispatchStatus(o, prev, next) })

	r.mu.Lock()
	r.byClientID[id] = o
	r.mu.Unlock()
	return o
}

// AddFillHandler registers fn to be invoked (on the calling goroutine of
// Route/OnReport) for every deduplicated fill across every order this
// router registers. Engines use this to feed per-instrument fill
// accounting without holding a strong reference into the router's order
// map.
func (r *Router) AddFillHandler(fn func(events.Fill)) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.fillHandlers = append(r.fillHandlers, fn)
}

// AddStatusHandler registers fn to be invoked for every order status
// transition across every order this router registers.
func (r *Router) AddStatusHandler(fn func(o *order.Order, prev, next order.Status)) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.statusHandlers = append(r.statusHandlers, fn)
}

func (r *Router) dispatchFill(f events.Fill) {
	r.handlersMu.RLock()
	handlers := r.fillHandlers
	r.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(f)
	}
}

func (r *Router) dispatchStatus(o *order.Order, prev, next order.Status) {
	r.handlersMu.RLock()
	handlers := r.statusHandlers
	r.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(o, prev, next)
	}
}

// Lookup returns the order registered for clientOrderID, or nil.
func (r *Router) Lookup(clientOrderID string) *order.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byClientID[clientOrderID]
}

// Route applies report to the matching order and, on terminal transition,
// pushes the order into the lazy-deregistration FIFO. Reports for unknown
// ids (not registered, or already evicted from the FIFO) are logged and
// dropped.
func (r *Router) Route(report events.OrderStatusReport) {
	clientID := report.ClientOrderID

	r.mu.RLock()
	if clientID == "" {
		clientID = r.byExchangeID[report.ExchangeOrderID]
	}
	o := r.byClientID[clientID]
	r.mu.RUnlock()

	if o == nil {
		r.logger.Warn("dropping report for unknown order",
			"client_order_id", report.ClientOrderID,
			"exchange_order_id", report.ExchangeOrderID)
		return
	}

	outcome := o.OnReport(report)

	if report.ExchangeOrderID != "" {
		r.mu.Lock()
		r.byExchangeID[report.ExchangeOrderID] = clientID
		r.mu.Unlock()
	}

	if outcome.StatusChanged && outcome.NewStatus.Terminal() {
		r.deregister(clientID)
	}
}

// deregister pushes a terminated order's id into the bounded FIFO. The
// order stays fully routable (still in byClientID) while inside the FIFO,
// tolerating a straggler fill report a few microseconds behind a
// Cancelled/Filled transition. Only when the FIFO overflows is the evicted
// oldest entry actually removed from the active map and released back to
// the factory.
func (r *Router) deregister(clientID string) {
	r.fifoMu.Lock()
	defer r.fifoMu.Unlock()

	if _, already := r.inFifo[clientID]; already {
		return
	}
	r.inFifo[clientID] = struct{}{}
	r.fifo = append(r.fifo, clientID)

	if len(r.fifo) <= r.fifoCap {
		return
	}

	evicted := r.fifo[0]
	r.fifo = r.fifo[1:]
	delete(r.inFifo, evicted)

	r.mu.Lock()
	o := r.byClientID[evicted]
	delete(r.byClientID, evicted)
	if o != nil && o.ExchangeOrderID != "" {
		delete(r.byExchangeID, o.ExchangeOrderID)
	}
	r.mu.Unlock()

	if o != nil {
		r.factory.Release(o)
	}
}

// ActiveCount returns the number of orders currently registered (including
// those resting in the lazy-deregistration FIFO awaiting eviction).
func (r *Router) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byClientID)
}

// FIFODepth returns the current depth of the lazy-deregistration FIFO.
func (r *Router) FIFODepth() int {
	r.fifoMu.Lock()
	defer r.fifoMu.Unlock()
	return len(r.fifo)
}
