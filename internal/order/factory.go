package order

import (
	"sync"

	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

// Factory is a bounded free-list pool of Order values, grounded on the
// design note that the source avoids GC pressure via object pooling —
// in Go that becomes an explicit free-list with reset-on-release rather
// than relying on escape-analysis tricks.
type Factory struct {
	mu   sync.Mutex
	free []*Order
}

// NewFactory creates an empty factory.
func NewFactory() *Factory { return &Factory{} }

// Acquire returns a pooled Order reset to Pending, allocating a new one
// only if the free list is empty.
func (f *Factory) Acquire() *Order {
	f.mu.Lock()
	if n := len(f.free); n > 0 {
		o := f.free[n-1]
		f.free[n-1] = nil
		f.free = f.free[:n-1]
		f.mu.Unlock()
		o.Reset()
		return o
	}
	f.mu.Unlock()
	return New()
}

// Release returns a terminal order to the free list for reuse. Callers
// must not touch the order again after calling Release.
func (f *Factory) Release(o *Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free = append(f.free, o)
}

// Builder is a small fluent constructor for a pooled Order, applied before
// the order is registered with a router and submitted.
type Builder struct {
	o *Order
}

// NewBuilder wraps o for fluent field assignment.
func NewBuilder(o *Order) *Builder { return &Builder{o: o} }

func (b *Builder) ClientOrderID(id string) *Builder { b.o.ClientOrderID = id; return b }
func (b *Builder) Side(s events.Side) *Builder      { b.o.Side = s; return b }
func (b *Builder) InstrumentID(id string) *Builder  { b.o.InstrumentID = id; return b }
func (b *Builder) BookName(name string) *Builder    { b.o.BookName = name; return b }
func (b *Builder) Price(p fixedpoint.Price) *Builder {
	b.o.Price = p
	return b
}
func (b *Builder) Quantity(q fixedpoint.Quantity) *Builder {
	b.o.Quantity = q
	b.o.LeavesQty = q
	return b
}
func (b *Builder) Kind(k OrderKind) *Builder   { b.o.Kind = k; return b }
func (b *Builder) PostOnly(v bool) *Builder    { b.o.PostOnly = v; return b }
func (b *Builder) Build() *Order               { return b.o }
