// Package ring implements the two lock-free ring buffer variants used as
// the backbone of the pipeline: a single-producer/single-consumer buffer
// between the feed reader and the distributor, and a multi-producer variant
// for fan-in points (e.g. multiple gateway senders reporting back on one
// report ring). Both are bounded and power-of-two capacity. SPSC is
// wait-free on both sides; MPSC producers claim a slot with a
// compare-and-swap loop that retries under contention, so they are
// lock-free but not wait-free. Both follow the LMAX Disruptor's sequence-claim
// and slot-publish pattern: producers publish with a release store before
// advancing the visible sequence; consumers acquire-load the sequence
// before reading slot data.
package ring

import (
	"sync/atomic"
)

// cacheLinePad is sized so that two uint64 sequence counters placed in
// separate padded cells never share a cache line, avoiding false sharing
// between producer- and consumer-owned state.
const cacheLinePad = 64 - 8

type paddedSeq struct {
	v uint64
	_ [cacheLinePad]byte
}

func (p *paddedSeq) load() uint64       { return atomic.LoadUint64(&p.v) }
func (p *paddedSeq) store(val uint64)   { atomic.StoreUint64(&p.v, val) }
func (p *paddedSeq) add(delta uint64) uint64 { return atomic.AddUint64(&p.v, delta) }
func (p *paddedSeq) cas(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&p.v, old, new)
}

// SPSC is a bounded single-producer/single-consumer ring buffer.
//
// The producer sequence and consumer sequence live in separately
// cache-line-padded fields. Each side caches the other side's last
// observed sequence and only re-reads the shared atomic when the cached
// value would indicate full (producer) or empty (consumer), keeping the
// common case to an uncontended local read.
type SPSC[T any] struct {
	capacity uint64
	mask     uint64
	buf      []T

	// producer-owned
	writeSeq      paddedSeq
	cachedReadSeq paddedSeq
	dropped       paddedSeq

	// consumer-owned
	readSeq        paddedSeq
	cachedWriteSeq paddedSeq
}

// NewSPSC creates an SPSC ring of the given capacity, which must be a power
// of two.
func NewSPSC[T any](capacity uint64) *SPSC[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &SPSC[T]{
		capacity: capacity,
		mask:     capacity - 1,
		buf:      make([]T, capacity),
	}
}

// TryWrite publishes item without blocking. Returns false immediately if
// the buffer is full; callers are responsible for counting drops at the
// adapter level if desired (Dropped() also tracks it here).
func (r *SPSC[T]) TryWrite(item T) bool {
	next := r.writeSeq.load()
	if next-r.cachedReadSeq.load() >= r.capacity {
		r.cachedReadSeq.store(r.readSeq.load())
		if next-r.cachedReadSeq.load() >= r.capacity {
			r.dropped.add(1)
			return false
		}
	}

	r.buf[next&r.mask] = item
	// Release: publish the slot write before advancing the visible sequence.
	r.writeSeq.store(next + 1)
	return true
}

// TryRead consumes the next item without blocking. Returns the zero value
// and false if the buffer is empty.
func (r *SPSC[T]) TryRead() (T, bool) {
	var zero T
	next := r.readSeq.load()
	if next >= r.cachedWriteSeq.load() {
		r.cachedWriteSeq.store(r.writeSeq.load())
		if next >= r.cachedWriteSeq.load() {
			return zero, false
		}
	}

	// Acquire: the writeSeq load above happens-before this read because the
	// producer stores writeSeq only after writing buf[next&mask].
	item := r.buf[next&r.mask]
	r.readSeq.store(next + 1)
	return item, true
}

// Dropped returns the number of TryWrite calls that found the buffer full.
func (r *SPSC[T]) Dropped() uint64 { return r.dropped.load() }

// Len returns the number of unread items currently buffered. Safe to call
// from either side; the result is advisory under concurrent access.
func (r *SPSC[T]) Len() uint64 {
	return r.writeSeq.load() - r.readSeq.load()
}

// Capacity returns the fixed buffer capacity.
func (r *SPSC[T]) Capacity() uint64 { return r.capacity }

// mpscSlot holds one item plus the sequence number that marks it published.
// The available field is written with a release store after the item is
// written, so the consumer's acquire-load of available happens-after the
// item write.
type mpscSlot[T any] struct {
	available uint64
	item      T
}

// MPSC is a bounded multi-producer/single-consumer ring buffer. Producers
// claim a slot with a compare-and-swap on the write cursor (retried when
// another producer claims the same sequence first; not a single
// fetch-and-add), then
// publish availability by storing the claimed sequence into the slot's
// available field; the consumer only reads a slot once its available field
// equals the sequence it expects next.
type MPSC[T any] struct {
	capacity uint64
	mask     uint64
	slots    []mpscSlot[T]

	cursor         paddedSeq // highest claimed sequence (all producers)
	gatingSequence paddedSeq // highest consumed sequence
	dropped        paddedSeq

	consumerCursor paddedSeq // consumer-owned: next sequence to read
}

// NewMPSC creates an MPSC ring of the given capacity, which must be a power
// of two. Slot available fields are initialized to the maximum uint64 so an
// unpublished slot never matches the first lap's expected sequence, as a
// zero value left over from allocation would for sequence 0.
func NewMPSC[T any](capacity uint64) *MPSC[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	m := &MPSC[T]{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    make([]mpscSlot[T], capacity),
	}
	for i := range m.slots {
		m.slots[i].available = ^uint64(0) // never matches seq 0, forcing a miss until first publish
	}
	return m
}

// TryWrite claims a slot and publishes item. Returns false immediately if
// the buffer is full (no spinning — callers decide whether to retry).
func (m *MPSC[T]) TryWrite(item T) bool {
	for {
		current := m.cursor.load()
		next := current + 1

		gating := m.gatingSequence.load()
		if next-gating > m.capacity {
			m.dropped.add(1)
			return false
		}

		if m.cursor.cas(current, next) {
			idx := current & m.mask
			m.slots[idx].item = item
			// Release: item write above is visible before available is set.
			atomic.StoreUint64(&m.slots[idx].available, current)
			return true
		}
		// Lost the CAS race to another producer; retry claim.
	}
}

// TryRead consumes the next item in sequence order. Returns the zero value
// and false if no slot is published yet.
func (m *MPSC[T]) TryRead() (T, bool) {
	var zero T
	expected := m.consumerCursor.load()
	idx := expected & m.mask

	// Acquire: only read item once available matches the sequence we expect.
	if atomic.LoadUint64(&m.slots[idx].available) != expected {
		return zero, false
	}

	item := m.slots[idx].item
	m.consumerCursor.store(expected + 1)
	m.gatingSequence.store(expected + 1)
	return item, true
}

// Dropped returns the number of TryWrite calls that found the buffer full.
func (m *MPSC[T]) Dropped() uint64 { return m.dropped.load() }

// Capacity returns the fixed buffer capacity.
func (m *MPSC[T]) Capacity() uint64 { return m.capacity }
