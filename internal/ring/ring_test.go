package ring

import (
	"sync"
	"testing"
)

func TestSPSCFIFOOrder(t *testing.T) {
	t.Parallel()
	r := NewSPSC[int](8)

	for i := 0; i < 8; i++ {
		if !r.TryWrite(i) {
			t.Fatalf("TryWrite(%d) failed unexpectedly", i)
		}
	}

	for i := 0; i < 8; i++ {
		got, ok := r.TryRead()
		if !ok {
			t.Fatalf("TryRead() empty at i=%d, want %d", i, i)
		}
		if got != i {
			t.Errorf("TryRead() = %d, want %d", got, i)
		}
	}
}

func TestSPSCFullReturnsFalse(t *testing.T) {
	t.Parallel()
	r := NewSPSC[int](4)
	for i := 0; i < 4; i++ {
		if !r.TryWrite(i) {
			t.Fatalf("unexpected full at i=%d", i)
		}
	}
	if r.TryWrite(99) {
		t.Errorf("TryWrite on full buffer should return false")
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", r.Dropped())
	}

	if _, ok := r.TryRead(); !ok {
		t.Fatalf("expected a value after freeing a slot")
	}
	if !r.TryWrite(100) {
		t.Errorf("TryWrite should succeed after a read frees a slot")
	}
}

func TestSPSCEmptyReturnsFalse(t *testing.T) {
	t.Parallel()
	r := NewSPSC[int](4)
	if _, ok := r.TryRead(); ok {
		t.Errorf("TryRead on empty buffer should return false")
	}
}

func TestSPSCNoLossWhenConsumerKeepsUp(t *testing.T) {
	t.Parallel()
	r := NewSPSC[int](16)
	const n = 100_000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if r.Len() >= r.Capacity() {
				continue // wait for the consumer instead of writing into a full ring
			}
			if r.TryWrite(i) {
				i++
			}
		}
	}()

	got := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(got) < n {
			if v, ok := r.TryRead(); ok {
				got = append(got, v)
			}
		}
	}()

	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("order violated at index %d: got %d, want %d", i, v, i)
		}
	}
	if r.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0 when consumer keeps up", r.Dropped())
	}
}

func TestMPSCConcurrentProducersPreserveSetAndCount(t *testing.T) {
	t.Parallel()
	r := NewMPSC[int](1024)
	const producers = 8
	const perProducer = 2000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		p := p
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; {
				if r.TryWrite(p*perProducer + i) {
					i++
				}
			}
		}()
	}

	seen := make(map[int]bool, producers*perProducer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(seen) < producers*perProducer {
			if v, ok := r.TryRead(); ok {
				seen[v] = true
			}
		}
	}()

	wg.Wait()
	<-done

	if len(seen) != producers*perProducer {
		t.Fatalf("consumed %d distinct items, want %d", len(seen), producers*perProducer)
	}
}

func TestMPSCFullReturnsFalse(t *testing.T) {
	t.Parallel()
	r := NewMPSC[int](2)
	if !r.TryWrite(1) || !r.TryWrite(2) {
		t.Fatalf("unexpected failure filling buffer")
	}
	if r.TryWrite(3) {
		t.Errorf("TryWrite on full MPSC buffer should return false")
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", r.Dropped())
	}
}
