package idgen

import "testing"

func TestNextClientOrderIDIsMonotonicAndUnique(t *testing.T) {
	t.Parallel()
	g, err := New(SourceQuoter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := g.NextClientOrderID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestDistinctSourcesProduceDistinctNodes(t *testing.T) {
	t.Parallel()
	a, err := New(SourceQuoter)
	if err != nil {
		t.Fatalf("New(SourceQuoter): %v", err)
	}
	b, err := New(SourceRiskUnwind)
	if err != nil {
		t.Fatalf("New(SourceRiskUnwind): %v", err)
	}
	if a.Source() == b.Source() {
		t.Errorf("expected distinct sources, got both %v", a.Source())
	}
	if a.NextClientOrderID() == b.NextClientOrderID() {
		t.Errorf("distinct-source generators must not collide on first id")
	}
}
