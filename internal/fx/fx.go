// Package fx implements the FX rate service referenced by §9's design
// notes on currency conversion: a small directed rate graph, a BFS search
// bounded to two hops, and a configurable identity-pair list (defaulting
// to {USD, USDT}) so the common same-value-different-ticker case never
// needs an actual rate lookup.
//
// Grounded on the teacher's currency handling in internal/strategy, which
// hard-codes USD/USDT equivalence inline; generalized here into a
// reusable, overridable converter satisfying engine.FXConverter so any
// quote-currency pair can be wired in without touching the engine.
package fx

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

type edge struct {
	to   string
	rate decimal.Decimal
}

// Converter resolves a rate between two currencies over a hard-coded
// directed graph (rates registered via AddRate in both directions are
// typical, but only what's registered is searched), via BFS bounded to
// two hops. Resolved paths are cached by (from, to) pair.
type Converter struct {
	identity map[string]struct{}

	mu    sync.RWMutex
	graph map[string][]edge
	cache map[[2]string]decimal.Decimal
}

// New constructs a Converter. identityPairs lists currency pairs treated
// as rate 1 without a graph lookup (e.g. {"USD", "USDT"}).
func New(identityPairs ...[2]string) *Converter {
	c := &Converter{
		identity: make(map[string]struct{}),
		graph:    make(map[string][]edge),
		cache:    make(map[[2]string]decimal.Decimal),
	}
	for _, pair := range identityPairs {
		c.identity[pair[0]] = struct{}{}
		c.identity[pair[1]] = struct{}{}
	}
	return c
}

// DefaultIdentityPairs is the specification's default: USD and USDT treated
// as equivalent.
func DefaultIdentityPairs() [][2]string {
	return [][2]string{{"USD", "USDT"}}
}

// AddRate registers a directed edge from -> to at the given rate (1 unit
// of from = rate units of to). Invalidates any cached path that might be
// affected by clearing the whole cache, since the graph is small and
// rebuilt rarely (startup / config reload), not on the hot path.
func (c *Converter) AddRate(from, to string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graph[from] = append(c.graph[from], edge{to: to, rate: rate})
	c.cache = make(map[[2]string]decimal.Decimal)
}

// Rate resolves from -> to, searching at most two hops. Identity pairs and
// from==to short-circuit to a rate of 1.
func (c *Converter) Rate(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if c.isIdentity(from, to) {
		return decimal.NewFromInt(1), nil
	}

	key := [2]string{from, to}
	c.mu.RLock()
	if r, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return r, nil
	}
	c.mu.RUnlock()

	r, ok := c.bfs(from, to)
	if !ok {
		return decimal.Zero, fmt.Errorf("fx: no path from %s to %s within 2 hops", from, to)
	}

	c.mu.Lock()
	c.cache[key] = r
	c.mu.Unlock()
	return r, nil
}

func (c *Converter) isIdentity(from, to string) bool {
	_, f := c.identity[from]
	_, t := c.identity[to]
	return f && t
}

// bfs searches up to two hops for a path from -> to, multiplying edge
// rates along the way.
func (c *Converter) bfs(from, to string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.graph[from] {
		if e.to == to {
			return e.rate, true
		}
	}
	for _, e := range c.graph[from] {
		for _, e2 := range c.graph[e.to] {
			if e2.to == to {
				return e.rate.Mul(e2.rate), true
			}
		}
	}
	return decimal.Zero, false
}

// Pair implements engine.FXConverter for a fixed (from, to) pair; the rate
// is looked up through the Converter's cache on every Convert call.
type Pair struct {
	conv *Converter
	from string
	to   string
}

// NewPair binds a Converter to a fixed currency pair for use as an
// engine.FXConverter. If the rate cannot be resolved at call time, the
// input is passed through unchanged and the error is swallowed: a missing
// FX path must never block quoting, only skew it toward no-op.
func NewPair(conv *Converter, from, to string) Pair {
	return Pair{conv: conv, from: from, to: to}
}

func (p Pair) Convert(fv decimal.Decimal) decimal.Decimal {
	rate, err := p.conv.Rate(p.from, p.to)
	if err != nil {
		return fv
	}
	return fv.Mul(rate)
}
