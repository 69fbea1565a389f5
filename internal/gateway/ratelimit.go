package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter groups per-category rate limits the way an exchange's
// documented request budget is usually split: order placement, cancels,
// and read-only book polls each get their own bucket so a burst of cancels
// can never starve new order submission.
//
// Grounded on the teacher's exchange.RateLimiter category split
// (internal/exchange/ratelimit.go: Order/Cancel/Book), ported from its
// hand-rolled continuous-refill TokenBucket onto golang.org/x/time/rate,
// the ecosystem's standard token-bucket limiter.
type RateLimiter struct {
	Order  *rate.Limiter
	Cancel *rate.Limiter
	Book   *rate.Limiter
}

// NewRateLimiter builds a RateLimiter from burst/refill pairs tuned to the
// target exchange's published limits.
func NewRateLimiter(orderBurst, orderPerSec, cancelBurst, cancelPerSec, bookBurst, bookPerSec int) *RateLimiter {
	return &RateLimiter{
		Order:  rate.NewLimiter(rate.Limit(orderPerSec), orderBurst),
		Cancel: rate.NewLimiter(rate.Limit(cancelPerSec), cancelBurst),
		Book:   rate.NewLimiter(rate.Limit(bookPerSec), bookBurst),
	}
}

// DefaultRateLimiter matches the teacher's tuned defaults (350 burst/50 per
// sec for orders, 300/30 for cancels, 150/15 for book reads).
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(350, 50, 300, 30, 150, 15)
}

func (r *RateLimiter) waitOrder(ctx context.Context) error  { return r.Order.Wait(ctx) }
func (r *RateLimiter) waitCancel(ctx context.Context) error { return r.Cancel.Wait(ctx) }
