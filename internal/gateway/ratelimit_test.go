package gateway

import (
	"context"
	"testing"
	"time"
)

func TestNewRateLimiterAppliesBurstPerCategory(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, 1, 3, 1, 4, 1)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := rl.waitOrder(ctx); err != nil {
			t.Fatalf("waitOrder burst %d: %v", i, err)
		}
	}
	if err := rl.Order.Wait(ctx); err != nil {
		t.Fatalf("expected the bucket to refill rather than error: %v", err)
	}
}

func TestWaitOrderBlocksUntilContextDeadline(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(1, 1, 1, 1, 1, 1)
	ctx := context.Background()
	if err := rl.waitOrder(ctx); err != nil {
		t.Fatalf("first waitOrder: %v", err)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	if err := rl.waitOrder(deadlineCtx); err == nil {
		t.Errorf("expected deadline exceeded when the order bucket is drained")
	}
}

func TestWaitCancelUsesIndependentBucket(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(1, 1, 2, 1, 1, 1)
	ctx := context.Background()
	if err := rl.waitOrder(ctx); err != nil {
		t.Fatalf("waitOrder: %v", err)
	}
	if err := rl.waitCancel(ctx); err != nil {
		t.Errorf("waitCancel should not be blocked by an exhausted order bucket: %v", err)
	}
}

func TestDefaultRateLimiterMatchesTunedDefaults(t *testing.T) {
	t.Parallel()
	rl := DefaultRateLimiter()
	if rl.Order.Burst() != 350 {
		t.Errorf("Order burst = %d, want 350", rl.Order.Burst())
	}
	if rl.Cancel.Burst() != 300 {
		t.Errorf("Cancel burst = %d, want 300", rl.Cancel.Burst())
	}
	if rl.Book.Burst() != 150 {
		t.Errorf("Book burst = %d, want 150", rl.Book.Burst())
	}
}
