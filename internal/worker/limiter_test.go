package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_Burst(t *testing.T) {
	limiter := NewLimiter(3)
	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d should pass within capacity", i+1)
		}
	}
	if limiter.Allow() {
		t.Error("expected allow to fail (exhausted tokens)")
	}
}

func TestLimiter_Refill(t *testing.T) {
	// 6000 rpm refills one token every 10ms.
	limiter := NewLimiter(6000)
	drained := 0
	for limiter.Allow() {
		drained++
	}
	if drained < 6000 {
		t.Fatalf("expected at least 6000 tokens in the bucket, drained %d", drained)
	}
	if limiter.Allow() {
		t.Fatal("expected allow to fail right after draining")
	}

	time.Sleep(15 * time.Millisecond)
	if !limiter.Allow() {
		t.Error("expected a token after waiting longer than 1/rate")
	}
}

func TestLimiter_AcquireTimeout(t *testing.T) {
	limiter := NewLimiter(1)
	ctx := context.Background()

	if err := limiter.Acquire(ctx, 50*time.Millisecond); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	start := time.Now()
	err := limiter.Acquire(ctx, 50*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("expected ErrAcquireTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("acquire should give up within the timeout, took %v", elapsed)
	}
}

func TestLimiter_AcquireCancelled(t *testing.T) {
	limiter := NewLimiter(1)
	limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Acquire(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0)
	for i := 0; i < 1000; i++ {
		if err := limiter.Acquire(context.Background(), time.Millisecond); err != nil {
			t.Fatalf("unlimited limiter failed at %d: %v", i, err)
		}
	}
	if limiter.RequestsPerMinute() != 0 {
		t.Errorf("expected 0, got %d", limiter.RequestsPerMinute())
	}
}
