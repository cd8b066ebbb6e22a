package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errUnavailable = errors.New("tasks api unavailable")
	errMissing     = errors.New("task not found")
)

func trip(b *Breaker, n int) {
	for range n {
		_ = b.Execute(func() error { return errUnavailable })
	}
}

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed, got %s", got)
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)
	trip(b, 3)

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := b.State(); got != "open" {
		t.Fatalf("expected open, got %s", got)
	}
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }
	trip(b, 2)

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if got := b.State(); got != "half-open" {
		t.Fatalf("expected half-open after timeout, got %s", got)
	}

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed after successful probe, got %s", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }
	trip(b, 2)

	now = now.Add(2 * time.Second)
	_ = b.Execute(func() error { return errUnavailable })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)
	trip(b, 2)
	_ = b.Execute(func() error { return nil })
	trip(b, 2)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected breaker still closed, got %v", err)
	}
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(1, time.Second, WithIgnore(func(err error) bool {
		return errors.Is(err, errMissing)
	}))

	for range 5 {
		if err := b.Execute(func() error { return errMissing }); !errors.Is(err, errMissing) {
			t.Fatalf("expected the call error to pass through, got %v", err)
		}
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("ignored errors must not open the breaker, got %s", got)
	}
}

func TestCancelledCallsDoNotTrip(t *testing.T) {
	b := NewBreaker(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.ExecuteContext(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("cancellation must not open the breaker, got %s", got)
	}
}
