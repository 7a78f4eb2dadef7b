package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWrap_SucceedsAfterFailures(t *testing.T) {
	var calls int32
	op := func(ctx context.Context, arg string) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return "", errors.New("transient")
		}
		return "got " + arg, nil
	}

	var retries int
	wrapped := Wrap(op, Policy{
		MaxRetries: 3,
		Delay:      time.Millisecond,
		OnRetry:    func(error, time.Duration) { retries++ },
	})

	got, err := wrapped(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got != "got payload" {
		t.Errorf("Expected argument to be preserved across retries, got %q", got)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if retries != 2 {
		t.Errorf("Expected 2 retry notifications, got %d", retries)
	}
}

func TestWrap_ExhaustedReturnsLastError(t *testing.T) {
	var calls int
	sentinel := errors.New("still broken")
	op := func(ctx context.Context, _ int) (int, error) {
		calls++
		return 0, sentinel
	}

	wrapped := Wrap(op, Policy{MaxRetries: 3, Delay: time.Millisecond})
	_, err := wrapped(context.Background(), 1)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected sentinel error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected initial call plus 3 retries (4), got %d", calls)
	}
}

func TestWrap_IndependentBudgets(t *testing.T) {
	var calls int32
	op := func(ctx context.Context, _ struct{}) (struct{}, error) {
		atomic.AddInt32(&calls, 1)
		return struct{}{}, errors.New("fail")
	}
	wrapped := Wrap(op, Policy{MaxRetries: 1, Delay: time.Millisecond})

	for i := 0; i < 2; i++ {
		if _, err := wrapped(context.Background(), struct{}{}); err == nil {
			t.Fatal("Expected error")
		}
	}
	if calls != 4 {
		t.Errorf("Expected each invocation to get 2 attempts (4 total), got %d", calls)
	}
}

func TestWrap_FixedDelay(t *testing.T) {
	var stamps []time.Time
	op := func(ctx context.Context, _ int) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("fail")
	}
	delay := 20 * time.Millisecond
	wrapped := Wrap(op, Policy{MaxRetries: 2, Delay: delay})
	_, _ = wrapped(context.Background(), 0)

	if len(stamps) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < delay {
			t.Errorf("Attempt %d ran after %v, expected at least %v", i, gap, delay)
		}
	}
}

func TestWrap_ContextCancelledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sentinel := errors.New("boom")
	var calls int
	op := func(ctx context.Context, _ int) (int, error) {
		calls++
		cancel()
		return 0, sentinel
	}

	wrapped := Wrap(op, Policy{MaxRetries: 5, Delay: time.Hour})
	_, err := wrapped(ctx, 0)
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected operation error after cancellation, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}
