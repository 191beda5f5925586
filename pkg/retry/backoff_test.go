package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDo_SuccessFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	policy := Policy{MaxRetries: 5, InitialBackoff: 10 * time.Millisecond, MaxBackoff: 100 * time.Millisecond}

	attempts := 0
	start := time.Now()
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	// 10ms + 20ms of backoff
	if elapsed < 30*time.Millisecond {
		t.Errorf("expected at least 30ms elapsed, got %v", elapsed)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	policy := Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	attempts := 0
	expectedErr := errors.New("still failing")
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return expectedErr
	})

	if attempts != 4 {
		t.Errorf("expected 4 attempts (1 initial + 3 retries), got %d", attempts)
	}
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected wrapped error to be %v, got %v", expectedErr, err)
	}
}

func TestDo_NoRetries(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("boom")
	err := Do(context.Background(), Policy{}, func(ctx context.Context) error {
		attempts++
		return expectedErr
	})
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
	if err != expectedErr {
		t.Errorf("expected unwrapped error, got %v", err)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	policy := Policy{MaxRetries: 5, InitialBackoff: time.Millisecond}
	notFound := errors.New("404 not found")

	attempts := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return Permanent(notFound)
	})

	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if err != notFound {
		t.Errorf("expected the original error back, got %v", err)
	}
	if IsPermanent(err) {
		t.Errorf("returned error should no longer be marked permanent")
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
	base := errors.New("x")
	wrapped := fmt.Errorf("ctx: %w", Permanent(base))
	if !IsPermanent(wrapped) {
		t.Error("expected wrapped permanent error to be detected")
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected permanent error to unwrap to the original")
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	policy := Policy{MaxRetries: 10, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	attempts := 0
	opErr := errors.New("always fails")
	err := Do(ctx, policy, func(ctx context.Context) error {
		attempts++
		return opErr
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if !errors.Is(err, opErr) {
		t.Errorf("expected last operation error to be kept, got %v", err)
	}
	if attempts == 0 || attempts > 5 {
		t.Errorf("unexpected attempt count %d", attempts)
	}
}

func TestBackoff_ExponentialGrowth(t *testing.T) {
	policy := Policy{InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := backoff(tt.attempt, policy); got != tt.want {
				t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
