package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWriteSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retryWrite(context.Background(), RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("file is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryWrite: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryWriteGivesUp(t *testing.T) {
	calls := 0
	writeErr := errors.New("disk full")
	err := retryWrite(context.Background(), fastRetry(), func() error {
		calls++
		return writeErr
	})
	if !errors.Is(err, writeErr) {
		t.Fatalf("retryWrite: err = %v, want %v", err, writeErr)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{}.withDefaults()
	if policy != DefaultRetryPolicy() {
		t.Fatalf("withDefaults = %+v, want %+v", policy, DefaultRetryPolicy())
	}

	policy = RetryPolicy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Millisecond}.withDefaults()
	if policy.MaxAttempts != 5 || policy.MaxInterval != time.Second {
		t.Fatalf("withDefaults = %+v, want 5 attempts and max interval raised to 1s", policy)
	}
}
