package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky upstream")

func TestRetryWithBackoffBase(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		failUntil  int // attempts below this fail; -1 fails forever
		wrap       func(error) error
		wantCalls  int
		wantErr    bool
	}{
		{"first try", 3, 0, nil, 1, false},
		{"recovers on third attempt", 3, 2, nil, 3, false},
		{"exhausted", 2, -1, nil, 3, true},
		{"no retries", 0, -1, nil, 1, true},
		{"permanent stops", 5, -1, Permanent, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoffBase(context.Background(), tt.maxRetries, time.Millisecond, func(attempt int) error {
				calls++
				if tt.failUntil >= 0 && attempt >= tt.failUntil {
					return nil
				}
				if tt.wrap != nil {
					return tt.wrap(errFlaky)
				}
				return errFlaky
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errFlaky) {
				t.Errorf("err = %v, want wrapped errFlaky", err)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestPermanentIsUnwrapped(t *testing.T) {
	err := RetryWithBackoffBase(context.Background(), 2, time.Millisecond, func(int) error {
		return Permanent(errFlaky)
	})
	if err != errFlaky {
		t.Errorf("err = %#v, want the bare cause", err)
	}
	if Permanent(nil) != nil || RetryAfter(nil, time.Second) != nil {
		t.Error("wrapping nil should stay nil")
	}
}

func TestRetryAfterReplacesBackoff(t *testing.T) {
	start := time.Now()
	calls := 0
	// An hour of base backoff would time the test out if RetryAfter were ignored.
	err := RetryWithBackoffBase(context.Background(), 1, time.Hour, func(attempt int) error {
		calls++
		if attempt == 0 {
			return RetryAfter(errFlaky, 5*time.Millisecond)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("waited %v", elapsed)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, 3, func(int) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v, calls = %d; want context.Canceled after 1 call", err, calls)
	}
}

func TestBackoffDoubles(t *testing.T) {
	start := time.Now()
	RetryWithBackoffBase(context.Background(), 2, 20*time.Millisecond, func(int) error {
		return errFlaky
	})
	// 20ms then 40ms.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 60ms", elapsed)
	}
}
