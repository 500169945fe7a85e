package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Delay: time.Millisecond, Retryable: isTransient}
}

func TestDo_ExhaustsExactlyMaxAttempts(t *testing.T) {
	for _, attempts := range []int{1, 2, 3, 5} {
		calls := 0
		err := fastPolicy(attempts).Do(context.Background(), func(context.Context) error {
			calls++
			return errTransient
		})

		if calls != attempts {
			t.Errorf("MaxAttempts=%d: expected %d calls, got %d", attempts, attempts, calls)
		}
		var ex *ExhaustedError
		if !errors.As(err, &ex) {
			t.Fatalf("expected ExhaustedError, got %v", err)
		}
		if ex.Attempts != attempts {
			t.Errorf("expected %d attempts recorded, got %d", attempts, ex.Attempts)
		}
		if !errors.Is(err, errTransient) {
			t.Errorf("expected exhausted error to wrap the last error, got %v", err)
		}
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errPermanent
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, errPermanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if IsExhausted(err) {
		t.Error("expected a permanent error not to be reported as exhausted")
	}
}

func TestDo_NilPredicateRetriesEverything(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 2, Delay: time.Millisecond}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errPermanent
	})

	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if !IsExhausted(err) {
		t.Errorf("expected exhausted error, got %v", err)
	}
}

func TestDo_ZeroValueMakesOneAttempt(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Delay: time.Hour, Retryable: isTransient}

	calls := 0
	start := time.Now()
	err := p.Do(ctx, func(context.Context) error {
		calls++
		time.AfterFunc(20*time.Millisecond, cancel)
		return errTransient
	})

	if time.Since(start) > 5*time.Second {
		t.Fatal("expected cancellation to interrupt the delay")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if IsExhausted(err) {
		t.Error("expected an interrupted retry not to be reported as exhausted")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDo_OnRetry(t *testing.T) {
	var seen []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error) {
		seen = append(seen, attempt)
	}

	_ = p.Do(context.Background(), func(context.Context) error {
		return errTransient
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("expected retries after attempts [1 2], got %v", seen)
	}
}

func TestPolicy_Backoff(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		expected []time.Duration
	}{
		{
			name:     "constant",
			policy:   Policy{MaxAttempts: 3, Delay: time.Second},
			expected: []time.Duration{time.Second, time.Second},
		},
		{
			name:     "exponential",
			policy:   Policy{MaxAttempts: 4, Delay: time.Second, Backoff: Exponential},
			expected: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		},
		{
			name:     "single attempt",
			policy:   Policy{MaxAttempts: 1, Delay: time.Second},
			expected: []time.Duration{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.backoff()
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("wait %d: expected %v, got %v", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

func TestDefault(t *testing.T) {
	p := Default()
	if p.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", p.MaxAttempts)
	}
	if p.Delay != 5*time.Second {
		t.Errorf("expected 5s delay, got %v", p.Delay)
	}
}
