package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while breaker open")
	}
	if b.State() != "open" {
		t.Errorf("state = %q", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Minute})

	b.Execute(func() error { return errBackend })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBackend })

	// Two non-consecutive failures must not open the breaker.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("breaker opened on non-consecutive failures: %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: 50 * time.Millisecond, HalfOpenMax: 1})

	b.Execute(func() error { return errBackend })
	if b.State() != "open" {
		t.Fatalf("state = %q, want open", b.State())
	}

	time.Sleep(80 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("state after successful probe = %q", b.State())
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "defaults"})

	// Four consecutive failures stay under the default threshold of five.
	for i := 0; i < 4; i++ {
		b.Execute(func() error { return errBackend })
	}
	if b.State() != "closed" {
		t.Fatalf("state = %q after 4 failures", b.State())
	}
	b.Execute(func() error { return errBackend })
	if b.State() != "open" {
		t.Errorf("state = %q after 5 failures", b.State())
	}
}
