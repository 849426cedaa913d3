package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != ModeFixed {
		t.Fatalf("expected fixed default mode got %s", p.Mode)
	}
	if p.MaxRetries != 1 {
		t.Fatalf("expected max retries 1 got %d", p.MaxRetries)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(ModeLinear, 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Max != 2*time.Second {
		t.Fatalf("expected max 2s got %v", p.Max)
	}
	if p.Mode != ModeLinear {
		t.Fatalf("expected linear mode got %s", p.Mode)
	}
	if p.MaxRetries != 5 {
		t.Fatalf("expected maxRetries 5 got %d", p.MaxRetries)
	}

	if got := NewPolicy("", 0, 0, 0).MaxRetries; got != 0 {
		t.Fatalf("zero retries should disable retrying, got %d", got)
	}
	if got := NewPolicy("", 0, 0, -1).MaxRetries; got != 1 {
		t.Fatalf("negative retries should keep default, got %d", got)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(ModeFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		if d := fixed.Delay(i); d != 100*time.Millisecond {
			t.Fatalf("fixed attempt %d expected 100ms got %v", i, d)
		}
	}

	linear := NewPolicy(ModeLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	cases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}, {4, 250 * time.Millisecond}}
	for _, c := range cases {
		if got := linear.Delay(c.attempt); got != c.want {
			t.Fatalf("linear attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}

	exp := NewPolicy(ModeExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 50 * time.Millisecond}, {2, 100 * time.Millisecond}, {3, 160 * time.Millisecond}, {4, 160 * time.Millisecond}}
	for _, c := range expCases {
		if got := exp.Delay(c.attempt); got != c.want {
			t.Fatalf("exp attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}
}

// TestDelayEdgeCases ensures non-positive attempts yield zero.
func TestDelayEdgeCases(t *testing.T) {
	p := NewPolicy(ModeLinear, 10*time.Millisecond, 20*time.Millisecond, 1)
	if d := p.Delay(0); d != 0 {
		t.Fatalf("attempt 0 expected 0 got %v", d)
	}
	if d := p.Delay(-1); d != 0 {
		t.Fatalf("attempt -1 expected 0 got %v", d)
	}
}

func TestValidate(t *testing.T) {
	if err := (Policy{MaxRetries: -1}).Validate(); err == nil {
		t.Fatal("expected error for negative retries")
	}
	if err := (Policy{Initial: -time.Second}).Validate(); err == nil {
		t.Fatal("expected error for negative initial")
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestDoRetriesOnceThenSucceeds(t *testing.T) {
	p := Policy{Mode: ModeFixed, MaxRetries: 1}
	calls := 0
	var retried []int
	attempts, err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt == 1 {
			return errors.New("transient")
		}
		return nil
	}, func(retry int, err error) { retried = append(retried, retry) })

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 2 || calls != 2 {
		t.Fatalf("attempts = %d calls = %d, want 2/2", attempts, calls)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Fatalf("onRetry calls = %v, want [1]", retried)
	}
}

func TestDoExhausted(t *testing.T) {
	p := Policy{Mode: ModeFixed, MaxRetries: 1}
	want := errors.New("permanent")
	attempts, err := p.Do(context.Background(), func(int) error { return want }, nil)
	if !errors.Is(err, want) {
		t.Fatalf("Do() error = %v, want %v", err, want)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestDoDoesNotRetryAfterCancel(t *testing.T) {
	p := Policy{Mode: ModeFixed, MaxRetries: 3}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	attempts, err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return errors.New("failed")
	}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 || calls != 1 {
		t.Fatalf("attempts = %d calls = %d, want 1/1", attempts, calls)
	}
	if !strings.Contains(err.Error(), "retry abandoned") {
		t.Fatalf("error should mention abandoned retry, got %v", err)
	}
}
