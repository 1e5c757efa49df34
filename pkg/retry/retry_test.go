package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	stobixErrors "github.com/bardlex/stobixd/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts = 3, got %d", config.MaxAttempts)
	}
	if config.BaseDelay != 2*time.Second {
		t.Errorf("Expected BaseDelay = 2s, got %v", config.BaseDelay)
	}
	if config.MaxDelay != 0 {
		t.Errorf("Expected uncapped MaxDelay, got %v", config.MaxDelay)
	}
	if config.Multiplier != 1.5 {
		t.Errorf("Expected Multiplier = 1.5, got %f", config.Multiplier)
	}
	if config.Jitter {
		t.Error("Expected Jitter = false")
	}
}

func TestSinkConfig(t *testing.T) {
	config := SinkConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts = 5, got %d", config.MaxAttempts)
	}
	if config.MaxDelay != 2*time.Second {
		t.Errorf("Expected MaxDelay = 2s, got %v", config.MaxDelay)
	}
}

func TestDo_Success(t *testing.T) {
	config := &Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		if callCount == 1 {
			return stobixErrors.New(stobixErrors.ErrorTypeTransport, "test", "retryable error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
}

func TestDo_MaxAttemptsReached(t *testing.T) {
	config := &Config{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2.0}

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		return stobixErrors.New(stobixErrors.ErrorTypeTransport, "test", "persistent error")
	})
	if err == nil {
		t.Fatal("Expected error after max attempts")
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
	if !stobixErrors.IsType(err, stobixErrors.ErrorTypeTransport) {
		t.Errorf("Expected final error to keep transport type, got %v", err)
	}
	if got := stobixErrors.GetContext(err)["max_attempts"]; got != 2 {
		t.Errorf("Expected max_attempts = 2 in context, got %v", got)
	}
}

func TestDo_NeverExceedsMaxAttempts(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 4} {
		config := &Config{MaxAttempts: maxAttempts, BaseDelay: time.Microsecond, Multiplier: 1.5}

		callCount := 0
		_ = Do(context.Background(), config, func() error {
			callCount++
			return stobixErrors.New(stobixErrors.ErrorTypeTransport, "test", "down")
		})
		if callCount != maxAttempts {
			t.Errorf("MaxAttempts=%d: expected %d calls, got %d", maxAttempts, maxAttempts, callCount)
		}
	}
}

func TestDo_NonRetryableError(t *testing.T) {
	config := &Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		return stobixErrors.New(stobixErrors.ErrorTypeValidation, "test", "validation error")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry), got %d", callCount)
	}
	if !stobixErrors.IsType(err, stobixErrors.ErrorTypeValidation) {
		t.Error("Expected original validation error type")
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := &Config{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2.0}

	callCount := 0
	err := Do(ctx, config, func() error {
		callCount++
		if callCount == 2 {
			cancel()
		}
		return stobixErrors.New(stobixErrors.ErrorTypeTransport, "test", "network error")
	})
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
}

func TestDoWithResult_EventualSuccessAfterFailures(t *testing.T) {
	const failures = 3
	var delays []time.Duration
	config := &Config{
		MaxAttempts: failures + 1,
		BaseDelay:   2 * time.Millisecond,
		Multiplier:  1.5,
		OnRetry: func(_ int, delay time.Duration, _ error) {
			delays = append(delays, delay)
		},
	}

	callCount := 0
	result, err := DoWithResult(context.Background(), config, func() (string, error) {
		callCount++
		if callCount <= failures {
			return "", stobixErrors.New(stobixErrors.ErrorTypeTransport, "test", "flaky")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if result != "ok" {
		t.Errorf("Expected result 'ok', got %q", result)
	}
	if len(delays) != failures {
		t.Fatalf("Expected %d recorded delays, got %d", failures, len(delays))
	}
	if delays[0] != config.BaseDelay {
		t.Errorf("Expected first delay %v, got %v", config.BaseDelay, delays[0])
	}
	for i := 1; i < len(delays); i++ {
		if float64(delays[i]) < float64(delays[i-1])*1.5 {
			t.Errorf("delay %d = %v, want >= 1.5 x %v", i, delays[i], delays[i-1])
		}
	}
}

func TestDoWithResult_Failure(t *testing.T) {
	config := &Config{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2.0}

	callCount := 0
	result, err := DoWithResult(context.Background(), config, func() (int, error) {
		callCount++
		return 7, stobixErrors.New(stobixErrors.ErrorTypeTransport, "test", "persistent error")
	})
	if err == nil {
		t.Error("Expected error after max attempts")
	}
	if result != 0 {
		t.Errorf("Expected zero value result, got %d", result)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
}

func TestConfig_calculateDelay(t *testing.T) {
	config := &Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{5, time.Second},
	}

	for _, tt := range tests {
		if delay := config.calculateDelay(tt.attempt); delay != tt.expected {
			t.Errorf("For attempt %d, expected delay %v, got %v", tt.attempt, tt.expected, delay)
		}
	}
}

func TestConfig_Delays(t *testing.T) {
	got := DefaultConfig().Delays()
	want := []time.Duration{2 * time.Second, 3 * time.Second}

	if len(got) != len(want) {
		t.Fatalf("Delays() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Delays()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConfig_calculateDelay_WithJitter(t *testing.T) {
	config := &Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0, Jitter: true}

	delay := config.calculateDelay(0)
	if delay < 100*time.Millisecond || delay > 110*time.Millisecond {
		t.Errorf("Delay with jitter out of range: %v", delay)
	}
}

func TestDo_RegularError(t *testing.T) {
	config := &Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		return errors.New("regular error")
	})
	if err == nil {
		t.Error("Expected error")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for regular error), got %d", callCount)
	}
}
