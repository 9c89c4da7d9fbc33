package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	errServer := errors.New("503")

	tests := []struct {
		name          string
		attempts      int
		failures      int
		class         ErrorClass
		wantCalls     int
		wantErr       bool
		wantExhausted bool
	}{
		{name: "success first try", attempts: 3, failures: 0, class: ErrorClassServer, wantCalls: 1},
		{name: "success after retry", attempts: 3, failures: 2, class: ErrorClassServer, wantCalls: 3},
		{name: "exhausted", attempts: 3, failures: 5, class: ErrorClassNetwork, wantCalls: 3, wantErr: true, wantExhausted: true},
		{name: "client error not retried", attempts: 3, failures: 5, class: ErrorClassClient, wantCalls: 1, wantErr: true},
		{name: "abort not retried", attempts: 3, failures: 5, class: ErrorClassAborted, wantCalls: 1, wantErr: true},
		{name: "single attempt", attempts: 1, failures: 5, class: ErrorClassServer, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryWithBackoff(context.Background(), fastRetry(tt.attempts), func() (ErrorClass, error) {
				calls++
				if calls <= tt.failures {
					return tt.class, errServer
				}
				return "", nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errServer) {
					t.Errorf("err = %v, should wrap the last failure", err)
				}
				if errors.Is(err, ErrRetryExhausted) != tt.wantExhausted {
					t.Errorf("ErrRetryExhausted = %v, want %v", errors.Is(err, ErrRetryExhausted), tt.wantExhausted)
				}
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 2}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, cfg, func() (ErrorClass, error) {
		return ErrorClassServer, errors.New("503")
	})
	if !IsAbort(err) {
		t.Errorf("err = %v, want abort-class error", err)
	}
}
