package exchange

import (
	"context"
	"errors"
	"testing"
)

type fakeNetError struct{ msg string }

func (e *fakeNetError) Error() string   { return e.msg }
func (e *fakeNetError) Timeout() bool   { return true }
func (e *fakeNetError) Temporary() bool { return true }

func TestNormalizeErrorNetworkIsRetryable(t *testing.T) {
	err := normalizeError(&fakeNetError{msg: "dial tcp: i/o timeout"})

	ae, ok := AsApiError(err)
	if !ok {
		t.Fatalf("expected ApiError, got %v", err)
	}
	if !ae.Retryable {
		t.Error("network errors must be retryable")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable must agree with the error classification")
	}
}

func TestNormalizeErrorUnknownIsNotRetryable(t *testing.T) {
	err := normalizeError(errors.New("something odd"))

	ae, ok := AsApiError(err)
	if !ok {
		t.Fatalf("expected ApiError, got %v", err)
	}
	if ae.Retryable {
		t.Error("unknown errors must not be retryable")
	}
}

func TestNormalizeErrorPreservesContextCancellation(t *testing.T) {
	if err := normalizeError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled preserved, got %v", err)
	}
	if err := normalizeError(context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded preserved, got %v", err)
	}
}

func TestNormalizeErrorNil(t *testing.T) {
	if err := normalizeError(nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
