package sheets

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestClassifyErr tests transport-level error tagging
func TestClassifyErr(t *testing.T) {
	if got := classifyErr(context.DeadlineExceeded); got.Kind != KindTimeout {
		t.Errorf("deadline exceeded classified as %s, want timeout", got.Kind)
	}

	wrapped := fmt.Errorf("request: %w", context.DeadlineExceeded)
	if got := classifyErr(wrapped); got.Kind != KindTimeout {
		t.Errorf("wrapped deadline classified as %s, want timeout", got.Kind)
	}

	if got := classifyErr(errors.New("connection refused")); got.Kind != KindUnknown {
		t.Errorf("plain error classified as %s, want unknown", got.Kind)
	}

	// An APIError passes through unchanged.
	orig := &APIError{Kind: KindAuth, StatusCode: 403}
	if got := classifyErr(fmt.Errorf("call: %w", orig)); got != orig {
		t.Errorf("wrapped APIError reclassified: %v", got)
	}
}

// TestRetryable tests the retry-policy view of errors
func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&APIError{Kind: KindAuth}, false},
		{&APIError{Kind: KindNotFound}, false},
		{&APIError{Kind: KindRateLimited}, true},
		{&APIError{Kind: KindTimeout}, true},
		{&APIError{Kind: KindUnknown}, true},
		{errors.New("anything else"), true},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
