package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a remote failure for the retry policy: auth and not-found
// are permanent, rate-limit and timeout are transient, anything else is
// retried with caution.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth         // 401/403 - fix the credential, don't retry
	KindNotFound     // 404 - fix the spreadsheet ID, don't retry
	KindRateLimited  // 429 - back off and retry
	KindTimeout      // deadline exceeded or network timeout - retry
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not-found"
	case KindRateLimited:
		return "rate-limited"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// APIError is a classified failure from the spreadsheet service.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sheets: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sheets: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the retry policy may attempt this call again.
func (e *APIError) Retryable() bool {
	return e.Kind != KindAuth && e.Kind != KindNotFound
}

// classifyStatus maps an HTTP status to an APIError.
func classifyStatus(status int, message string) *APIError {
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	return &APIError{Kind: kind, StatusCode: status, Message: message}
}

// classifyErr wraps a transport-level error, tagging deadline and network
// timeouts so the retry policy treats them as transient.
func classifyErr(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Message: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: KindTimeout, Message: err.Error()}
	}

	return &APIError{Kind: KindUnknown, Message: err.Error()}
}

// Retryable reports whether err permits another attempt. Errors that are
// not APIErrors are treated as retryable-with-caution.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
