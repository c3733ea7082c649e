// Package reliability classifies upstream failures for metrics, logs and client hints.
// Nothing here retries; callers fail fast and report the class.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class is the outcome label for a failed upstream call.
type Class struct {
	Code      string
	Retryable bool
}

// statusCoder is implemented by upstream errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify labels err. A nil error means the upstream answered but had nothing to give.
func Classify(err error) Class {
	if err == nil {
		return Class{Code: "empty", Retryable: false}
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return Class{Code: fmt.Sprintf("http_%d", code), Retryable: IsRetryableHTTPStatus(code)}
	}
	if errors.Is(err, context.Canceled) {
		return Class{Code: "canceled", Retryable: false}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Class{Code: "timeout", Retryable: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Class{Code: "timeout", Retryable: true}
	}
	return Class{Code: "unavailable", Retryable: true}
}
