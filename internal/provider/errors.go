package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	// KindTransient covers network blips, timeouts and provider 5xx; the
	// dispatcher retries these on the same provider.
	KindTransient ErrorKind = "TRANSIENT"
	// KindQuotaExceeded means the provider's own allowance ran out; the
	// dispatcher falls back to the next provider without retrying.
	KindQuotaExceeded ErrorKind = "QUOTA_EXCEEDED"
	// KindInvalidRecipient is permanent for the message; no retry, no fallback.
	KindInvalidRecipient ErrorKind = "INVALID_RECIPIENT"
	// KindFatal means the adapter is unusable (bad credentials/config) and is
	// excluded from provider order for the remainder of the process run.
	KindFatal ErrorKind = "FATAL"
)

func (k ErrorKind) String() string { return string(k) }

// Error classifies provider call failures by kind.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("provider error (%s)", e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf maps an error from a provider call to its classification. Unknown
// errors default to transient so they feed the retry path instead of failing
// the message permanently on an unclassified condition.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindTransient
}

// IsTransient reports whether an error should be retried on the same provider.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindTransient
}
