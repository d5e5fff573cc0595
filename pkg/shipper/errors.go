package shipper

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ShipperError is a failure reported by a carrier integration. Retryable
// errors leave a resend task behind; the others are final for the shipment.
type ShipperError struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int // HTTP status of the carrier response, 0 when none
	Retryable  bool
	Cause      error
}

func (e *ShipperError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Carrier, e.Code, e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ShipperError) Unwrap() error {
	return e.Cause
}

// Is matches another ShipperError with the same code. A target without a
// carrier matches the code of any carrier.
func (e *ShipperError) Is(target error) bool {
	t, ok := target.(*ShipperError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Carrier == "" || t.Carrier == e.Carrier)
}

// NewShipperError creates a non-retryable error.
func NewShipperError(carrier, code, message string) *ShipperError {
	return &ShipperError{Carrier: carrier, Code: code, Message: message}
}

// WithCause sets the underlying error.
func (e *ShipperError) WithCause(err error) *ShipperError {
	e.Cause = err
	return e
}

// WithStatusCode records the HTTP status of the carrier response.
func (e *ShipperError) WithStatusCode(code int) *ShipperError {
	e.StatusCode = code
	return e
}

// WithRetryable overrides the retry classification.
func (e *ShipperError) WithRetryable(retryable bool) *ShipperError {
	e.Retryable = retryable
	return e
}

// Retryable builds an error for a transient carrier failure.
func Retryable(carrier, code, message string) *ShipperError {
	return &ShipperError{Carrier: carrier, Code: code, Message: message, Retryable: true}
}

// Fatal builds an error that must not be retried automatically.
func Fatal(carrier, code, message string) *ShipperError {
	return NewShipperError(carrier, code, message)
}

// HTTPFailure builds the error for a non-success carrier response. Rejected
// credentials are final and match ErrAuthenticationFailed, throttled calls
// match ErrRateLimitExceeded; every other status is retried.
func HTTPFailure(carrier, code, message string, status int, cause error) *ShipperError {
	e := Retryable(carrier, code, message).WithStatusCode(status)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return e.WithRetryable(false).WithCause(fmt.Errorf("%w: %w", ErrAuthenticationFailed, cause))
	case http.StatusTooManyRequests:
		return e.WithCause(fmt.Errorf("%w: %w", ErrRateLimitExceeded, cause))
	}
	return e.WithCause(cause)
}

// Sentinel errors for common shipping scenarios.
var (
	// ErrInvalidAddress indicates the address is invalid or incomplete.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidDestination indicates the carrier does not serve the destination.
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrCityCodeNotFound indicates the destination city has no carrier code.
	ErrCityCodeNotFound = errors.New("city code not found")

	// ErrServiceUnavailable indicates the carrier service is temporarily unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrResendNotAllowed indicates the carrier forbids resending a shipment.
	ErrResendNotAllowed = errors.New("resend not allowed")

	// ErrNumberPoolExhausted indicates no pre-allocated tracking number is left.
	ErrNumberPoolExhausted = errors.New("tracking number pool exhausted")

	// ErrDocumentNotAvailable indicates the document cannot be produced yet.
	ErrDocumentNotAvailable = errors.New("document not available")

	// ErrAuthenticationFailed indicates carrier authentication failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRateLimitExceeded indicates the carrier rate limit was exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCarrierNotFound indicates the requested carrier is not registered.
	ErrCarrierNotFound = errors.New("carrier not found")
)

// IsRetryable reports whether a send failure should leave a resend task.
// Bare sentinels for an unavailable or throttling carrier count as transient.
func IsRetryable(err error) bool {
	if se := (*ShipperError)(nil); errors.As(err, &se) {
		return se.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}
