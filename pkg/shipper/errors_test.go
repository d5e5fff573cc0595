package shipper_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

func TestShipperError_Error(t *testing.T) {
	err := shipper.NewShipperError("naqel", "INVALID_ADDRESS", "Invalid city")
	assert.Equal(t, "naqel INVALID_ADDRESS: Invalid city", err.Error())

	withStatus := shipper.Retryable("dhl", "HTTP_ERROR", "bad gateway").WithStatusCode(502)
	assert.Equal(t, "dhl HTTP_ERROR: bad gateway (HTTP 502)", withStatus.Error())
}

func TestShipperError_ErrorWithCause(t *testing.T) {
	cause := errors.New("network timeout")
	err := shipper.NewShipperError("dhl", "API_ERROR", "API call failed").WithCause(cause)
	assert.Contains(t, err.Error(), "API call failed")
	assert.Contains(t, err.Error(), "network timeout")
}

func TestShipperError_Unwrap(t *testing.T) {
	err := shipper.Fatal("smsa", "RESEND", "resend refused").WithCause(shipper.ErrResendNotAllowed)
	assert.True(t, errors.Is(err, shipper.ErrResendNotAllowed))

	wrapped := fmt.Errorf("dispatch: %w", err)
	assert.True(t, errors.Is(wrapped, shipper.ErrResendNotAllowed))
	assert.False(t, shipper.IsRetryable(wrapped))
}

func TestShipperError_Is(t *testing.T) {
	err1 := shipper.NewShipperError("naqel", "INVALID_ADDRESS", "Invalid city")
	assert.True(t, errors.Is(err1, &shipper.ShipperError{Code: "INVALID_ADDRESS"}))
	assert.True(t, errors.Is(err1, shipper.NewShipperError("naqel", "INVALID_ADDRESS", "Different message")))
	assert.False(t, errors.Is(err1, shipper.NewShipperError("postaplus", "INVALID_ADDRESS", "Invalid city")))

	err3 := shipper.NewShipperError("naqel", "DIFFERENT_CODE", "Different error")
	assert.False(t, errors.Is(err1, err3))
}

func TestShipperError_WithStatusCode(t *testing.T) {
	err := shipper.NewShipperError("aramex_sa", "HTTP_500", "Server error").WithStatusCode(500)
	assert.Equal(t, 500, err.StatusCode)
}

func TestRetryableAndFatal(t *testing.T) {
	assert.True(t, shipper.IsRetryable(shipper.Retryable("naqel", "HAS_ERROR", "busy")))
	assert.False(t, shipper.IsRetryable(shipper.Fatal("dhl", "REJECTED", "bad data")))
}

func TestIsRetryable_Sentinels(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{shipper.ErrServiceUnavailable, true},
		{shipper.ErrRateLimitExceeded, true},
		{shipper.ErrInvalidAddress, false},
		{shipper.ErrResendNotAllowed, false},
		{shipper.ErrCityCodeNotFound, false},
		{shipper.ErrNumberPoolExhausted, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, shipper.IsRetryable(tt.err))
		})
	}
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, shipper.IsRetryable(errors.New("boom")))
	assert.False(t, shipper.IsRetryable(nil))
}

func TestHTTPFailure(t *testing.T) {
	cause := errors.New("HTTP_401: token expired")

	auth := shipper.HTTPFailure("aramex_sa", "SEND_FAILED", "token expired", http.StatusUnauthorized, cause)
	assert.False(t, shipper.IsRetryable(auth))
	assert.True(t, errors.Is(auth, shipper.ErrAuthenticationFailed))
	assert.True(t, errors.Is(auth, cause))
	assert.Equal(t, http.StatusUnauthorized, auth.StatusCode)

	forbidden := shipper.HTTPFailure("aramex", "FETCH_LOCATIONS", "denied", http.StatusForbidden, cause)
	assert.True(t, errors.Is(forbidden, shipper.ErrAuthenticationFailed))

	throttled := shipper.HTTPFailure("aramex", "FETCH_LOCATIONS", "slow down", http.StatusTooManyRequests, cause)
	assert.True(t, shipper.IsRetryable(throttled))
	assert.True(t, errors.Is(throttled, shipper.ErrRateLimitExceeded))

	outage := shipper.HTTPFailure("aramex_sa", "SEND_FAILED", "unavailable", http.StatusServiceUnavailable, cause)
	assert.True(t, shipper.IsRetryable(outage))
	assert.False(t, errors.Is(outage, shipper.ErrAuthenticationFailed))
}
