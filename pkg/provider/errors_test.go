package provider_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parcelforge/fulfillment/pkg/provider"
)

func TestProviderError_Error(t *testing.T) {
	err := provider.NewProviderError("easypost", "RATE.UNAVAILABLE", "no rates returned")
	assert.Equal(t, "easypost error (RATE.UNAVAILABLE): no rates returned", err.Error())
}

func TestProviderError_ErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := provider.NewProviderError("easypost", "NETWORK", "request failed").WithCause(cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestProviderError_IsMatchesByCode(t *testing.T) {
	a := provider.NewProviderError("easypost", "RATE.UNAVAILABLE", "one message")
	b := provider.NewProviderError("easypost", "RATE.UNAVAILABLE", "another message")
	c := provider.NewProviderError("easypost", "SHIPMENT.INVALID", "different code")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
	assert.False(t, errors.Is(a, errors.New("plain")))
}

func TestProviderError_AsThroughWrapping(t *testing.T) {
	inner := provider.NewProviderError("easypost", "SHIPMENT.INVALID", "bad address").
		WithStatusCode(422).
		WithRetryable(false)
	wrapped := fmt.Errorf("creating shipment: %w", inner)

	var provErr *provider.ProviderError
	assert.True(t, errors.As(wrapped, &provErr))
	assert.Equal(t, 422, provErr.StatusCode)
}

func TestIsRetryable(t *testing.T) {
	retryable := provider.NewProviderError("easypost", "RATE_LIMIT", "slow down").WithRetryable(true)
	permanent := provider.NewProviderError("easypost", "SHIPMENT.INVALID", "bad address")

	assert.True(t, provider.IsRetryable(retryable))
	assert.False(t, provider.IsRetryable(permanent))
	assert.True(t, provider.IsRetryable(fmt.Errorf("wrapped: %w", provider.ErrRateLimit)))
	assert.True(t, provider.IsRetryable(provider.ErrServiceUnavailable))
	assert.False(t, provider.IsRetryable(errors.New("something else")))
}

func TestNormalizeMessage_RemapsStaleRate(t *testing.T) {
	msg := provider.NormalizeMessage("The requested Rate object could not be found, please re-rate")
	assert.Equal(t, "rates need to be recalculated, please refresh and try again", msg)
}

func TestNormalizeMessage_PassesOthersThrough(t *testing.T) {
	assert.Equal(t, "address is invalid", provider.NormalizeMessage("address is invalid"))
}
