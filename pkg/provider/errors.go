package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError represents a structured error from the carrier provider.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ProviderError.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// WithCause adds a cause to the error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ProviderError) WithStatusCode(code int) *ProviderError {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *ProviderError) WithRetryable(retryable bool) *ProviderError {
	e.Retryable = retryable
	return e
}

// Sentinel errors for common provider scenarios.
var (
	// ErrRateNotFound indicates no rate matched the requested carrier/service.
	ErrRateNotFound = errors.New("no matching rate found")

	// ErrAlreadyPurchased indicates the shipment label was already bought.
	ErrAlreadyPurchased = errors.New("shipment already purchased")

	// ErrNoRateSelected indicates a purchase was attempted without a rate.
	ErrNoRateSelected = errors.New("no rate selected")

	// ErrRateLimit indicates the provider rate limit was exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrShipmentInvalid indicates the shipment request was rejected.
	ErrShipmentInvalid = errors.New("invalid shipment")

	// ErrRefundNotAllowed indicates the shipment cannot be refunded.
	ErrRefundNotAllowed = errors.New("refund not allowed")

	// ErrWebhookNotFound indicates the webhook endpoint is not registered.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrServiceUnavailable indicates the provider is temporarily down.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// rateStaleMarker is the substring the provider emits when a previously
// fetched rate is no longer purchasable.
const rateStaleMarker = "rate object could not be found"

// staleRateMessage is the operator-facing replacement for stale-rate errors.
const staleRateMessage = "rates need to be recalculated, please refresh and try again"

// NormalizeMessage flattens a provider error message for display, remapping
// the known stale-rate error to a clearer instruction.
func NormalizeMessage(msg string) string {
	if strings.Contains(strings.ToLower(msg), rateStaleMarker) {
		return staleRateMessage
	}
	return msg
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimit)
}
