package checkout

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by where in the checkout pipeline it arose.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"         // Bad input shape or missing required field, raised before any I/O.
	ErrorKindConfiguration ErrorKind = "configuration"      // Missing organization id or similar setup prerequisite.
	ErrorKindNetwork       ErrorKind = "network"            // Transport-level failure, no HTTP response obtained.
	ErrorKindBackendAPI    ErrorKind = "backend_api"        // HTTP response obtained, envelope signals failure.
	ErrorKindProvider      ErrorKind = "provider"           // Tokenization provider failed to load, initialize, or render.
	ErrorKindLifecycle     ErrorKind = "checkout_lifecycle" // Illegal operation for the instance's current state.
)

// Backend error codes calling code is expected to special-case.
const (
	// CodeDoublePurchase signals the customer already has an active purchase
	// for this price; the attempt was rejected rather than charged twice.
	CodeDoublePurchase = "double_purchase"

	// CodeUnhandledStatus signals a payment response carried a checkout
	// status this SDK version does not know how to interpret.
	CodeUnhandledStatus = "unhandled_checkout_status"

	// CodePaymentProcessing signals the payment did not reach a final status
	// within the grace window; the customer should check back later.
	CodePaymentProcessing = "payment_processing"
)

// Error is the structured error type returned by every SDK operation.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`

	// RequestID is the backend-assigned id of the failing request, attached
	// on backend_api errors for support traceability.
	RequestID string `json:"request_id,omitempty"`

	cause error
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

type errorOption func(*Error)

// WithErrorCode sets the machine-readable code for the failure.
func WithErrorCode(code string) errorOption {
	return func(er *Error) {
		er.Code = code
	}
}

// WithRequestID attaches the backend-assigned request id.
func WithRequestID(id string) errorOption {
	return func(er *Error) {
		er.RequestID = id
	}
}

// WithCause records the underlying error for errors.Is and errors.As chains.
func WithCause(err error) errorOption {
	return func(er *Error) {
		er.cause = err
	}
}

// NewValidationError builds an error for malformed caller input.
func NewValidationError(message string, opts ...errorOption) *Error {
	return newError(ErrorKindValidation, message, opts...)
}

// NewConfigurationError builds an error for missing setup prerequisites.
func NewConfigurationError(message string, opts ...errorOption) *Error {
	return newError(ErrorKindConfiguration, message, opts...)
}

// NewNetworkError builds an error for transport-level failures.
func NewNetworkError(message string, opts ...errorOption) *Error {
	return newError(ErrorKindNetwork, message, opts...)
}

// NewBackendError builds an error from a backend failure envelope.
func NewBackendError(code, message string, opts ...errorOption) *Error {
	return newError(ErrorKindBackendAPI, message, append([]errorOption{WithErrorCode(code)}, opts...)...)
}

// NewProviderError builds an error for tokenization provider failures.
func NewProviderError(message string, opts ...errorOption) *Error {
	return newError(ErrorKindProvider, message, opts...)
}

// NewLifecycleError builds an error for operations that are illegal in the
// checkout's current state.
func NewLifecycleError(message string, opts ...errorOption) *Error {
	return newError(ErrorKindLifecycle, message, opts...)
}

// KindOf reports the taxonomy kind of err, or the empty string when err is
// not an SDK error.
func KindOf(err error) ErrorKind {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Kind
	}
	return ""
}

// CodeOf reports the machine-readable code of err, or the empty string.
func CodeOf(err error) string {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Code
	}
	return ""
}

// asSDKError normalizes any error into a *Error, wrapping foreign errors as
// the given kind so event payloads always carry the structured shape.
func asSDKError(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr
	}
	return newError(fallback, err.Error(), WithCause(err))
}

func newError(kind ErrorKind, message string, opts ...errorOption) *Error {
	errPayload := &Error{
		Kind:    kind,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(errPayload)
	}
	return errPayload
}
