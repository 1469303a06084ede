// Package errs provides structured error types and helpers for cartsync services.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category produced by cartsync components.
type Code string

const (
	// CodeRateLimited indicates that the request exceeded rate limits.
	CodeRateLimited Code = "rate_limited"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a concurrent mutation conflict.
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
	// CodeUpstream indicates a storefront- or editor-side failure.
	CodeUpstream Code = "upstream_error"
)

// E captures structured error information produced across the cartsync stack.
type E struct {
	// Surface names the component or upstream that produced the error,
	// e.g. "storefront/cart", "editor/details", "reconcile/sync".
	Surface string
	Code    Code
	HTTP    int
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the surface and error code.
func New(surface string, code Code, opts ...Option) *E {
	e := &E{
		Surface: strings.TrimSpace(surface),
		Code:    code,
		HTTP:    0,
		Message: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	surface := strings.TrimSpace(e.Surface)
	if surface == "" {
		surface = "unknown"
	}
	parts = append(parts, "surface="+surface)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the cartsync error code from err, walking the wrap chain.
// Unrecognized errors report CodeUpstream.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) && envelope != nil {
		return envelope.Code
	}
	return CodeUpstream
}

// IsRetryable reports whether the error represents a transient condition
// worth retrying on a later reconciliation pass.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeUnavailable, CodeRateLimited:
		return true
	default:
		return false
	}
}
