package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCode is the closed taxonomy every upstream failure is mapped into
// before it leaves this package. The wire layer sends the code plus a fixed
// human-safe message — never the upstream's own error text, which can leak
// request payloads or credentials.
type ErrorCode string

const (
	CodeAuth       ErrorCode = "AUTH"        // credential/configuration invalid
	CodeRateLimit  ErrorCode = "RATE_LIMIT"  // upstream throttling
	CodeTimeout    ErrorCode = "TIMEOUT"     // no fragment within the bounded wait
	CodeConnection ErrorCode = "CONNECTION"  // transport failure
	CodeBadRequest ErrorCode = "BAD_REQUEST" // upstream rejected the request as malformed
	CodeUnknown    ErrorCode = "UNKNOWN"     // anything else
)

// messages holds the one fixed, presentable message per code. Keyed by code
// rather than derived from the underlying error so nothing upstream-shaped
// ever reaches a client.
var messages = map[ErrorCode]string{
	CodeAuth:       "The provider rejected the configured credentials.",
	CodeRateLimit:  "The provider is rate limiting requests. Try again shortly.",
	CodeTimeout:    "The provider stopped responding.",
	CodeConnection: "Lost the connection to the provider.",
	CodeBadRequest: "The provider rejected the request.",
	CodeUnknown:    "Something went wrong talking to the provider.",
}

// Failure is a classified provider error. It wraps the original cause for
// server-side logs (via Unwrap) while exposing only the code and the fixed
// message to anything that serializes it.
type Failure struct {
	Code  ErrorCode
	cause error
}

// NewFailure builds a Failure with the given code and underlying cause.
// The cause may be nil.
func NewFailure(code ErrorCode, cause error) *Failure {
	return &Failure{Code: code, cause: cause}
}

// Message returns the fixed human-safe message for the failure's code.
func (f *Failure) Message() string {
	if m, ok := messages[f.Code]; ok {
		return m
	}
	return messages[CodeUnknown]
}

// Error includes the cause — this form is for server logs only and must
// never be written to the wire.
func (f *Failure) Error() string {
	if f.cause == nil {
		return string(f.Code)
	}
	return fmt.Sprintf("%s: %v", f.Code, f.cause)
}

// Unwrap exposes the cause to errors.Is/As.
func (f *Failure) Unwrap() error {
	return f.cause
}

// ClassifyStatus maps an upstream HTTP status code to an ErrorCode.
// This is the structured path — we key off the status line, never off
// whatever text the upstream put in the body.
func ClassifyStatus(status int) ErrorCode {
	switch status {
	case 401, 403:
		return CodeAuth
	case 429:
		return CodeRateLimit
	case 400, 404, 422:
		return CodeBadRequest
	case 408, 504:
		return CodeTimeout
	case 502, 503:
		return CodeConnection
	default:
		return CodeUnknown
	}
}

// ClassifyErr maps a transport-level error to an ErrorCode. Classification
// is by error type only: net.Error timeouts and context deadlines become
// TIMEOUT, anything network-shaped becomes CONNECTION, and errors we cannot
// type become UNKNOWN. No string matching — upstream error text is opaque.
func ClassifyErr(err error) ErrorCode {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	case errors.As(err, &netErr):
		return CodeConnection
	case errors.Is(err, context.Canceled):
		return CodeConnection
	default:
		return CodeUnknown
	}
}
