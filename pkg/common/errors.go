package common

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of the transport it came from.
type Kind string

const (
	// KindValidation marks a malformed request rejected before any I/O.
	KindValidation Kind = "validation"
	// KindTransport marks connection failures, non-success HTTP statuses and
	// abnormal websocket closures.
	KindTransport Kind = "transport"
	// KindProtocol marks malformed server messages: bad JSON, missing
	// required fields, invalid base64.
	KindProtocol Kind = "protocol"
	// KindState marks caller misuse such as synthesizing before connecting.
	KindState Kind = "state"
)

// Error is the uniform failure shape delivered by all three transports.
// StatusCode is the HTTP status when one applies, -1 otherwise.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error [%d]: %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a request rejected before any network call.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, StatusCode: -1, Message: fmt.Sprintf(format, args...)}
}

// NewTransportError reports a connection or HTTP-status failure. statusCode
// should be -1 when the failure is not an HTTP response.
func NewTransportError(statusCode int, message string, cause error) *Error {
	return &Error{Kind: KindTransport, StatusCode: statusCode, Message: message, Err: cause}
}

// NewProtocolError reports a malformed server message.
func NewProtocolError(message string, cause error) *Error {
	return &Error{Kind: KindProtocol, StatusCode: -1, Message: message, Err: cause}
}

// NewStateError reports caller misuse of a client's lifecycle.
func NewStateError(message string) *Error {
	return &Error{Kind: KindState, StatusCode: -1, Message: message}
}

// AsError extracts the structured form from err, wrapping unknown errors as
// transport failures so callers always observe one shape.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return NewTransportError(-1, err.Error(), err)
}
