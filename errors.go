package mcpsession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrStreamClosed indicates the event stream ended before the consumer closed it.
	ErrStreamClosed = errors.New("event stream closed")

	// ErrSessionClosed indicates the session was closed by the caller or lost its stream.
	ErrSessionClosed = errors.New("session closed")
)

// ConnectionError is returned when the server cannot be reached or refuses the stream.
type ConnectionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to connect to %v: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to connect to %v: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// EndpointTimeoutError is returned when no endpoint announcement arrived in time.
type EndpointTimeoutError struct {
	Timeout time.Duration
}

func (e *EndpointTimeoutError) Error() string {
	return fmt.Sprintf("no endpoint event received within %s", e.Timeout)
}

// Is lets errors.Is(err, context.DeadlineExceeded) hold.
func (e *EndpointTimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// MalformedEndpointError is returned when an endpoint announcement is not a usable path.
type MalformedEndpointError struct {
	Data   string
	Reason string
}

func (e *MalformedEndpointError) Error() string {
	return fmt.Sprintf("malformed endpoint %q: %s", e.Data, e.Reason)
}

// TransportError represents a non-2xx HTTP status returned for a JSON-RPC post.
type TransportError struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Body contains the raw response body, if available.
	Body []byte
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("invalid status code: %d: %s", e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("invalid status code: %d", e.StatusCode)
}

// NewTransportError constructs a new TransportError.
func NewTransportError(statusCode int, body []byte) *TransportError {
	return &TransportError{StatusCode: statusCode, Body: body}
}

// IsUnauthorized returns true if err is or wraps a 401 TransportError.
func IsUnauthorized(err error) bool {
	var target *TransportError
	return errors.As(err, &target) && target.StatusCode == http.StatusUnauthorized
}

// ResponseMismatchError is returned when a response id does not echo the request id.
type ResponseMismatchError struct {
	Want RequestId
	Got  RequestId
}

func (e *ResponseMismatchError) Error() string {
	return fmt.Sprintf("response id mismatch: want %v, got %v", e.Want, e.Got)
}

// MalformedResponseError is returned when a response body is neither JSON-RPC nor SSE framed JSON-RPC.
type MalformedResponseError struct {
	ContentType string
	Body        []byte
	Err         error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response (content-type: %q): %v", e.ContentType, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ProtocolOrderError is returned when a call violates the session handshake order.
type ProtocolOrderError struct {
	Method string
	Reason string
}

func (e *ProtocolOrderError) Error() string {
	return fmt.Sprintf("protocol order violation: %v: %v", e.Method, e.Reason)
}

// TimeoutError is returned when no response arrived within the call deadline.
// The outcome of the call is unknown: the server may have executed it.
type TimeoutError struct {
	Method string
	Id     RequestId
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %v (%v) timed out, outcome unknown: %v", e.Id, e.Method, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout returns true if err is or wraps a TimeoutError or an EndpointTimeoutError.
func IsTimeout(err error) bool {
	var callTimeout *TimeoutError
	var endpointTimeout *EndpointTimeoutError
	return errors.As(err, &callTimeout) || errors.As(err, &endpointTimeout)
}

// AsRPCError returns the server-reported JSON-RPC error carried by err, if any.
func AsRPCError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
