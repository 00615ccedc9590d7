package transport

import (
	"context"
	"errors"
	"github.com/viant/mcpsession"
)

// ErrDeferred is returned by Send when the server accepted the request without a body;
// the response will arrive on the session event stream.
var ErrDeferred = errors.New("response deferred to the event stream")

// Transport posts JSON-RPC frames to a session endpoint URL.
type Transport interface {
	Notifier
	// Send posts request and returns the correlated response, or ErrDeferred.
	Send(ctx context.Context, endpoint string, request *mcpsession.Request) (*mcpsession.Response, error)
	// Reply posts a response to a server-initiated request.
	Reply(ctx context.Context, endpoint string, response *mcpsession.Response) error
}

// Sequencer allocates request ids that are unique for the lifetime of a session.
type Sequencer interface {
	NextRequestId(method string) mcpsession.RequestId

	// LastRequestId returns the most recently generated request id without
	// mutating the underlying sequence counter.
	LastRequestId() mcpsession.RequestId
}
