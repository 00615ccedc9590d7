package transport

import (
	"context"
	"github.com/viant/mcpsession"
)

// Handler serves requests and notifications the server pushes to the client.
type Handler interface {
	// Serve fills response.Result or returns an error to send back.
	Serve(ctx context.Context, request *mcpsession.Request, response *mcpsession.Response) *mcpsession.Error
	OnNotification(ctx context.Context, notification *mcpsession.Notification)
}
