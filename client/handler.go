package client

import (
	"context"
	"fmt"
	"github.com/viant/mcpsession"
)

// Handler represents a default handler: it answers ping and rejects every other server request.
type Handler struct{}

func (h *Handler) Serve(ctx context.Context, request *mcpsession.Request, response *mcpsession.Response) *mcpsession.Error {
	response.Id = request.Id
	response.Jsonrpc = mcpsession.Version
	if request.Method == mcpsession.MethodPing {
		response.Result = []byte("{}")
		return nil
	}
	return mcpsession.NewMethodNotFound(fmt.Sprintf("method %v not supported by client", request.Method), nil)
}

func (h *Handler) OnNotification(ctx context.Context, notification *mcpsession.Notification) {
	//ignore
}
