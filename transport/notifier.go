package transport

import (
	"context"
	"github.com/viant/mcpsession"
)

// Notifier sends fire-and-forget notifications
type Notifier interface {
	Notify(ctx context.Context, endpoint string, notification *mcpsession.Notification) error
}
