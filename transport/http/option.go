package http

import (
	"context"
	"github.com/viant/mcpsession"
	"net/http"
)

// Option mutates Transport.
type Option func(t *Transport)

// WithHTTPClient allows custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithHeader adds a header sent with every POST.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.headers.Add(key, value)
	}
}

// WithHeaders adds headers sent with every POST.
func WithHeaders(headers http.Header) Option {
	return func(t *Transport) {
		for key, values := range headers {
			for _, value := range values {
				t.headers.Add(key, value)
			}
		}
	}
}

// WithBearerToken sets the Authorization header.
func WithBearerToken(token string) Option {
	return func(t *Transport) {
		if token != "" {
			t.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithListener sets a listener that observes low-level transport messages.
func WithListener(listener mcpsession.Listener) Option {
	return func(t *Transport) {
		t.listener = listener
	}
}

// WithNotificationHandler receives notifications found in SSE-framed POST responses.
func WithNotificationHandler(handler func(ctx context.Context, notification *mcpsession.Notification)) Option {
	return func(t *Transport) {
		t.onNotification = handler
	}
}

// WithRequestHandler receives server requests found in SSE-framed POST responses.
func WithRequestHandler(handler func(ctx context.Context, request *mcpsession.Request)) Option {
	return func(t *Transport) {
		t.onRequest = handler
	}
}

// WithLogger sets the logger.
func WithLogger(logger mcpsession.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}
