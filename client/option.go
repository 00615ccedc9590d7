package client

import (
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/endpoint"
	"github.com/viant/mcpsession/transport"
	"net/http"
	"time"
)

// Option is a function that configures the Client
type Option func(c *Client)

// WithHTTPClient sets the HTTP client shared by the stream and the POST channel
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithHeader adds a header sent with the stream GET and every POST
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithBearerToken sets the Authorization header
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithEndpointPrefix sets the path prefix an endpoint announcement must start with
func WithEndpointPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// WithEndpointEvent sets the event name qualifying announcements when the prefix is empty
func WithEndpointEvent(name string) Option {
	return func(c *Client) {
		c.eventName = name
	}
}

// WithKind selects the conventional stream path tried when no session path is given
func WithKind(kind endpoint.Kind) Option {
	return func(c *Client) {
		c.kind = kind
	}
}

// WithKeepStream decides whether the event stream stays open after endpoint resolution
func WithKeepStream(keep bool) Option {
	return func(c *Client) {
		c.keepStream = keep
	}
}

// WithConnectTimeout bounds establishing the event stream
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.connectTimeout = timeout
		}
	}
}

// WithEndpointTimeout bounds waiting for the endpoint announcement
func WithEndpointTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.endpointTimeout = timeout
		}
	}
}

// WithRequestTimeout bounds every call unless the caller's context expires sooner
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// WithCloseTimeout bounds draining the stream reader on Close
func WithCloseTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.closeTimeout = timeout
		}
	}
}

// WithClientInfo sets the clientInfo sent with initialize
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		if name != "" {
			c.clientInfo.Name = name
		}
		if version != "" {
			c.clientInfo.Version = version
		}
	}
}

// WithProtocolVersion sets the protocol version sent with initialize
func WithProtocolVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.protocolVersion = version
		}
	}
}

// WithInitializedNotification toggles sending notifications/initialized after initialize
func WithInitializedNotification(enabled bool) Option {
	return func(c *Client) {
		c.initializedNotification = enabled
	}
}

// WithIDStrategy selects request ids: "method" (init-1, list-1, ...), "counter" or "uuid"
func WithIDStrategy(strategy string) Option {
	return func(c *Client) {
		c.idStrategy = strategy
	}
}

// WithSequencer sets a factory creating one id sequencer per session
func WithSequencer(factory func() transport.Sequencer) Option {
	return func(c *Client) {
		c.newSequencer = factory
	}
}

// WithMaxInFlight bounds outstanding calls per session; 0 means unbounded
func WithMaxInFlight(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxInFlight = n
		}
	}
}

// WithNotificationBuffer sets the capacity of Session.Notifications
func WithNotificationBuffer(size int) Option {
	return func(c *Client) {
		if size >= 0 {
			c.notificationBuffer = size
		}
	}
}

// WithHandler sets the handler for server-initiated requests and notifications
func WithHandler(handler transport.Handler) Option {
	return func(c *Client) {
		if handler != nil {
			c.handler = handler
		}
	}
}

// WithTransport replaces the HTTP POST transport
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithListener sets a listener that observes every frame
func WithListener(listener mcpsession.Listener) Option {
	return func(c *Client) {
		c.listener = listener
	}
}

// WithLogger sets the logger
func WithLogger(logger mcpsession.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithErrorHandler receives asynchronous protocol violations, such as responses with unknown ids
func WithErrorHandler(handler func(err error)) Option {
	return func(c *Client) {
		c.errorHandler = handler
	}
}
