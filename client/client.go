package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/endpoint"
	"github.com/viant/mcpsession/sse"
	"github.com/viant/mcpsession/transport"
	httptransport "github.com/viant/mcpsession/transport/http"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
)

const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultEndpointTimeout = 10 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultCloseTimeout    = 5 * time.Second
	DefaultClientName      = "mcpsession"
	DefaultClientVersion   = "0.1.0"
)

// Client opens sessions against one server. It holds configuration only; all I/O happens in Open.
type Client struct {
	baseURL                 string
	kind                    endpoint.Kind
	httpClient              *http.Client
	headers                 http.Header
	prefix                  string
	eventName               string
	keepStream              bool
	connectTimeout          time.Duration
	endpointTimeout         time.Duration
	requestTimeout          time.Duration
	closeTimeout            time.Duration
	clientInfo              ClientInfo
	protocolVersion         string
	initializedNotification bool
	idStrategy              string
	newSequencer            func() transport.Sequencer
	maxInFlight             int
	notificationBuffer      int
	handler                 transport.Handler
	transport               transport.Transport
	listener                mcpsession.Listener
	logger                  mcpsession.Logger
	errorHandler            func(err error)
}

// New creates a client for the server at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	parsed, err := neturl.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: expected http(s)://host", baseURL)
	}
	ret := &Client{
		baseURL:                 strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		kind:                    endpoint.KindSSE,
		headers:                 http.Header{},
		prefix:                  endpoint.DefaultPrefix,
		eventName:               endpoint.DefaultEventName,
		keepStream:              true,
		connectTimeout:          DefaultConnectTimeout,
		endpointTimeout:         DefaultEndpointTimeout,
		requestTimeout:          DefaultRequestTimeout,
		closeTimeout:            DefaultCloseTimeout,
		clientInfo:              ClientInfo{Name: DefaultClientName, Version: DefaultClientVersion},
		protocolVersion:         mcpsession.DefaultProtocolVersion,
		initializedNotification: true,
		notificationBuffer:      64,
		handler:                 &Handler{},
		logger:                  mcpsession.NopLogger,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.httpClient == nil {
		ret.httpClient = httptransport.NewHTTPClient()
	}
	if ret.newSequencer == nil {
		if _, ok := transport.NewSequencer(ret.idStrategy); !ok {
			return nil, fmt.Errorf("unsupported id strategy: %v", ret.idStrategy)
		}
		strategy := ret.idStrategy
		ret.newSequencer = func() transport.Sequencer {
			sequencer, _ := transport.NewSequencer(strategy)
			return sequencer
		}
	}
	return ret, nil
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Open connects the event stream, waits for the endpoint announcement and returns a session.
// An empty sessionPath tries the conventional stream paths of the server root in order.
func Open(ctx context.Context, baseURL, sessionPath string, options ...Option) (*Session, error) {
	client, err := New(baseURL, options...)
	if err != nil {
		return nil, err
	}
	return client.Open(ctx, sessionPath)
}

// Open connects the event stream, waits for the endpoint announcement and returns a session.
func (c *Client) Open(ctx context.Context, sessionPath string) (*Session, error) {
	stream, err := c.connect(ctx, sessionPath)
	if err != nil {
		return nil, err
	}
	resolver := endpoint.New(
		endpoint.WithPrefix(c.prefix),
		endpoint.WithEventName(c.eventName),
		endpoint.WithTimeout(c.endpointTimeout),
		endpoint.WithLogger(c.logger),
	)
	resolved, err := resolver.Resolve(ctx, stream)
	if err != nil {
		return nil, err
	}
	c.logger.Debugf("session endpoint %v announced on %v", resolved, stream.URL())
	if !c.keepStream {
		if err := stream.Close(); err != nil {
			c.logger.Debugf("closing stream %v: %v", stream.URL(), err)
		}
		stream = nil
	}
	return newSession(c, resolved, stream), nil
}

func (c *Client) connect(ctx context.Context, sessionPath string) (*sse.Stream, error) {
	options := []sse.Option{
		sse.WithHTTPClient(c.httpClient),
		sse.WithHeaders(c.headers),
		sse.WithConnectTimeout(c.connectTimeout),
		sse.WithLogger(c.logger),
	}
	if sessionPath != "" {
		return sse.Open(ctx, c.streamURL(sessionPath), options...)
	}
	candidates, err := endpoint.Candidates(c.baseURL, c.kind)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, candidate := range candidates {
		stream, err := sse.Open(ctx, candidate.URL, options...)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		var connErr *mcpsession.ConnectionError
		if !errors.As(err, &connErr) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Debugf("stream candidate %v failed: %v", candidate.URL, err)
	}
	return nil, lastErr
}

func (c *Client) streamURL(sessionPath string) string {
	if !strings.HasPrefix(sessionPath, "/") {
		sessionPath = "/" + sessionPath
	}
	return c.baseURL + sessionPath
}

func (c *Client) newTransport(s *Session) transport.Transport {
	if c.transport != nil {
		return c.transport
	}
	return httptransport.New(
		httptransport.WithHTTPClient(c.httpClient),
		httptransport.WithHeaders(c.headers),
		httptransport.WithListener(c.listener),
		httptransport.WithLogger(c.logger),
		httptransport.WithNotificationHandler(s.onNotification),
		httptransport.WithRequestHandler(s.onRequest),
	)
}
