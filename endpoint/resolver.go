package endpoint

import (
	"context"
	"errors"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/sse"
	"strings"
	"time"
)

// DefaultTimeout bounds endpoint resolution.
const DefaultTimeout = 10 * time.Second

// DefaultEventName is the event type servers use to announce the endpoint.
const DefaultEventName = "endpoint"

// Source yields server-sent events; *sse.Stream implements it.
type Source interface {
	Next(ctx context.Context) (*sse.Event, error)
	Close() error
}

// Resolver waits for the endpoint announcement on an event source.
type Resolver struct {
	// Prefix an event's data must start with to qualify. When empty, any event named EventName qualifies.
	Prefix string
	// EventName qualifies events when Prefix is empty.
	EventName string
	// Timeout caps the wait; zero means DefaultTimeout.
	Timeout time.Duration
	Logger  mcpsession.Logger
}

// Option configures a Resolver
type Option func(r *Resolver)

// WithPrefix sets the qualifying path prefix
func WithPrefix(prefix string) Option {
	return func(r *Resolver) {
		r.Prefix = prefix
	}
}

// WithEventName sets the announcement event name
func WithEventName(name string) Option {
	return func(r *Resolver) {
		r.EventName = name
	}
}

// WithTimeout sets the resolution timeout
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		r.Timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger mcpsession.Logger) Option {
	return func(r *Resolver) {
		r.Logger = logger
	}
}

// New creates a resolver with the default prefix, event name and timeout.
func New(options ...Option) *Resolver {
	ret := &Resolver{Prefix: DefaultPrefix, EventName: DefaultEventName, Timeout: DefaultTimeout}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Resolve consumes events until one qualifies and returns its validated endpoint.
// On success the source stays open and belongs to the caller; on any failure it is closed.
func (r *Resolver) Resolve(ctx context.Context, source Source) (Endpoint, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := r.Logger
	if logger == nil {
		logger = mcpsession.NopLogger
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = max(remaining, 0)
		}
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		event, err := source.Next(waitCtx)
		if err != nil {
			_ = source.Close()
			if errors.Is(err, context.DeadlineExceeded) {
				return "", &mcpsession.EndpointTimeoutError{Timeout: timeout}
			}
			return "", err
		}
		data := strings.TrimSpace(event.Data)
		if !r.qualifies(event, data) {
			logger.Debugf("skipping %v event while waiting for endpoint: %q", event.Name(), data)
			continue
		}
		ret, err := Parse(r.Prefix, data)
		if err != nil {
			_ = source.Close()
			return "", err
		}
		logger.Debugf("resolved session endpoint %v", ret)
		return ret, nil
	}
}

func (r *Resolver) qualifies(event *sse.Event, data string) bool {
	if r.Prefix != "" {
		return strings.HasPrefix(data, r.Prefix)
	}
	name := r.EventName
	if name == "" {
		name = DefaultEventName
	}
	return event.Event == name && data != ""
}
