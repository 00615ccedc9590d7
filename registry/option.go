package registry

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/client"
)

// Option configures a Registry.
type Option func(r *Registry)

// WithStore sets where session records are kept; the default is an in-memory store.
func WithStore(store Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithClientOptions sets the options used for every session the default opener creates.
func WithClientOptions(options ...client.Option) Option {
	return func(r *Registry) {
		r.clientOptions = append(r.clientOptions, options...)
	}
}

// WithOpener replaces how sessions are opened and initialized.
func WithOpener(opener Opener) Option {
	return func(r *Registry) {
		r.opener = opener
	}
}

// WithIdleTimeout sets after how long without calls Sweep closes a session.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		if timeout > 0 {
			r.idleTimeout = timeout
		}
	}
}

// WithMaxAttempts bounds the number of open attempts per Get.
func WithMaxAttempts(attempts uint) Option {
	return func(r *Registry) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// WithBackOff sets the retry policy factory; a fresh policy is used for every open.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(r *Registry) {
		r.newBackOff = factory
	}
}

// WithLogger sets the logger.
func WithLogger(logger mcpsession.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}
