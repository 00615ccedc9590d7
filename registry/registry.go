// Package registry caches initialized sessions by key and re-opens them when they are lost.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/client"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxAttempts = 3
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("session registry closed")

// Target identifies the server a session is negotiated with.
type Target struct {
	BaseURL     string
	SessionPath string
}

// Opener opens and initializes a session for target.
type Opener func(ctx context.Context, target Target) (*client.Session, error)

// NewOpener returns an Opener creating sessions with the given client options.
func NewOpener(options ...client.Option) Opener {
	return func(ctx context.Context, target Target) (*client.Session, error) {
		c, err := client.New(target.BaseURL, options...)
		if err != nil {
			return nil, err
		}
		session, err := c.Open(ctx, target.SessionPath)
		if err != nil {
			return nil, err
		}
		if _, err = session.Initialize(ctx); err != nil {
			_ = session.Close()
			return nil, err
		}
		return session, nil
	}
}

type entry struct {
	session *client.Session
	record  *Record
}

// Registry hands out one live session per key. It is safe for concurrent use.
type Registry struct {
	mux           sync.Mutex
	entries       map[string]*entry
	group         singleflight.Group
	closed        bool
	store         Store
	opener        Opener
	clientOptions []client.Option
	idleTimeout   time.Duration
	maxAttempts   uint
	newBackOff    func() backoff.BackOff
	logger        mcpsession.Logger
}

// New creates a Registry.
func New(options ...Option) *Registry {
	ret := &Registry{
		entries:     map[string]*entry{},
		idleTimeout: DefaultIdleTimeout,
		maxAttempts: DefaultMaxAttempts,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: mcpsession.DefaultLogger,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.store == nil {
		ret.store = NewMemoryStore(0)
	}
	if ret.opener == nil {
		ret.opener = NewOpener(ret.clientOptions...)
	}
	return ret
}

// Store returns the record store.
func (r *Registry) Store() Store {
	return r.store
}

// Get returns the live session for key, opening and initializing one when none is usable.
// Concurrent callers for the same key share a single open.
func (r *Registry) Get(ctx context.Context, key string, target Target) (*client.Session, error) {
	if session, err := r.lookup(ctx, key); session != nil || err != nil {
		return session, err
	}
	value, err, _ := r.group.Do(key, func() (interface{}, error) {
		if session, err := r.lookup(ctx, key); session != nil || err != nil {
			return session, err
		}
		return r.open(ctx, key, target)
	})
	if err != nil {
		return nil, err
	}
	return value.(*client.Session), nil
}

func (r *Registry) lookup(ctx context.Context, key string) (*client.Session, error) {
	r.mux.Lock()
	if r.closed {
		r.mux.Unlock()
		return nil, ErrClosed
	}
	e, ok := r.entries[key]
	var lost error
	if ok {
		if lost = e.session.Err(); lost != nil {
			delete(r.entries, key)
		}
	}
	r.mux.Unlock()
	if !ok {
		return nil, nil
	}
	if lost != nil {
		r.logger.Debugf("replacing session %v: %v", key, lost)
		if err := r.discard(ctx, key, e); err != nil {
			r.logger.Debugf("discarding session %v: %v", key, err)
		}
		return nil, nil
	}
	if err := r.store.Touch(ctx, key, time.Now()); err != nil && !errors.Is(err, ErrNotFound) {
		r.logger.Errorf("failed to touch session record %v: %v", key, err)
	}
	return e.session, nil
}

func (r *Registry) open(ctx context.Context, key string, target Target) (*client.Session, error) {
	attempt := 0
	session, err := backoff.Retry(ctx, func() (*client.Session, error) {
		attempt++
		session, err := r.opener(ctx, target)
		if err == nil {
			return session, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debugf("open %v attempt %d failed, retrying in %s: %v", target.BaseURL, attempt, next, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open session %v after %d attempt(s): %w", key, attempt, err)
	}
	record := newRecord(key, target, session)
	r.mux.Lock()
	if r.closed {
		r.mux.Unlock()
		_ = session.Close()
		return nil, ErrClosed
	}
	r.entries[key] = &entry{session: session, record: record}
	r.mux.Unlock()
	if err := r.store.Put(ctx, record); err != nil {
		r.logger.Errorf("failed to store session record %v: %v", key, err)
	}
	return session, nil
}

// retryable reports whether an open failed before any request reached the server.
func retryable(err error) bool {
	var connErr *mcpsession.ConnectionError
	var timeoutErr *mcpsession.EndpointTimeoutError
	return errors.As(err, &connErr) || errors.As(err, &timeoutErr)
}

func newRecord(key string, target Target, session *client.Session) *Record {
	now := time.Now()
	ret := &Record{
		ID:          uuid.NewString(),
		Key:         key,
		BaseURL:     target.BaseURL,
		SessionPath: target.SessionPath,
		Endpoint:    session.Endpoint().String(),
		State:       session.State().String(),
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if info := session.ServerInfo(); info != nil {
		ret.ProtocolVersion = info.ProtocolVersion
		ret.ServerName = info.ServerInfo.Name
	}
	return ret
}

func (r *Registry) discard(ctx context.Context, key string, e *entry) error {
	var errs *multierror.Error
	if err := e.session.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("closing session %v: %w", key, err))
	}
	if err := r.store.Delete(ctx, key); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("deleting session record %v: %w", key, err))
	}
	return errs.ErrorOrNil()
}

// Remove closes and forgets the session for key.
func (r *Registry) Remove(ctx context.Context, key string) error {
	r.mux.Lock()
	e, ok := r.entries[key]
	delete(r.entries, key)
	r.mux.Unlock()
	if !ok {
		return r.store.Delete(ctx, key)
	}
	return r.discard(ctx, key, e)
}

// Keys returns the keys of cached sessions in sorted order.
func (r *Registry) Keys() []string {
	r.mux.Lock()
	defer r.mux.Unlock()
	ret := make([]string, 0, len(r.entries))
	for key := range r.entries {
		ret = append(ret, key)
	}
	sort.Strings(ret)
	return ret
}

// Sweep closes sessions that failed or stayed unused longer than the idle timeout, and returns their keys.
func (r *Registry) Sweep(ctx context.Context, now time.Time) ([]string, error) {
	r.mux.Lock()
	expired := map[string]*entry{}
	for key, e := range r.entries {
		if e.session.Err() != nil || now.Sub(e.session.LastUsed()) > r.idleTimeout {
			expired[key] = e
			delete(r.entries, key)
		}
	}
	r.mux.Unlock()
	var errs *multierror.Error
	keys := make([]string, 0, len(expired))
	for key, e := range expired {
		keys = append(keys, key)
		if err := r.discard(ctx, key, e); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	sort.Strings(keys)
	return keys, errs.ErrorOrNil()
}

// Close closes every session; further Get calls fail with ErrClosed.
func (r *Registry) Close(ctx context.Context) error {
	r.mux.Lock()
	r.closed = true
	entries := r.entries
	r.entries = map[string]*entry{}
	r.mux.Unlock()
	var errs *multierror.Error
	for key, e := range entries {
		if err := r.discard(ctx, key, e); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
