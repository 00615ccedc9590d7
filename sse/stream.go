package sse

import (
	"context"
	"errors"
	"fmt"
	"github.com/viant/mcpsession"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrConcurrentRead is returned when Next is called while another Next is in progress.
var ErrConcurrentRead = errors.New("sse: concurrent read on a single-consumer stream")

// Stream is a long-lived server-sent events connection.
// It has a single consumer; the HTTP body is owned by a background pump.
type Stream struct {
	url            string
	client         *http.Client
	header         http.Header
	connectTimeout time.Duration
	buffer         int
	logger         mcpsession.Logger

	body        io.ReadCloser
	cancel      context.CancelFunc
	events      chan *Event
	closed      chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	reading     int32
	lastEventID atomic.Value
	err         error
}

// Open issues a GET with the event-stream accept header and starts decoding.
// ctx bounds connection establishment only; the stream lives until Close or server EOF.
func Open(ctx context.Context, streamURL string, options ...Option) (*Stream, error) {
	ret := &Stream{
		url:            streamURL,
		client:         http.DefaultClient,
		header:         http.Header{},
		connectTimeout: 10 * time.Second,
		buffer:         16,
		logger:         mcpsession.NopLogger,
		closed:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.lastEventID.Store("")
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return nil, &mcpsession.ConnectionError{URL: streamURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for key, values := range ret.header {
		req.Header[key] = values
	}
	req.Header.Set("Accept", mcpsession.ContentTypeEventStream)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	connected := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		var timeout <-chan time.Time
		if ret.connectTimeout > 0 {
			timer := time.NewTimer(ret.connectTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			cancel()
		case <-timeout:
			cancel()
		case <-connected:
		}
	}()
	resp, err := ret.client.Do(req)
	close(connected)
	<-watched
	if err == nil && streamCtx.Err() != nil {
		_ = resp.Body.Close()
		err = streamCtx.Err()
	}
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &mcpsession.ConnectionError{URL: streamURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, &mcpsession.ConnectionError{URL: streamURL, StatusCode: resp.StatusCode}
	}
	ret.body = resp.Body
	ret.cancel = cancel
	ret.events = make(chan *Event, ret.buffer)
	go ret.pump(NewDecoder(resp.Body))
	return ret, nil
}

func (s *Stream) pump(decoder *Decoder) {
	defer close(s.done)
	defer close(s.events)
	for {
		event, err := decoder.Next()
		if err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("%w: server ended the stream", mcpsession.ErrStreamClosed)
			} else {
				s.err = fmt.Errorf("%w: %w", mcpsession.ErrStreamClosed, err)
			}
			s.logger.Debugf("sse stream %v terminated: %v", s.url, err)
			return
		}
		if event.ID != "" {
			s.lastEventID.Store(event.ID)
		}
		select {
		case s.events <- event:
		case <-s.closed:
			return
		}
	}
}

// Next returns the next event. It honours ctx without disturbing the stream:
// a cancelled Next leaves undelivered events queued for the following call.
func (s *Stream) Next(ctx context.Context) (*Event, error) {
	if !atomic.CompareAndSwapInt32(&s.reading, 0, 1) {
		return nil, ErrConcurrentRead
	}
	defer atomic.StoreInt32(&s.reading, 0)
	if s.isClosed() {
		return nil, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	case event, ok := <-s.events:
		if !ok {
			if s.isClosed() {
				return nil, io.EOF
			}
			return nil, s.err
		}
		return event, nil
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		err = s.body.Close()
	})
	return err
}

// Done is closed once the pump has stopped reading.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the stream terminated, nil while open or after Close.
func (s *Stream) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	if s.isClosed() {
		return nil
	}
	return s.err
}

// URL returns the stream URL.
func (s *Stream) URL() string {
	return s.url
}

// LastEventID returns the most recent id field seen.
func (s *Stream) LastEventID() string {
	return s.lastEventID.Load().(string)
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
