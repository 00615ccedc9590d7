package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/endpoint"
	"github.com/viant/mcpsession/sse"
	"github.com/viant/mcpsession/transport"
	"golang.org/x/sync/semaphore"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle of a session.
type State int32

const (
	// StateOpen means the endpoint is resolved and initialize has not completed.
	StateOpen State = iota
	StateInitializing
	StateReady
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Session is one resolved endpoint plus its in-flight calls. It is safe for concurrent use.
type Session struct {
	client        *Client
	endpoint      endpoint.Endpoint
	endpointURL   string
	stream        *sse.Stream
	transport     transport.Transport
	trips         *transport.RoundTrips
	sequencer     transport.Sequencer
	inFlight      *semaphore.Weighted
	notifications chan *mcpsession.Notification
	cancel        context.CancelFunc
	readerDone    chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
	lastUsed      atomic.Int64
	notifyMux     sync.RWMutex
	notifyClosed  bool

	mux        sync.Mutex
	state      State
	err        error
	serverInfo *InitializeResult
}

func newSession(c *Client, resolved endpoint.Endpoint, stream *sse.Stream) *Session {
	base := c.baseURL
	if stream != nil {
		base = stream.URL()
	}
	ret := &Session{
		client:        c,
		endpoint:      resolved,
		endpointURL:   resolved.URL(base),
		stream:        stream,
		trips:         transport.NewRoundTrips(0),
		sequencer:     c.newSequencer(),
		notifications: make(chan *mcpsession.Notification, c.notificationBuffer),
		readerDone:    make(chan struct{}),
		done:          make(chan struct{}),
	}
	ret.transport = c.newTransport(ret)
	if c.maxInFlight > 0 {
		ret.inFlight = semaphore.NewWeighted(int64(c.maxInFlight))
	}
	ret.touch()
	ctx, cancel := context.WithCancel(context.Background())
	ret.cancel = cancel
	if stream != nil {
		go ret.read(ctx)
	} else {
		close(ret.readerDone)
	}
	return ret
}

// Endpoint returns the resolved session endpoint.
func (s *Session) Endpoint() endpoint.Endpoint {
	return s.endpoint
}

// EndpointURL returns the absolute URL calls are posted to.
func (s *Session) EndpointURL() string {
	return s.endpointURL
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.state
}

// ServerInfo returns the initialize result, nil before a successful initialize.
func (s *Session) ServerInfo() *InitializeResult {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.serverInfo
}

// Done is closed when the session is closed or its stream is lost.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns nil while the session is usable, the failure cause after stream loss,
// or ErrSessionClosed after Close.
func (s *Session) Err() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.err
}

// Notifications delivers server notifications. Notifications are dropped when the buffer is full.
// The channel is closed by Close.
func (s *Session) Notifications() <-chan *mcpsession.Notification {
	return s.notifications
}

// LastUsed returns when the session last issued a call.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// InFlight returns the number of calls awaiting a response.
func (s *Session) InFlight() int {
	return s.trips.Size()
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Call invokes method and returns its result. Server errors are returned as *mcpsession.Error.
func (s *Session) Call(ctx context.Context, method string, params mcpsession.Value) (mcpsession.Value, error) {
	response, err := s.call(ctx, method, params)
	if err != nil {
		return mcpsession.Value{}, err
	}
	result, err := mcpsession.ParseValue(response.Result)
	if err != nil {
		return mcpsession.Value{}, &mcpsession.MalformedResponseError{ContentType: mcpsession.ContentTypeJSON, Body: response.Result, Err: err}
	}
	return result, nil
}

// CallInto invokes method with any JSON-marshalable params and decodes the result into result.
func (s *Session) CallInto(ctx context.Context, method string, params interface{}, result interface{}) error {
	value, err := mcpsession.ValueOf(params)
	if err != nil {
		return err
	}
	response, err := s.call(ctx, method, value)
	if err != nil {
		return err
	}
	if result == nil || len(response.Result) == 0 {
		return nil
	}
	if err = json.Unmarshal(response.Result, result); err != nil {
		return &mcpsession.MalformedResponseError{ContentType: mcpsession.ContentTypeJSON, Body: response.Result, Err: err}
	}
	return nil
}

// Notify sends a notification; it is only allowed after initialize.
func (s *Session) Notify(ctx context.Context, method string, params mcpsession.Value) error {
	if err := s.usable(); err != nil {
		return err
	}
	if state := s.State(); state != StateReady {
		return &mcpsession.ProtocolOrderError{Method: method, Reason: "initialize must complete before notifications"}
	}
	notification, err := mcpsession.NewNotification(method, params)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.client.requestTimeout)
	defer cancel()
	s.touch()
	return s.transport.Notify(ctx, s.endpointURL, notification)
}

func (s *Session) call(ctx context.Context, method string, params mcpsession.Value) (*mcpsession.Response, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if err := s.admit(method); err != nil {
		return nil, err
	}
	response, err := s.roundTrip(ctx, method, params)
	if method == mcpsession.MethodInitialize {
		s.completeInitialize(ctx, response, err)
	}
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%v: %w", method, response.Error)
	}
	return response, nil
}

func (s *Session) usable() error {
	select {
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return mcpsession.ErrSessionClosed
	default:
		return nil
	}
}

// admit enforces that initialize comes first and only once.
func (s *Session) admit(method string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	switch {
	case method == mcpsession.MethodInitialize && s.state == StateInitializing:
		return &mcpsession.ProtocolOrderError{Method: method, Reason: "initialize already in progress"}
	case method == mcpsession.MethodInitialize && s.state == StateReady:
		return &mcpsession.ProtocolOrderError{Method: method, Reason: "session already initialized"}
	case method == mcpsession.MethodInitialize:
		s.state = StateInitializing
	case s.state != StateReady:
		return &mcpsession.ProtocolOrderError{Method: method, Reason: "initialize must be the first call on a session"}
	}
	return nil
}

func (s *Session) completeInitialize(ctx context.Context, response *mcpsession.Response, err error) {
	s.mux.Lock()
	if s.state != StateInitializing {
		s.mux.Unlock()
		return
	}
	if err != nil || response.Error != nil {
		s.state = StateOpen
		s.mux.Unlock()
		return
	}
	s.state = StateReady
	info := &InitializeResult{}
	if len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, info); err != nil {
			s.client.logger.Debugf("unexpected initialize result %s: %v", response.Result, err)
		}
	}
	s.serverInfo = info
	s.mux.Unlock()
	if !s.client.initializedNotification {
		return
	}
	if err := s.Notify(ctx, mcpsession.MethodInitialized, mcpsession.Null()); err != nil {
		s.client.logger.Errorf("failed to send %v: %v", mcpsession.MethodInitialized, err)
	}
}

// roundTrip performs one request/response exchange; it never retries.
func (s *Session) roundTrip(ctx context.Context, method string, params mcpsession.Value) (*mcpsession.Response, error) {
	if s.inFlight != nil {
		if err := s.inFlight.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for an in-flight slot: %w", err)
		}
		defer s.inFlight.Release(1)
	}
	ctx, cancel := context.WithTimeout(ctx, s.client.requestTimeout)
	defer cancel()
	request, err := mcpsession.NewRequest(s.sequencer.NextRequestId(method), method, params)
	if err != nil {
		return nil, err
	}
	trip, err := s.trips.Add(request)
	if err != nil {
		return nil, err
	}
	defer s.trips.Remove(request.Id)
	if err = trip.MarkSent(); err != nil {
		return nil, err
	}
	s.touch()
	response, err := s.transport.Send(ctx, s.endpointURL, request)
	switch {
	case err == nil:
		trip.SetResponse(response)
	case errors.Is(err, transport.ErrDeferred):
		if s.stream == nil {
			trip.SetError(fmt.Errorf("%w: %v response deferred but the event stream was not kept", mcpsession.ErrStreamClosed, method))
		}
	case ctx.Err() != nil:
		// Wait reports the deadline as an outcome-unknown timeout.
	default:
		trip.SetError(err)
	}
	return trip.Wait(ctx)
}

func (s *Session) read(ctx context.Context) {
	defer close(s.readerDone)
	for {
		event, err := s.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			s.fail(err)
			return
		}
		data := strings.TrimSpace(event.Data)
		if data == "" || event.Event == s.client.eventName {
			continue
		}
		s.handleFrame(ctx, []byte(data))
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	message, err := mcpsession.DecodeMessage(data)
	if err != nil {
		s.reportError(fmt.Errorf("invalid frame on event stream: %w: %s", err, data))
		return
	}
	if s.client.listener != nil {
		s.client.listener(message)
	}
	switch message.Type {
	case mcpsession.MessageTypeResponse:
		response := message.JsonRpcResponse
		trip, err := s.trips.Match(response.Id)
		if err != nil {
			s.reportError(fmt.Errorf("protocol violation: response %v: %w", response.Id, err))
			return
		}
		trip.SetResponse(response)
	case mcpsession.MessageTypeNotification:
		s.onNotification(ctx, message.JsonRpcNotification)
	case mcpsession.MessageTypeRequest:
		s.onRequest(ctx, message.JsonRpcRequest)
	}
}

func (s *Session) onNotification(ctx context.Context, notification *mcpsession.Notification) {
	s.client.handler.OnNotification(ctx, notification)
	s.notifyMux.RLock()
	defer s.notifyMux.RUnlock()
	if s.notifyClosed {
		return
	}
	select {
	case s.notifications <- notification:
	default:
		s.client.logger.Errorf("dropping notification %v: buffer full", notification.Method)
	}
}

func (s *Session) onRequest(ctx context.Context, request *mcpsession.Request) {
	go func() {
		response := &mcpsession.Response{Id: request.Id, Jsonrpc: mcpsession.Version}
		if rpcErr := s.client.handler.Serve(ctx, request, response); rpcErr != nil {
			response.Result = nil
			response.Error = rpcErr
		}
		replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.client.requestTimeout)
		defer cancel()
		if err := s.transport.Reply(replyCtx, s.endpointURL, response); err != nil {
			s.reportError(fmt.Errorf("failed to reply to %v (%v): %w", request.Method, request.Id, err))
		}
	}()
}

func (s *Session) reportError(err error) {
	s.client.logger.Errorf("%v", err)
	if s.client.errorHandler != nil {
		s.client.errorHandler(err)
	}
}

func (s *Session) terminate(state State, cause error) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.state == StateClosed || s.state == StateFailed {
		return false
	}
	s.state = state
	s.err = cause
	close(s.done)
	return true
}

// fail ends the session after stream loss; pending calls fail with cause.
func (s *Session) fail(cause error) {
	if !s.terminate(StateFailed, cause) {
		return
	}
	s.client.logger.Errorf("session %v lost its event stream: %v", s.endpoint, cause)
	s.trips.CloseWithError(cause)
}

// Close ends the session and releases the stream. It is safe to call more than once.
func (s *Session) Close() error {
	var errs *multierror.Error
	s.closeOnce.Do(func() {
		s.terminate(StateClosed, mcpsession.ErrSessionClosed)
		s.cancel()
		if s.stream != nil {
			if err := s.stream.Close(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("closing event stream: %w", err))
			}
		}
		timer := time.NewTimer(s.client.closeTimeout)
		defer timer.Stop()
		select {
		case <-s.readerDone:
		case <-timer.C:
			errs = multierror.Append(errs, fmt.Errorf("stream reader did not stop within %s", s.client.closeTimeout))
		}
		s.trips.CloseWithError(mcpsession.ErrSessionClosed)
		s.notifyMux.Lock()
		s.notifyClosed = true
		close(s.notifications)
		s.notifyMux.Unlock()
	})
	return errs.ErrorOrNil()
}
