package transport

import (
	"context"
	"errors"
	"fmt"
	"github.com/viant/mcpsession"
	"sync"
)

// State is the lifecycle of a single call.
type State int32

const (
	Idle State = iota
	Sent
	Completed
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sent:
		return "sent"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == TimedOut
}

var (
	// ErrUnknownId is returned when a response does not match any in-flight request.
	ErrUnknownId = errors.New("unknown request id")
	// ErrDuplicateId is returned when an id is already in flight.
	ErrDuplicateId = errors.New("duplicate request id")
)

// RoundTrip represents a trip: Idle -> Sent -> {Completed | Failed | TimedOut}.
type RoundTrip struct {
	Request  *mcpsession.Request
	mux      sync.Mutex
	state    State
	response *mcpsession.Response
	err      error
	done     chan struct{}
}

// NewRoundTrip creates a new round trip
func NewRoundTrip(request *mcpsession.Request) *RoundTrip {
	return &RoundTrip{Request: request, done: make(chan struct{})}
}

// State returns the current state
func (t *RoundTrip) State() State {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.state
}

// MarkSent records that the request is leaving the process.
func (t *RoundTrip) MarkSent() error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.state != Idle {
		return fmt.Errorf("request %v: cannot send in state %v", t.Request.Id, t.state)
	}
	t.state = Sent
	return nil
}

// SetResponse completes a sent trip. A response whose id differs fails the trip instead.
// It returns false when the trip was already terminal.
func (t *RoundTrip) SetResponse(response *mcpsession.Response) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.state != Sent {
		return false
	}
	if !response.Id.Equal(t.Request.Id) {
		t.finish(Failed, nil, &mcpsession.ResponseMismatchError{Want: t.Request.Id, Got: response.Id})
		return true
	}
	t.finish(Completed, response, nil)
	return true
}

// SetError fails a trip that has not reached a terminal state.
func (t *RoundTrip) SetError(err error) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.finish(Failed, nil, err)
	return true
}

func (t *RoundTrip) finish(state State, response *mcpsession.Response, err error) {
	t.state = state
	t.response = response
	t.err = err
	close(t.done)
}

// Done is closed once the trip is terminal.
func (t *RoundTrip) Done() <-chan struct{} {
	return t.done
}

// Wait waits for the trip to finish. When ctx ends first the trip moves to TimedOut and
// a *mcpsession.TimeoutError is returned: the server may still have executed the call.
func (t *RoundTrip) Wait(ctx context.Context) (*mcpsession.Response, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		t.mux.Lock()
		if !t.state.Terminal() {
			t.finish(TimedOut, nil, &mcpsession.TimeoutError{Method: t.Request.Method, Id: t.Request.Id, Err: ctx.Err()})
		}
		t.mux.Unlock()
	}
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.response, t.err
}

// RoundTrips represents the collection of in-flight trips keyed by request id
type RoundTrips struct {
	mux      sync.Mutex
	trips    map[string]*RoundTrip
	capacity int
	err      error
}

// NewRoundTrips creates a new round trips; capacity 0 means unbounded
func NewRoundTrips(capacity int) *RoundTrips {
	return &RoundTrips{trips: map[string]*RoundTrip{}, capacity: capacity}
}

// Add registers a trip for request.
func (r *RoundTrips) Add(request *mcpsession.Request) (*RoundTrip, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	key := request.Id.Key()
	if _, ok := r.trips[key]; ok {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateId, request.Id)
	}
	if r.capacity > 0 && len(r.trips) >= r.capacity {
		return nil, fmt.Errorf("failed to add request %v, %d requests in flight", request.Id, len(r.trips))
	}
	ret := NewRoundTrip(request)
	r.trips[key] = ret
	return ret, nil
}

// Match removes and returns the trip for id
func (r *RoundTrips) Match(id mcpsession.RequestId) (*RoundTrip, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	key := id.Key()
	ret, ok := r.trips[key]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownId, id)
	}
	delete(r.trips, key)
	return ret, nil
}

// Remove drops the trip for id, if still registered
func (r *RoundTrips) Remove(id mcpsession.RequestId) bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	key := id.Key()
	_, ok := r.trips[key]
	delete(r.trips, key)
	return ok
}

// Size returns the number of in-flight trips
func (r *RoundTrips) Size() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.trips)
}

// CloseWithError fails every pending trip and rejects further Adds with err.
func (r *RoundTrips) CloseWithError(err error) {
	r.mux.Lock()
	if r.err == nil {
		r.err = err
	}
	pending := r.trips
	r.trips = map[string]*RoundTrip{}
	r.mux.Unlock()
	for _, trip := range pending {
		trip.SetError(err)
	}
}
