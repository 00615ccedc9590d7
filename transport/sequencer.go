package transport

import (
	"github.com/google/uuid"
	"github.com/viant/mcpsession"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var methodPrefixes = map[string]string{
	mcpsession.MethodInitialize: "init",
	mcpsession.MethodToolsList:  "list",
	mcpsession.MethodToolsCall:  "call",
}

// MethodSequencer issues readable ids such as init-1, list-1, call-2, counting per method prefix.
type MethodSequencer struct {
	mux      sync.Mutex
	counters map[string]int
	last     mcpsession.RequestId
}

// NewMethodSequencer creates a method sequencer
func NewMethodSequencer() *MethodSequencer {
	return &MethodSequencer{counters: map[string]int{}}
}

func (s *MethodSequencer) NextRequestId(method string) mcpsession.RequestId {
	prefix := methodPrefix(method)
	s.mux.Lock()
	defer s.mux.Unlock()
	s.counters[prefix]++
	s.last = mcpsession.StringId(prefix + "-" + strconv.Itoa(s.counters[prefix]))
	return s.last
}

func (s *MethodSequencer) LastRequestId() mcpsession.RequestId {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.last
}

func methodPrefix(method string) string {
	if prefix, ok := methodPrefixes[method]; ok {
		return prefix
	}
	if index := strings.LastIndexByte(method, '/'); index != -1 {
		method = method[index+1:]
	}
	if method == "" {
		return "req"
	}
	return method
}

// CounterSequencer issues monotonically increasing integer ids starting at 1.
type CounterSequencer struct {
	counter int64
}

func (s *CounterSequencer) NextRequestId(string) mcpsession.RequestId {
	return mcpsession.IntId(atomic.AddInt64(&s.counter, 1))
}

func (s *CounterSequencer) LastRequestId() mcpsession.RequestId {
	if last := atomic.LoadInt64(&s.counter); last > 0 {
		return mcpsession.IntId(last)
	}
	return mcpsession.RequestId{}
}

// UUIDSequencer issues random UUID ids.
type UUIDSequencer struct {
	last atomic.Value
}

func (s *UUIDSequencer) NextRequestId(string) mcpsession.RequestId {
	ret := mcpsession.StringId(uuid.NewString())
	s.last.Store(ret)
	return ret
}

func (s *UUIDSequencer) LastRequestId() mcpsession.RequestId {
	if last, ok := s.last.Load().(mcpsession.RequestId); ok {
		return last
	}
	return mcpsession.RequestId{}
}

// NewSequencer returns the sequencer for strategy: "method", "counter" or "uuid".
func NewSequencer(strategy string) (Sequencer, bool) {
	switch strings.ToLower(strategy) {
	case "", "method":
		return NewMethodSequencer(), true
	case "counter":
		return &CounterSequencer{}, true
	case "uuid":
		return &UUIDSequencer{}, true
	}
	return nil, false
}
