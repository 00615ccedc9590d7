// Package mcptest provides an in-process MCP server speaking the SSE bootstrap protocol, for tests.
package mcptest

import (
	"fmt"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/viant/mcpsession"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Mode selects how responses to POSTed requests are delivered.
type Mode int

const (
	// ModeJSON answers inline with an application/json body.
	ModeJSON Mode = iota
	// ModeSSE answers inline with a text/event-stream body.
	ModeSSE
	// ModeDeferred acknowledges with 202 and pushes the response on the session stream.
	ModeDeferred
)

// Tool is advertised by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Failure forces an HTTP status for a method; Times 0 means every call.
type Failure struct {
	Status int
	Times  int
}

// Config controls the fake server's behavior.
type Config struct {
	StreamPath string
	Prefix     string
	Mode       Mode
	Tools      []Tool
	// Errors forces JSON-RPC error responses per method.
	Errors map[string]*mcpsession.Error
	// Failures forces non-2xx HTTP statuses per method.
	Failures map[string]Failure
	// Results overrides the result per method.
	Results map[string]json.RawMessage
	// ResponseIDs overrides the id echoed per method.
	ResponseIDs map[string]string
	Delays      map[string]time.Duration
	// StreamStatus answers the stream GET with this status when set.
	StreamStatus int
	// Announcement replaces the endpoint event data; NoAnnouncement suppresses it.
	Announcement   string
	NoAnnouncement bool
	AnnounceDelay  time.Duration
	// CloseStreamAfterAnnouncement ends the stream right after the endpoint event.
	CloseStreamAfterAnnouncement bool
	// NotifyBeforeResponse sends a notifications/message frame ahead of every response.
	NotifyBeforeResponse bool
}

// Recorded is a frame the server received.
type Recorded struct {
	Path    string
	Header  http.Header
	Message *mcpsession.Message
}

type streamSession struct {
	id     string
	frames chan string
	closed chan struct{}
	once   sync.Once
}

func (s *streamSession) close() {
	s.once.Do(func() { close(s.closed) })
}

// Server is an httptest server hosting the stream and message endpoints.
type Server struct {
	*httptest.Server
	config   Config
	mux      sync.Mutex
	sessions map[string]*streamSession
	received []*Recorded
	failures map[string]int
	streams  int
}

// Start starts a server and registers its shutdown with t.Cleanup.
func Start(t testing.TB, config Config) *Server {
	t.Helper()
	ret := New(config)
	t.Cleanup(ret.Close)
	return ret
}

// New starts a server; the caller must Close it.
func New(config Config) *Server {
	if config.StreamPath == "" {
		config.StreamPath = "/sse"
	}
	if config.Prefix == "" {
		config.Prefix = "/mcp"
	}
	ret := &Server{config: config, sessions: map[string]*streamSession{}, failures: map[string]int{}}
	ret.Server = httptest.NewServer(ret)
	return ret
}

// Close ends every stream and shuts the server down.
func (s *Server) Close() {
	s.CloseStreams()
	s.Server.Close()
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == s.config.StreamPath:
		s.handleStream(w, r)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, s.config.Prefix):
		s.handleMessage(w, r)
	case r.Method == http.MethodGet || r.Method == http.MethodPost:
		http.NotFound(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.config.StreamStatus != 0 {
		w.WriteHeader(s.config.StreamStatus)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	session := &streamSession{id: s.sessionID(), frames: make(chan string, 64), closed: make(chan struct{})}
	s.mux.Lock()
	s.sessions[session.id] = session
	s.streams++
	s.mux.Unlock()
	// the session stays addressable after its stream ends; frames pushed to it are dropped
	defer session.close()

	w.Header().Set("Content-Type", mcpsession.ContentTypeEventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()
	if s.config.AnnounceDelay > 0 {
		select {
		case <-time.After(s.config.AnnounceDelay):
		case <-r.Context().Done():
			return
		}
	}
	if !s.config.NoAnnouncement {
		data := s.config.Announcement
		if data == "" {
			data = s.config.Prefix + "/" + session.id
		}
		_, _ = fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", data)
		flusher.Flush()
	}
	if s.config.CloseStreamAfterAnnouncement {
		return
	}
	for {
		select {
		case frame := <-session.frames:
			_, _ = io.WriteString(w, frame)
			flusher.Flush()
		case <-session.closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookup(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	message, err := mcpsession.DecodeMessage(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mux.Lock()
	s.received = append(s.received, &Recorded{Path: r.URL.RequestURI(), Header: r.Header.Clone(), Message: message})
	s.mux.Unlock()
	if message.Type != mcpsession.MessageTypeRequest {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	request := message.JsonRpcRequest
	if status := s.failure(request.Method); status != 0 {
		http.Error(w, fmt.Sprintf("forced failure for %v", request.Method), status)
		return
	}
	if delay := s.config.Delays[request.Method]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	frames := s.frames(request)
	switch s.config.Mode {
	case ModeSSE:
		w.Header().Set("Content-Type", mcpsession.ContentTypeEventStream)
		w.WriteHeader(http.StatusOK)
		for _, frame := range frames {
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
		}
	case ModeDeferred:
		w.WriteHeader(http.StatusAccepted)
		for _, frame := range frames {
			s.push(session, fmt.Sprintf("event: message\ndata: %s\n\n", frame))
		}
	default:
		w.Header().Set("Content-Type", mcpsession.ContentTypeJSON)
		w.WriteHeader(http.StatusOK)
		if len(frames) > 1 {
			s.push(session, fmt.Sprintf("event: message\ndata: %s\n\n", frames[0]))
		}
		_, _ = w.Write(frames[len(frames)-1])
	}
}

// sessionID derives the id from a configured announcement so that posts to it can be routed.
func (s *Server) sessionID() string {
	announcement := s.config.Announcement
	if announcement == "" {
		return uuid.NewString()
	}
	if index := strings.Index(announcement, "sessionId="); index != -1 {
		return announcement[index+len("sessionId="):]
	}
	return lastSegment(announcement)
}

func (s *Server) lookup(r *http.Request) (*streamSession, bool) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		id = lastSegment(r.URL.Path)
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	return path[strings.LastIndexByte(path, '/')+1:]
}

func (s *Server) failure(method string) int {
	failure, ok := s.config.Failures[method]
	if !ok {
		return 0
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if failure.Times > 0 && s.failures[method] >= failure.Times {
		return 0
	}
	s.failures[method]++
	return failure.Status
}

func (s *Server) push(session *streamSession, frame string) {
	select {
	case session.frames <- frame:
	case <-session.closed:
	}
}

// frames returns the frames answering request; the response is last.
func (s *Server) frames(request *mcpsession.Request) [][]byte {
	var ret [][]byte
	if s.config.NotifyBeforeResponse {
		notification, _ := mcpsession.NewNotification("notifications/message", map[string]string{"level": "info", "data": request.Method})
		data, _ := json.Marshal(notification)
		ret = append(ret, data)
	}
	id := request.Id
	if override, ok := s.config.ResponseIDs[request.Method]; ok {
		id = mcpsession.StringId(override)
	}
	var response *mcpsession.Response
	if rpcErr, ok := s.config.Errors[request.Method]; ok {
		response = mcpsession.NewErrorResponse(id, rpcErr)
	} else {
		result, rpcErr := s.result(request)
		if rpcErr != nil {
			response = mcpsession.NewErrorResponse(id, rpcErr)
		} else {
			response = mcpsession.NewResponse(id, result)
		}
	}
	data, _ := json.Marshal(response)
	return append(ret, data)
}

func (s *Server) result(request *mcpsession.Request) ([]byte, *mcpsession.Error) {
	if result, ok := s.config.Results[request.Method]; ok {
		return result, nil
	}
	switch request.Method {
	case mcpsession.MethodInitialize:
		return []byte(`{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"mcptest","version":"1.0.0"}}`), nil
	case mcpsession.MethodPing:
		return []byte(`{}`), nil
	case mcpsession.MethodToolsList:
		tools := s.config.Tools
		if tools == nil {
			tools = []Tool{}
		}
		data, _ := json.Marshal(map[string]interface{}{"tools": tools})
		return data, nil
	case mcpsession.MethodToolsCall:
		params := struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}{}
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return nil, mcpsession.NewInvalidParamsError(err.Error(), nil)
		}
		if !s.hasTool(params.Name) {
			return nil, mcpsession.NewMethodNotFound("Unknown tool", nil)
		}
		arguments := string(params.Arguments)
		if arguments == "" {
			arguments = "{}"
		}
		data, _ := json.Marshal(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": params.Name + " " + arguments}},
		})
		return data, nil
	}
	return nil, mcpsession.NewMethodNotFound(fmt.Sprintf("method %v not found", request.Method), nil)
}

func (s *Server) hasTool(name string) bool {
	for _, tool := range s.config.Tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// Push sends a raw frame on every open session stream.
func (s *Server) Push(data string) {
	for _, session := range s.openSessions() {
		s.push(session, fmt.Sprintf("event: message\ndata: %s\n\n", data))
	}
}

// CloseStreams ends every session stream from the server side.
func (s *Server) CloseStreams() {
	for _, session := range s.openSessions() {
		session.close()
	}
}

func (s *Server) openSessions() []*streamSession {
	s.mux.Lock()
	defer s.mux.Unlock()
	ret := make([]*streamSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		select {
		case <-session.closed:
		default:
			ret = append(ret, session)
		}
	}
	return ret
}

// Received returns every frame posted so far.
func (s *Server) Received() []*Recorded {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]*Recorded{}, s.received...)
}

// Methods returns the methods of every posted request and notification, in order.
func (s *Server) Methods() []string {
	var ret []string
	for _, recorded := range s.Received() {
		if method := recorded.Message.Method(); method != "" {
			ret = append(ret, method)
		}
	}
	return ret
}

// Streams returns how many stream connections were accepted.
func (s *Server) Streams() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.streams
}

// StreamURL returns the absolute stream URL.
func (s *Server) StreamURL() string {
	return s.URL + s.config.StreamPath
}
