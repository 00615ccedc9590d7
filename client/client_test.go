package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/endpoint"
	"github.com/viant/mcpsession/internal/mcptest"
	"sync"
	"testing"
	"time"
)

var echoTool = mcptest.Tool{Name: "echo", Description: "echoes arguments", InputSchema: json.RawMessage(`{"type":"object"}`)}

func openSession(t *testing.T, server *mcptest.Server, options ...Option) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := Open(ctx, server.URL, "/sse", options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func recordedIds(server *mcptest.Server) []string {
	var ret []string
	for _, recorded := range server.Received() {
		if recorded.Message.Type == mcpsession.MessageTypeRequest {
			ret = append(ret, recorded.Message.JsonRpcRequest.Id.String())
		}
	}
	return ret
}

func TestSession_Handshake(t *testing.T) {
	testCases := []struct {
		name string
		mode mcptest.Mode
	}{
		{name: "inline json", mode: mcptest.ModeJSON},
		{name: "inline event stream", mode: mcptest.ModeSSE},
		{name: "deferred to session stream", mode: mcptest.ModeDeferred},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := mcptest.Start(t, mcptest.Config{Mode: tc.mode, Tools: []mcptest.Tool{echoTool}})
			session := openSession(t, server, WithClientInfo("test-client", "0.1"))
			ctx := context.Background()
			assert.Equal(t, StateOpen, session.State())

			info, err := session.Initialize(ctx)
			require.NoError(t, err)
			assert.Equal(t, "mcptest", info.ServerInfo.Name)
			assert.Equal(t, StateReady, session.State())

			tools, err := session.ListTools(ctx)
			require.NoError(t, err)
			require.Len(t, tools, 1)
			assert.Equal(t, "echo", tools[0].Name)

			result, err := session.CallTool(ctx, "echo", map[string]interface{}{"query": "golang"})
			require.NoError(t, err)
			assert.False(t, result.IsError)
			assert.Equal(t, `echo {"query":"golang"}`, result.Text())

			assert.Equal(t, []string{"initialize", "notifications/initialized", "tools/list", "tools/call"}, server.Methods())
			assert.Equal(t, []string{"init-1", "list-1", "call-1"}, recordedIds(server))
			initialize := server.Received()[0].Message.JsonRpcRequest
			assert.JSONEq(t, `{"capabilities":{},"clientInfo":{"name":"test-client","version":"0.1"},"protocolVersion":"2024-11-05"}`, string(initialize.Params))
		})
	}
}

func TestSession_InitializeReturnsResult(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{
		Announcement: "/mcp/abc123",
		Results:      map[string]json.RawMessage{mcpsession.MethodInitialize: json.RawMessage(`{}`)},
	})
	session := openSession(t, server)
	assert.Equal(t, endpoint.Endpoint("/mcp/abc123"), session.Endpoint())
	assert.Equal(t, server.URL+"/mcp/abc123", session.EndpointURL())

	params := mcpsession.Object(map[string]mcpsession.Value{
		"protocolVersion": mcpsession.String("2024-11-05"),
		"clientInfo":      mcpsession.Object(map[string]mcpsession.Value{"name": mcpsession.String("test-client"), "version": mcpsession.String("0.1")}),
		"capabilities":    mcpsession.EmptyObject(),
	})
	result, err := session.Call(context.Background(), mcpsession.MethodInitialize, params)
	require.NoError(t, err)
	assert.True(t, result.Equal(mcpsession.EmptyObject()), result.String())
	assert.Equal(t, []string{"init-1"}, recordedIds(server))
}

func TestSession_PostsToAnnouncedPathVerbatim(t *testing.T) {
	testCases := []struct {
		name         string
		announcement string
	}{
		{name: "trailing slash", announcement: "/mcp/s1/"},
		{name: "trailing slash and query", announcement: "/mcp/message/?sessionId=s2"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := mcptest.Start(t, mcptest.Config{Announcement: tc.announcement, Tools: []mcptest.Tool{echoTool}})
			session := openSession(t, server)
			assert.Equal(t, server.URL+tc.announcement, session.EndpointURL())
			_, err := session.Initialize(context.Background())
			require.NoError(t, err)
			_, err = session.ListTools(context.Background())
			require.NoError(t, err)
			received := server.Received()
			require.Len(t, received, 3)
			for _, recorded := range received {
				assert.Equal(t, tc.announcement, recorded.Path)
			}
		})
	}
}

func TestOpen_StreamPathVerbatim(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{StreamPath: "/events/"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := Open(ctx, server.URL, "/events/")
	require.NoError(t, err)
	defer session.Close()
	assert.Equal(t, 1, server.Streams())
}

func TestSession_ProtocolOrder(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{Tools: []mcptest.Tool{echoTool}})
	session := openSession(t, server)
	ctx := context.Background()

	_, err := session.Call(ctx, mcpsession.MethodToolsList, mcpsession.Null())
	var orderErr *mcpsession.ProtocolOrderError
	require.True(t, errors.As(err, &orderErr))
	assert.Equal(t, mcpsession.MethodToolsList, orderErr.Method)
	assert.Empty(t, server.Received(), "no network call before initialize")

	err = session.Notify(ctx, "notifications/progress", mcpsession.Null())
	assert.True(t, errors.As(err, &orderErr))

	_, err = session.Initialize(ctx)
	require.NoError(t, err)
	_, err = session.Initialize(ctx)
	assert.True(t, errors.As(err, &orderErr))
	assert.Equal(t, []string{"initialize", "notifications/initialized"}, server.Methods())
}

func TestSession_FailedInitializeCanBeRetried(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{
		Failures: map[string]mcptest.Failure{mcpsession.MethodInitialize: {Status: 503, Times: 1}},
	})
	session := openSession(t, server, WithInitializedNotification(false))
	_, err := session.Initialize(context.Background())
	var transportErr *mcpsession.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, StateOpen, session.State())
	_, err = session.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"initialize", "initialize"}, server.Methods())
}

func TestSession_CallFailures(t *testing.T) {
	testCases := []struct {
		name   string
		config mcptest.Config
		call   func(ctx context.Context, session *Session) error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "http 500 on tools/list",
			config: mcptest.Config{Failures: map[string]mcptest.Failure{mcpsession.MethodToolsList: {Status: 500, Times: 1}}},
			call: func(ctx context.Context, session *Session) error {
				_, err := session.ListTools(ctx)
				return err
			},
			check: func(t *testing.T, err error) {
				var target *mcpsession.TransportError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, 500, target.StatusCode)
			},
		},
		{
			name: "json-rpc error on tools/call",
			config: mcptest.Config{Errors: map[string]*mcpsession.Error{
				mcpsession.MethodToolsCall: {Code: -32601, Message: "Unknown tool"},
			}},
			call: func(ctx context.Context, session *Session) error {
				_, err := session.CallTool(ctx, "wikipedia", map[string]string{"query": "golang"})
				return err
			},
			check: func(t *testing.T, err error) {
				rpcErr, ok := mcpsession.AsRPCError(err)
				require.True(t, ok, err)
				assert.Equal(t, -32601, rpcErr.Code)
				assert.Equal(t, "Unknown tool", rpcErr.Message)
			},
		},
		{
			name:   "response id mismatch",
			config: mcptest.Config{ResponseIDs: map[string]string{mcpsession.MethodPing: "other-1"}},
			call: func(ctx context.Context, session *Session) error {
				return session.Ping(ctx)
			},
			check: func(t *testing.T, err error) {
				var target *mcpsession.ResponseMismatchError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, mcpsession.StringId("ping-1"), target.Want)
				assert.Equal(t, mcpsession.StringId("other-1"), target.Got)
			},
		},
		{
			name:   "malformed result",
			config: mcptest.Config{Results: map[string]json.RawMessage{mcpsession.MethodToolsList: json.RawMessage(`{"tools":"nope"}`)}},
			call: func(ctx context.Context, session *Session) error {
				_, err := session.ListTools(ctx)
				return err
			},
			check: func(t *testing.T, err error) {
				var target *mcpsession.MalformedResponseError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:   "call timeout",
			config: mcptest.Config{Delays: map[string]time.Duration{mcpsession.MethodToolsCall: 2 * time.Second}, Tools: []mcptest.Tool{echoTool}},
			call: func(ctx context.Context, session *Session) error {
				ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
				defer cancel()
				_, err := session.CallTool(ctx, "echo", nil)
				return err
			},
			check: func(t *testing.T, err error) {
				assert.True(t, mcpsession.IsTimeout(err), err)
				assert.True(t, errors.Is(err, context.DeadlineExceeded))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.config.Tools == nil {
				tc.config.Tools = []mcptest.Tool{echoTool}
			}
			server := mcptest.Start(t, tc.config)
			session := openSession(t, server)
			ctx := context.Background()
			_, err := session.Initialize(ctx)
			require.NoError(t, err)

			err = tc.call(ctx, session)
			tc.check(t, err)

			assert.Nil(t, session.Err(), "session stays usable")
			assert.Equal(t, 0, session.InFlight())
			_, err = session.Call(ctx, mcpsession.MethodToolsList, mcpsession.Null())
			assert.NoError(t, err)
		})
	}
}

func TestSession_ConcurrentCalls(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{Mode: mcptest.ModeDeferred, Tools: []mcptest.Tool{echoTool}})
	session := openSession(t, server, WithMaxInFlight(4), WithIDStrategy("counter"))
	ctx := context.Background()
	_, err := session.Initialize(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := session.CallTool(ctx, "echo", map[string]int{"i": i})
			if err == nil && result.Text() != fmt.Sprintf(`echo {"i":%d}`, i) {
				err = fmt.Errorf("caller %d got %q", i, result.Text())
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	seen := map[string]bool{}
	for _, id := range recordedIds(server) {
		assert.False(t, seen[id], id)
		seen[id] = true
	}
	assert.Len(t, seen, 21)
}

func TestSession_Notifications(t *testing.T) {
	testCases := []struct {
		name string
		mode mcptest.Mode
	}{
		{name: "inline event stream", mode: mcptest.ModeSSE},
		{name: "session stream", mode: mcptest.ModeDeferred},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := mcptest.Start(t, mcptest.Config{Mode: tc.mode, NotifyBeforeResponse: true})
			session := openSession(t, server)
			_, err := session.Initialize(context.Background())
			require.NoError(t, err)
			select {
			case notification := <-session.Notifications():
				assert.Equal(t, "notifications/message", notification.Method)
			case <-time.After(2 * time.Second):
				t.Fatal("notification not delivered")
			}
		})
	}
}

func TestSession_ServerRequests(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{})
	var mux sync.Mutex
	var reported []error
	session := openSession(t, server, WithErrorHandler(func(err error) {
		mux.Lock()
		defer mux.Unlock()
		reported = append(reported, err)
	}))
	_, err := session.Initialize(context.Background())
	require.NoError(t, err)

	server.Push(`{"jsonrpc":"2.0","id":"srv-1","method":"ping"}`)
	server.Push(`{"jsonrpc":"2.0","id":"srv-2","method":"sampling/createMessage"}`)
	server.Push(`{"jsonrpc":"2.0","id":"ghost-1","result":{}}`)

	replies := func() map[string]*mcpsession.Response {
		ret := map[string]*mcpsession.Response{}
		for _, recorded := range server.Received() {
			if recorded.Message.Type == mcpsession.MessageTypeResponse {
				ret[recorded.Message.JsonRpcResponse.Id.String()] = recorded.Message.JsonRpcResponse
			}
		}
		return ret
	}
	require.Eventually(t, func() bool { return len(replies()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{}`, string(replies()["srv-1"].Result))
	require.NotNil(t, replies()["srv-2"].Error)
	assert.Equal(t, mcpsession.MethodNotFound, replies()["srv-2"].Error.Code)

	require.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(reported) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, session.Err())
}

func TestSession_StreamLoss(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{Mode: mcptest.ModeDeferred, Delays: map[string]time.Duration{mcpsession.MethodInitialize: 200 * time.Millisecond}})
	session := openSession(t, server)
	result := make(chan error, 1)
	go func() {
		_, err := session.Initialize(context.Background())
		result <- err
	}()
	time.Sleep(50 * time.Millisecond)
	server.CloseStreams()

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not terminated")
	}
	assert.Equal(t, StateFailed, session.State())
	assert.True(t, errors.Is(session.Err(), mcpsession.ErrStreamClosed))
	select {
	case err := <-result:
		assert.True(t, errors.Is(err, mcpsession.ErrStreamClosed), err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed")
	}
	_, err := session.Call(context.Background(), mcpsession.MethodInitialize, mcpsession.Null())
	assert.True(t, errors.Is(err, mcpsession.ErrStreamClosed))
}

func TestSession_KeepStream(t *testing.T) {
	testCases := []struct {
		name    string
		mode    mcptest.Mode
		wantErr bool
	}{
		{name: "inline responses work without the stream", mode: mcptest.ModeJSON},
		{name: "deferred responses need the stream", mode: mcptest.ModeDeferred, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := mcptest.Start(t, mcptest.Config{Mode: tc.mode})
			session := openSession(t, server, WithKeepStream(false))
			_, err := session.Initialize(context.Background())
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, mcpsession.ErrStreamClosed), err)
		})
	}
}

func TestClient_Open(t *testing.T) {
	testCases := []struct {
		name        string
		config      mcptest.Config
		sessionPath string
		options     []Option
		check       func(t *testing.T, err error)
	}{
		{
			name:   "stream path discovered from root",
			config: mcptest.Config{},
		},
		{
			name:        "endpoint timeout",
			config:      mcptest.Config{NoAnnouncement: true},
			sessionPath: "/sse",
			options:     []Option{WithEndpointTimeout(100 * time.Millisecond)},
			check: func(t *testing.T, err error) {
				var target *mcpsession.EndpointTimeoutError
				assert.True(t, errors.As(err, &target), err)
			},
		},
		{
			name:        "malformed endpoint",
			config:      mcptest.Config{Announcement: "/mcp/a b"},
			sessionPath: "/sse",
			check: func(t *testing.T, err error) {
				var target *mcpsession.MalformedEndpointError
				assert.True(t, errors.As(err, &target), err)
			},
		},
		{
			name:        "stream refused",
			config:      mcptest.Config{StreamStatus: 401},
			sessionPath: "/sse",
			check: func(t *testing.T, err error) {
				var target *mcpsession.ConnectionError
				require.True(t, errors.As(err, &target), err)
				assert.Equal(t, 401, target.StatusCode)
			},
		},
		{
			name:        "stream ends before announcement",
			config:      mcptest.Config{NoAnnouncement: true, CloseStreamAfterAnnouncement: true},
			sessionPath: "/sse",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, mcpsession.ErrStreamClosed), err)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := mcptest.Start(t, tc.config)
			session, err := Open(context.Background(), server.URL, tc.sessionPath, tc.options...)
			if tc.check != nil {
				tc.check(t, err)
				return
			}
			require.NoError(t, err)
			defer session.Close()
			assert.Equal(t, endpoint.Endpoint("/mcp/"+session.Endpoint().SessionID()), session.Endpoint())
		})
	}
}

func TestNew_Validation(t *testing.T) {
	for _, baseURL := range []string{"", "localhost:8080", "ftp://host", "http://"} {
		_, err := New(baseURL)
		assert.Error(t, err, baseURL)
	}
	_, err := New("http://localhost:8080", WithIDStrategy("random"))
	assert.Error(t, err)
}

func TestSession_Close(t *testing.T) {
	server := mcptest.Start(t, mcptest.Config{})
	session := openSession(t, server)
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.Equal(t, StateClosed, session.State())
	_, err := session.Call(context.Background(), mcpsession.MethodInitialize, mcpsession.Null())
	assert.Equal(t, mcpsession.ErrSessionClosed, err)
	_, open := <-session.Notifications()
	assert.False(t, open)
}
