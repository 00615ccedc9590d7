package http

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/transport"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestTransport_Send(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		status      int
		body        string
		id          mcpsession.RequestId
		expectErr   func(t *testing.T, err error)
		expected    string
		notified    []string
	}{
		{
			name:        "json response",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `{"jsonrpc":"2.0","id":"init-1","result":{}}`,
			id:          mcpsession.StringId("init-1"),
			expected:    `{}`,
		},
		{
			name:        "json response with charset",
			contentType: "application/json; charset=utf-8",
			status:      http.StatusOK,
			body:        `{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`,
			id:          mcpsession.IntId(7),
			expected:    `{"ok":true}`,
		},
		{
			name:        "sse framed response after notification",
			contentType: "text/event-stream",
			status:      http.StatusOK,
			body: "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\",\"params\":{\"progress\":1}}\n\n" +
				"event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":\"list-1\",\"result\":{\"tools\":[]}}\n\n",
			id:       mcpsession.StringId("list-1"),
			expected: `{"tools":[]}`,
			notified: []string{"notifications/progress"},
		},
		{
			name:     "missing content type falls back to sse",
			status:   http.StatusOK,
			body:     "data: {\"jsonrpc\":\"2.0\",\"id\":\"list-1\",\"result\":{}}\n\n",
			id:       mcpsession.StringId("list-1"),
			expected: `{}`,
		},
		{
			name:        "batch holding the response",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `[{"jsonrpc":"2.0","method":"notifications/message"},{"jsonrpc":"2.0","id":"call-1","result":{"content":[]}}]`,
			id:          mcpsession.StringId("call-1"),
			expected:    `{"content":[]}`,
			notified:    []string{"notifications/message"},
		},
		{
			name:        "rpc error response",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `{"jsonrpc":"2.0","id":"call-1","error":{"code":-32601,"message":"Unknown tool"}}`,
			id:          mcpsession.StringId("call-1"),
			expected:    "",
		},
		{
			name:        "server error status",
			contentType: "text/plain",
			status:      http.StatusInternalServerError,
			body:        "boom",
			id:          mcpsession.StringId("list-1"),
			expectErr: func(t *testing.T, err error) {
				var target *mcpsession.TransportError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, http.StatusInternalServerError, target.StatusCode)
				assert.Equal(t, "boom", string(target.Body))
			},
		},
		{
			name:   "accepted without body",
			status: http.StatusAccepted,
			id:     mcpsession.StringId("list-1"),
			expectErr: func(t *testing.T, err error) {
				assert.Equal(t, transport.ErrDeferred, err)
			},
		},
		{
			name:        "id mismatch",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `{"jsonrpc":"2.0","id":"init-2","result":{}}`,
			id:          mcpsession.StringId("init-1"),
			expectErr: func(t *testing.T, err error) {
				var target *mcpsession.ResponseMismatchError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, mcpsession.StringId("init-2"), target.Got)
			},
		},
		{
			name:        "integer id does not match string id",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `{"jsonrpc":"2.0","id":1,"result":{}}`,
			id:          mcpsession.StringId("1"),
			expectErr: func(t *testing.T, err error) {
				var target *mcpsession.ResponseMismatchError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:        "garbage json",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `<html>`,
			id:          mcpsession.StringId("init-1"),
			expectErr: func(t *testing.T, err error) {
				var target *mcpsession.MalformedResponseError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:        "result and error together",
			contentType: "application/json",
			status:      http.StatusOK,
			body:        `{"jsonrpc":"2.0","id":"init-1","result":{},"error":{"code":1,"message":"x"}}`,
			id:          mcpsession.StringId("init-1"),
			expectErr: func(t *testing.T, err error) {
				var target *mcpsession.MalformedResponseError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:        "event stream without response",
			contentType: "text/event-stream",
			status:      http.StatusOK,
			body:        ": nothing here\n\n",
			id:          mcpsession.StringId("init-1"),
			expectErr: func(t *testing.T, err error) {
				var target *mcpsession.MalformedResponseError
				assert.True(t, errors.As(err, &target))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer server.Close()
			var mux sync.Mutex
			var notified []string
			client := New(WithNotificationHandler(func(ctx context.Context, notification *mcpsession.Notification) {
				mux.Lock()
				defer mux.Unlock()
				notified = append(notified, notification.Method)
			}))
			request, err := mcpsession.NewRequest(tc.id, "test", nil)
			require.NoError(t, err)
			response, err := client.Send(context.Background(), server.URL+"/mcp/abc123", request)
			if tc.expectErr != nil {
				tc.expectErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, response.Id.Equal(tc.id))
			assert.Equal(t, tc.expected, string(response.Result))
			assert.Equal(t, tc.notified, notified)
		})
	}
}

func TestTransport_RequestEnvelope(t *testing.T) {
	var captured *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"init-1","result":{}}`)
	}))
	defer server.Close()

	var messages []*mcpsession.Message
	client := New(
		WithBearerToken("secret"),
		WithHeader("X-Tenant", "t1"),
		WithListener(func(message *mcpsession.Message) { messages = append(messages, message) }),
	)
	request, err := mcpsession.NewRequest(mcpsession.StringId("init-1"), mcpsession.MethodInitialize, map[string]interface{}{"protocolVersion": "2024-11-05"})
	require.NoError(t, err)
	_, err = client.Send(context.Background(), server.URL+"/mcp/abc123", request)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "/mcp/abc123", captured.URL.Path)
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "application/json, text/event-stream", captured.Header.Get("Accept"))
	assert.Equal(t, "Bearer secret", captured.Header.Get("Authorization"))
	assert.Equal(t, "t1", captured.Header.Get("X-Tenant"))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{"protocolVersion":"2024-11-05"}}`, string(body))
	require.Len(t, messages, 2)
	assert.Equal(t, mcpsession.Outbound, messages[0].Direction)
	assert.Equal(t, mcpsession.MessageTypeResponse, messages[1].Type)
}

func TestTransport_Notify(t *testing.T) {
	testCases := []struct {
		name         string
		status       int
		unauthorized bool
		wantErr      bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "no content", status: http.StatusNoContent},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: true, unauthorized: true},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()
			notification, err := mcpsession.NewNotification(mcpsession.MethodInitialized, nil)
			require.NoError(t, err)
			err = New().Notify(context.Background(), server.URL, notification)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tc.unauthorized, mcpsession.IsUnauthorized(err))
		})
	}
}

func TestTransport_SendTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	request, err := mcpsession.NewRequest(mcpsession.StringId("call-1"), mcpsession.MethodToolsCall, nil)
	require.NoError(t, err)
	_, err = New().Send(ctx, server.URL, request)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
