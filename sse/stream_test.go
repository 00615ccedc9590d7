package sse

import (
	"context"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/mcpsession"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func streamHandler(frames []string, hold bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != mcpsession.ContentTypeEventStream {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		w.Header().Set("Content-Type", mcpsession.ContentTypeEventStream)
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			_, _ = fmt.Fprint(w, frame)
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}
}

func TestOpen(t *testing.T) {
	testCases := []struct {
		name       string
		handler    http.HandlerFunc
		statusCode int
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			statusCode: http.StatusNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			statusCode: http.StatusInternalServerError,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()
			_, err := Open(context.Background(), server.URL)
			var connErr *mcpsession.ConnectionError
			require.True(t, errors.As(err, &connErr))
			assert.Equal(t, tc.statusCode, connErr.StatusCode)
		})
	}
}

func TestOpen_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	_, err := Open(context.Background(), url, WithConnectTimeout(time.Second))
	var connErr *mcpsession.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, 0, connErr.StatusCode)
}

func TestStream_Next(t *testing.T) {
	server := httptest.NewServer(streamHandler([]string{
		": keep-alive\n\n",
		"event: endpoint\ndata: /mcp/abc123\n\n",
		"id: 42\nevent: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"ping\"}\n\n",
	}, true))
	defer server.Close()

	stream, err := Open(context.Background(), server.URL, WithHeader("X-Test", "1"))
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "endpoint", event.Event)
	assert.Equal(t, "/mcp/abc123", event.Data)

	event, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "message", event.Event)
	assert.Equal(t, "42", stream.LastEventID())

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, err = stream.Next(short)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Nil(t, stream.Err())

	require.NoError(t, stream.Close())
	_, err = stream.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, stream.Close())
}

func TestStream_ServerEnds(t *testing.T) {
	server := httptest.NewServer(streamHandler([]string{"data: /mcp/1\n\n"}, false))
	defer server.Close()

	stream, err := Open(context.Background(), server.URL)
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/mcp/1", event.Data)

	_, err = stream.Next(ctx)
	assert.True(t, errors.Is(err, mcpsession.ErrStreamClosed), err)
	<-stream.Done()
	assert.True(t, errors.Is(stream.Err(), mcpsession.ErrStreamClosed))
}

func TestStream_SingleConsumer(t *testing.T) {
	server := httptest.NewServer(streamHandler(nil, true))
	defer server.Close()

	stream, err := Open(context.Background(), server.URL)
	require.NoError(t, err)
	defer stream.Close()

	stream.reading = 1
	_, err = stream.Next(context.Background())
	assert.Equal(t, ErrConcurrentRead, err)
	stream.reading = 0
}
