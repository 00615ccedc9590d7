package sse

import (
	"github.com/viant/mcpsession"
	"net/http"
	"time"
)

// Option is a function that configures the Stream
type Option func(s *Stream)

// WithHTTPClient sets the HTTP client used for the GET request
func WithHTTPClient(client *http.Client) Option {
	return func(s *Stream) {
		if client != nil {
			s.client = client
		}
	}
}

// WithHeader adds a request header
func WithHeader(key, value string) Option {
	return func(s *Stream) {
		s.header.Add(key, value)
	}
}

// WithHeaders adds request headers
func WithHeaders(header http.Header) Option {
	return func(s *Stream) {
		for key, values := range header {
			for _, value := range values {
				s.header.Add(key, value)
			}
		}
	}
}

// WithConnectTimeout bounds the time spent waiting for response headers
func WithConnectTimeout(timeout time.Duration) Option {
	return func(s *Stream) {
		s.connectTimeout = timeout
	}
}

// WithLastEventID resumes a stream from the given event id
func WithLastEventID(id string) Option {
	return func(s *Stream) {
		if id != "" {
			s.header.Set("Last-Event-ID", id)
		}
	}
}

// WithBuffer sets how many decoded events may be queued ahead of the consumer
func WithBuffer(size int) Option {
	return func(s *Stream) {
		if size >= 0 {
			s.buffer = size
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger mcpsession.Logger) Option {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}
