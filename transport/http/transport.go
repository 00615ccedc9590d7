package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/sse"
	"github.com/viant/mcpsession/transport"
	"golang.org/x/net/publicsuffix"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"strings"
)

const (
	acceptHeader = mcpsession.ContentTypeJSON + ", " + mcpsession.ContentTypeEventStream
	maxErrorBody = 64 * 1024
)

// Transport posts JSON-RPC frames over HTTP. It keeps no per-call state;
// concurrent calls share the connection pool of the underlying client.
type Transport struct {
	client         *http.Client
	headers        http.Header
	listener       mcpsession.Listener
	onNotification func(ctx context.Context, notification *mcpsession.Notification)
	onRequest      func(ctx context.Context, request *mcpsession.Request)
	logger         mcpsession.Logger
}

// NewHTTPClient returns a client with a cookie jar for auth session continuity.
func NewHTTPClient() *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{Jar: jar}
}

// New creates a transport.
func New(options ...Option) *Transport {
	ret := &Transport{
		headers: http.Header{},
		logger:  mcpsession.NopLogger,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.client == nil {
		ret.client = NewHTTPClient()
	}
	return ret
}

// Client returns the underlying HTTP client.
func (t *Transport) Client() *http.Client {
	return t.client
}

// Headers returns a copy of the headers sent with every POST.
func (t *Transport) Headers() http.Header {
	return t.headers.Clone()
}

// Send posts request to endpoint and returns the response whose id matches.
func (t *Transport) Send(ctx context.Context, endpoint string, request *mcpsession.Request) (*mcpsession.Response, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	t.notify(mcpsession.NewRequestMessage(request), data)
	resp, err := t.post(ctx, endpoint, data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err = checkStatus(resp); err != nil {
		return nil, err
	}
	contentType := mediaType(resp.Header.Get("Content-Type"))
	var response *mcpsession.Response
	switch contentType {
	case mcpsession.ContentTypeEventStream:
		response, err = t.decodeStream(ctx, resp.Body, request.Id, contentType)
	default:
		var body []byte
		if body, err = io.ReadAll(resp.Body); err != nil {
			return nil, &mcpsession.MalformedResponseError{ContentType: contentType, Err: err}
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, transport.ErrDeferred
		}
		response, err = t.decodeBody(ctx, body, request.Id, contentType)
	}
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, transport.ErrDeferred
	}
	if !response.Id.Equal(request.Id) {
		return nil, &mcpsession.ResponseMismatchError{Want: request.Id, Got: response.Id}
	}
	return response, nil
}

// Notify posts a notification; any 2xx status is success.
func (t *Transport) Notify(ctx context.Context, endpoint string, notification *mcpsession.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	t.notify(mcpsession.NewNotificationMessage(notification), data)
	return t.postOneWay(ctx, endpoint, data)
}

// Reply posts a response to a server-initiated request.
func (t *Transport) Reply(ctx context.Context, endpoint string, response *mcpsession.Response) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	message := &mcpsession.Message{Type: mcpsession.MessageTypeResponse, Direction: mcpsession.Outbound, JsonRpcResponse: response}
	t.notify(message, data)
	return t.postOneWay(ctx, endpoint, data)
}

func (t *Transport) postOneWay(ctx context.Context, endpoint string, data []byte) error {
	resp, err := t.post(ctx, endpoint, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err = checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

func (t *Transport) post(ctx context.Context, endpoint string, data []byte) (*http.Response, error) {
	if endpoint == "" {
		return nil, errors.New("transport is not initialised - endpoint is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range t.headers {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", mcpsession.ContentTypeJSON)
	req.Header.Set("Accept", acceptHeader)
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return mcpsession.NewTransportError(resp.StatusCode, body)
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	ret, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return ret
}

// decodeBody parses a buffered body: JSON first unless the server declared an event stream, then SSE framing.
func (t *Transport) decodeBody(ctx context.Context, body []byte, id mcpsession.RequestId, contentType string) (*mcpsession.Response, error) {
	response, jsonErr := t.decodeJSON(ctx, body, id)
	if jsonErr == nil {
		return response, nil
	}
	var mismatch *mcpsession.ResponseMismatchError
	if errors.As(jsonErr, &mismatch) || contentType == mcpsession.ContentTypeJSON {
		return nil, jsonErr
	}
	response, err := t.decodeStream(ctx, bytes.NewReader(body), id, contentType)
	if err != nil {
		return nil, &mcpsession.MalformedResponseError{ContentType: contentType, Body: body, Err: jsonErr}
	}
	return response, nil
}

func (t *Transport) decodeJSON(ctx context.Context, body []byte, id mcpsession.RequestId) (*mcpsession.Response, error) {
	trimmed := bytes.TrimSpace(body)
	if mcpsession.IsBatch(trimmed) {
		var frames mcpsession.Batch
		if err := json.Unmarshal(trimmed, &frames); err != nil {
			return nil, &mcpsession.MalformedResponseError{ContentType: mcpsession.ContentTypeJSON, Body: body, Err: err}
		}
		var first *mcpsession.Response
		for _, frame := range frames {
			response, err := t.dispatch(ctx, frame)
			if err != nil {
				return nil, &mcpsession.MalformedResponseError{ContentType: mcpsession.ContentTypeJSON, Body: body, Err: err}
			}
			if response == nil {
				continue
			}
			if response.Id.Equal(id) {
				return response, nil
			}
			if first == nil {
				first = response
			}
		}
		if first != nil {
			return nil, &mcpsession.ResponseMismatchError{Want: id, Got: first.Id}
		}
		return nil, &mcpsession.MalformedResponseError{ContentType: mcpsession.ContentTypeJSON, Body: body, Err: errors.New("batch holds no response")}
	}
	response, err := t.dispatch(ctx, trimmed)
	if err != nil {
		return nil, &mcpsession.MalformedResponseError{ContentType: mcpsession.ContentTypeJSON, Body: body, Err: err}
	}
	if response == nil {
		return nil, &mcpsession.MalformedResponseError{ContentType: mcpsession.ContentTypeJSON, Body: body, Err: errors.New("body is not a response")}
	}
	return response, nil
}

// decodeStream reads SSE frames until the first response; earlier notifications and requests are dispatched.
func (t *Transport) decodeStream(ctx context.Context, body io.Reader, id mcpsession.RequestId, contentType string) (*mcpsession.Response, error) {
	decoder := sse.NewDecoder(body)
	for {
		event, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &mcpsession.MalformedResponseError{ContentType: contentType, Err: fmt.Errorf("event stream ended without a response to %v", id)}
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &mcpsession.MalformedResponseError{ContentType: contentType, Err: err}
		}
		if strings.TrimSpace(event.Data) == "" {
			continue
		}
		response, err := t.dispatch(ctx, []byte(event.Data))
		if err != nil {
			return nil, &mcpsession.MalformedResponseError{ContentType: contentType, Body: []byte(event.Data), Err: err}
		}
		if response != nil {
			return response, nil
		}
	}
}

// dispatch decodes one frame; responses are returned, everything else goes to the handlers.
func (t *Transport) dispatch(ctx context.Context, frame []byte) (*mcpsession.Response, error) {
	message, err := mcpsession.DecodeMessage(frame)
	if err != nil {
		return nil, err
	}
	t.notify(message, frame)
	switch message.Type {
	case mcpsession.MessageTypeResponse:
		return message.JsonRpcResponse, nil
	case mcpsession.MessageTypeNotification:
		if t.onNotification != nil {
			t.onNotification(ctx, message.JsonRpcNotification)
		} else {
			t.logger.Debugf("dropping notification %v received on POST response", message.Method())
		}
	case mcpsession.MessageTypeRequest:
		if t.onRequest != nil {
			t.onRequest(ctx, message.JsonRpcRequest)
		} else {
			t.logger.Errorf("ignoring server request %v received on POST response", message.Method())
		}
	}
	return nil, nil
}

func (t *Transport) notify(message *mcpsession.Message, raw []byte) {
	if t.listener == nil {
		return
	}
	message.Raw = raw
	t.listener(message)
}
