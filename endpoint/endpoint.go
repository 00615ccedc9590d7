package endpoint

import (
	"fmt"
	"github.com/viant/afs/url"
	"github.com/viant/mcpsession"
	neturl "net/url"
	"strings"
	"unicode"
)

// DefaultPrefix is the path prefix session endpoints are announced under.
const DefaultPrefix = "/mcp"

// Endpoint is a validated, session-scoped RPC path such as /mcp/abc123 or /mcp/message?sessionId=abc123.
type Endpoint string

// Parse validates raw as a session endpoint under prefix.
func Parse(prefix, raw string) (Endpoint, error) {
	candidate := strings.TrimSpace(raw)
	malformed := func(reason string) (Endpoint, error) {
		return "", &mcpsession.MalformedEndpointError{Data: raw, Reason: reason}
	}
	if candidate == "" {
		return malformed("empty")
	}
	for _, r := range candidate {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return malformed("contains whitespace or control characters")
		}
	}
	parsed, err := neturl.Parse(candidate)
	if err != nil {
		return malformed(err.Error())
	}
	if parsed.Scheme != "" || parsed.Host != "" || strings.HasPrefix(candidate, "//") {
		return malformed("expected a path, got an absolute URL")
	}
	if !strings.HasPrefix(parsed.Path, "/") {
		return malformed("path must be absolute")
	}
	if parsed.Fragment != "" {
		return malformed("fragment not allowed")
	}
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasPrefix(parsed.Path, prefix) {
		return malformed(fmt.Sprintf("path does not start with %v", prefix))
	}
	rest := parsed.Path[len(prefix):]
	if rest != "" && !strings.HasSuffix(prefix, "/") && !strings.HasPrefix(rest, "/") {
		return malformed(fmt.Sprintf("%v is not followed by a path segment", prefix))
	}
	if strings.Trim(rest, "/") == "" && parsed.RawQuery == "" {
		return malformed("no session identifier")
	}
	for _, segment := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if segment == "." || segment == ".." {
			return malformed("dot segments not allowed")
		}
	}
	return Endpoint(candidate), nil
}

// Path returns the path without the query.
func (e Endpoint) Path() string {
	if index := strings.IndexByte(string(e), '?'); index != -1 {
		return string(e)[:index]
	}
	return string(e)
}

// Query returns the decoded query parameters.
func (e Endpoint) Query() neturl.Values {
	index := strings.IndexByte(string(e), '?')
	if index == -1 {
		return neturl.Values{}
	}
	values, _ := neturl.ParseQuery(string(e)[index+1:])
	return values
}

// SessionID returns the sessionId query parameter, or the last path segment.
func (e Endpoint) SessionID() string {
	query := e.Query()
	for _, key := range []string{"sessionId", "session_id", "sessionid"} {
		if value := query.Get(key); value != "" {
			return value
		}
	}
	path := strings.TrimRight(e.Path(), "/")
	return path[strings.LastIndexByte(path, '/')+1:]
}

// URL resolves the endpoint against the scheme and host of base. The endpoint is appended
// verbatim, trailing slash and query included.
func (e Endpoint) URL(base string) string {
	return url.Scheme(base, "http") + "://" + url.Host(base) + string(e)
}

// String returns the raw endpoint.
func (e Endpoint) String() string {
	return string(e)
}
