package endpoint

import (
	"fmt"
	neturl "net/url"
	"regexp"
	"strings"
)

// Kind selects the conventional stream path tried for a bare server root.
type Kind int

const (
	KindSSE Kind = iota
	KindStreamableHTTP
)

// DefaultPath returns /sse or /mcp.
func (k Kind) DefaultPath() string {
	if k == KindSSE {
		return "/sse"
	}
	return "/mcp"
}

var uuidInPath = regexp.MustCompile(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`)

// Candidate is a stream URL to try, in preference order.
type Candidate struct {
	Root string
	Path string
	URL  string
}

// Candidates lists stream URLs for baseURL. A non-root path is tried first exactly as given,
// and alone when it embeds a UUID; the kind default and the root follow.
func Candidates(baseURL string, kind Kind) ([]Candidate, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, fmt.Errorf("base URL must not be blank")
	}
	parsed, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Hostname() == "" {
		return nil, fmt.Errorf("base URL %q must include scheme and host", raw)
	}
	root := parsed.Scheme + "://" + parsed.Host
	path := normalizePath(parsed.EscapedPath())

	var ret []Candidate
	seen := map[string]bool{}
	add := func(path, fullURL string) {
		if seen[path] {
			return
		}
		seen[path] = true
		ret = append(ret, Candidate{Root: root, Path: path, URL: fullURL})
	}
	if path != "/" {
		fullURL := root + path
		if parsed.RawQuery != "" {
			fullURL += "?" + parsed.RawQuery
		}
		add(path, fullURL)
		if uuidInPath.MatchString(path) {
			return ret, nil
		}
	}
	add(kind.DefaultPath(), root+kind.DefaultPath())
	add("/", root)
	return ret, nil
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}
