package client

import (
	"context"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/viant/mcpsession"
	"strings"
)

// InitializeParams is the params for the initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// ClientInfo identifies this client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool describes a tool advertised by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams is the params for tools/call.
type CallToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// CallToolResult is the result of tools/call. IsError reports a tool-level failure,
// which is distinct from a JSON-RPC error.
type CallToolResult struct {
	Content           []ContentBlock  `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// ContentBlock represents a content block in a tool result.
type ContentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     string          `json:"data,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Text joins the text blocks of the result.
func (r *CallToolResult) Text() string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Initialize performs the handshake and returns the server's answer.
func (s *Session) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: s.client.protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      s.client.clientInfo,
	}
	if err := s.CallInto(ctx, mcpsession.MethodInitialize, params, nil); err != nil {
		return nil, err
	}
	return s.ServerInfo(), nil
}

// ListTools retrieves every tool, following pagination cursors.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	var ret []Tool
	cursor := ""
	for {
		var params interface{}
		if cursor != "" {
			params = map[string]string{"cursor": cursor}
		}
		result := ListToolsResult{}
		if err := s.CallInto(ctx, mcpsession.MethodToolsList, params, &result); err != nil {
			return nil, err
		}
		ret = append(ret, result.Tools...)
		if result.NextCursor == "" || result.NextCursor == cursor {
			return ret, nil
		}
		cursor = result.NextCursor
	}
}

// CallTool invokes a tool. A result with IsError set is returned without error.
func (s *Session) CallTool(ctx context.Context, name string, arguments interface{}) (*CallToolResult, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name was empty")
	}
	result := &CallToolResult{}
	if err := s.CallInto(ctx, mcpsession.MethodToolsCall, CallToolParams{Name: name, Arguments: arguments}, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Ping checks the server is responsive.
func (s *Session) Ping(ctx context.Context) error {
	return s.CallInto(ctx, mcpsession.MethodPing, nil, nil)
}
