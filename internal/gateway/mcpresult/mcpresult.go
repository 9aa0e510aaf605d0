// Package mcpresult builds MCP tool-result content blocks: the text and
// image shapes an agent's client renders, plus the JSON-RPC envelope
// types the gateway speaks over stdio.
package mcpresult

import (
	"encoding/json"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
)

// Request is an incoming JSON-RPC 2.0 request from the MCP client.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outgoing JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a transport-level JSON-RPC error (malformed request,
// unknown method) — distinct from a tool-level error, which is carried
// as a successful RPC response whose result has IsError set.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ContentBlock is one piece of an MCP tool result: text, or an image
// with its mime type and base64-encoded bytes.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the result payload of a tools/call response.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

func marshalResult(v any) json.RawMessage {
	encoded, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"content":[{"type":"text","text":"internal error: failed to marshal result"}],"isError":true}`)
	}
	return encoded
}

// Text builds a successful single-text-block tool result.
func Text(text string) json.RawMessage {
	return marshalResult(ToolResult{Content: []ContentBlock{{Type: "text", Text: text}}})
}

// Image builds a successful single-image-block tool result.
func Image(mimeType, base64Data string) json.RawMessage {
	return marshalResult(ToolResult{Content: []ContentBlock{{Type: "image", MimeType: mimeType, Data: base64Data}}})
}

// Error builds a tool-level error result (IsError: true) from a plain
// message, for callers that have not built a Structured error.
func Error(text string) json.RawMessage {
	return marshalResult(ToolResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true})
}

// StructuredError builds a tool-level error result from a
// mcperr.Structured value.
func StructuredError(s mcperr.Structured) json.RawMessage {
	return marshalResult(ToolResult{Content: []ContentBlock{{Type: "text", Text: s.Text()}}, IsError: true})
}
