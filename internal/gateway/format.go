package gateway

import (
	"encoding/json"

	"github.com/Lemon9247/agentfox/internal/gateway/mcpresult"
)

// formatDefault renders a command result as a single pretty-printed
// JSON text block. It is the formatter for every tool that does not
// need special MCP content shaping.
func formatDefault(result json.RawMessage) json.RawMessage {
	if len(result) == 0 {
		return mcpresult.Text("{}")
	}
	var pretty any
	if err := json.Unmarshal(result, &pretty); err != nil {
		return mcpresult.Text(string(result))
	}
	encoded, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return mcpresult.Text(string(result))
	}
	return mcpresult.Text(string(encoded))
}

// screenshotResult is the shape internal/browserdriver's screenshot
// handler puts in a command.Response.Result.
type screenshotResult struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// formatScreenshot renders a screenshot command's result as an MCP
// image content block instead of a text block.
func formatScreenshot(result json.RawMessage) json.RawMessage {
	var sr screenshotResult
	if err := json.Unmarshal(result, &sr); err != nil || sr.Data == "" {
		return formatDefault(result)
	}
	if sr.MimeType == "" {
		sr.MimeType = "image/png"
	}
	return mcpresult.Image(sr.MimeType, sr.Data)
}
