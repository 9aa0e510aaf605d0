// Package mcperr implements the structured error taxonomy of spec
// section 7. Every code is a self-describing snake_case string so an
// LLM driving the MCP client can act on it without a lookup table.
package mcperr

import "encoding/json"

// Error codes, grouped by spec section 7's taxonomy kinds.
const (
	// Connection-lifecycle errors (kind 2).
	CodeExtensionNeverConnected = "extension_not_connected"
	CodeExtensionDisconnected   = "extension_disconnected"
	CodeRelayUnreachable        = "relay_unreachable"

	// Command errors (kind 3).
	CodeCommandTimeout = "command_timeout"
	CodeUnknownTool    = "unknown_tool"
	CodeInvalidParams  = "invalid_params"

	// Reference errors (kind 4).
	CodeStaleReference   = "stale_reference"
	CodeUnknownReference = "unknown_reference"

	// Target errors (kind 5).
	CodeTypeMismatch      = "type_mismatch"
	CodeOptionNotFound    = "option_not_found"
	CodeUnsupportedTarget = "unsupported_target"

	// Evaluate errors (kind 6).
	CodeEvaluateThrew    = "evaluate_threw"
	CodeEvaluateTimeout  = "evaluate_timeout"
	CodeEvaluateNotAFunc = "evaluate_not_a_function"

	// Internal errors.
	CodeInternal = "internal_error"
)

// Structured is embedded in MCP error content. Every field is
// self-describing: an LLM can decide to retry (and how long to wait)
// without a side lookup table.
type Structured struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable"`
	RetryAfterMs int    `json:"retry_after_ms,omitempty"`
	Hint         string `json:"hint,omitempty"`
}

// Option mutates a Structured error before it is serialized.
type Option func(*Structured)

// WithHint attaches a human-actionable hint.
func WithHint(h string) Option {
	return func(s *Structured) { s.Hint = h }
}

// WithRetryAfterMs overrides the suggested retry delay.
func WithRetryAfterMs(ms int) Option {
	return func(s *Structured) { s.RetryAfterMs = ms }
}

// retryDefaults mirrors the teacher's RetryDefaultsForCode: most codes
// are not retryable until the caller changes something (a fresh
// snapshot, corrected params); timeouts and connection hiccups are
// retryable after a short, code-specific delay.
func retryDefaults(code string) (retryable bool, afterMs int) {
	switch code {
	case CodeCommandTimeout, CodeEvaluateTimeout:
		return true, 1000
	case CodeExtensionDisconnected, CodeRelayUnreachable:
		return true, 2000
	default:
		return false, 0
	}
}

// New builds a Structured error for code with its kind-appropriate
// retry defaults, then applies opts.
func New(code, message string, opts ...Option) Structured {
	retryable, afterMs := retryDefaults(code)
	s := Structured{Error: code, Message: message, Retryable: retryable, RetryAfterMs: afterMs}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Text renders a Structured error as the text MCP content block body:
// a human-readable line followed by the machine-readable JSON.
func (s Structured) Text() string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return "Error: " + s.Error + " — " + s.Message
	}
	return "Error: " + s.Error + " — " + s.Message + "\n" + string(encoded)
}

// Encode renders s as bare JSON, for carrying a Structured error
// through command.Response.Error (a plain string field) across the
// broker/relay wire without losing its code.
func Encode(s Structured) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return s.Error + ": " + s.Message
	}
	return string(encoded)
}

// Decode attempts to parse raw as a Structured error previously built
// by Encode. It returns ok=false for plain-text errors (e.g. broker
// transport failures), which the caller should wrap with New instead.
func Decode(raw string) (s Structured, ok bool) {
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Error == "" {
		return Structured{}, false
	}
	return s, true
}
