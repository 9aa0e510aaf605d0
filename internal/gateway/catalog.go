package gateway

import (
	"encoding/json"

	"github.com/Lemon9247/agentfox/internal/command"
)

// Tool is one entry in the static MCP tool catalog: a name and
// description for the agent, a JSON-Schema for its parameters, the
// command action it maps to, and a formatter that turns the raw
// command result into MCP content.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Action      command.Action
	Format      func(result json.RawMessage) json.RawMessage
}

func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any    { return map[string]any{"type": "string", "description": desc} }
func integer(desc string) map[string]any { return map[string]any{"type": "integer", "description": desc} }
func boolean(desc string) map[string]any { return map[string]any{"type": "boolean", "description": desc} }
func array(items map[string]any, desc string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": desc}
}
func object(desc string) map[string]any { return map[string]any{"type": "object", "description": desc} }

// Catalog returns the closed tool catalog of spec section 6, keyed by
// tool name. Every entry's Format defaults to formatDefault (the result
// as one pretty-printed JSON text block) unless the action's result
// needs special handling (screenshot returns an image block).
func Catalog() map[string]*Tool {
	tools := []*Tool{
		{
			Name:        "navigate",
			Description: "Navigate the active tab to a URL and wait for the page to finish loading.",
			InputSchema: schema(map[string]any{"url": str("Absolute URL to load")}, "url"),
			Action:      command.Navigate,
		},
		{
			Name:        "navigate_back",
			Description: "Go back to the previous page in the active tab's history.",
			InputSchema: schema(nil),
			Action:      command.NavigateBack,
		},
		{
			Name:        "snapshot",
			Description: "Capture an accessibility-tree snapshot of the active page, with element references usable by click/type/hover/etc.",
			InputSchema: schema(nil),
			Action:      command.Snapshot,
		},
		{
			Name: "screenshot",
			Description: "Capture a screenshot of the active tab or a single element.",
			InputSchema: schema(map[string]any{
				"type":     str("png or jpeg (default png)"),
				"fullPage": boolean("Capture the full scrollable page instead of the viewport"),
				"ref":      str("Element reference to screenshot instead of the whole page"),
			}),
			Action: command.Screenshot,
			Format: formatScreenshot,
		},
		{
			Name: "click",
			Description: "Click an element identified by a snapshot reference.",
			InputSchema: schema(map[string]any{
				"ref":         str("Element reference from the latest snapshot"),
				"button":      str("left, right, or middle (default left)"),
				"modifiers":   array(str("ctrl, alt, shift, or meta"), "Modifier keys held during the click"),
				"doubleClick": boolean("Dispatch a double-click instead of a single click"),
			}, "ref"),
			Action: command.Click,
		},
		{
			Name: "type",
			Description: "Type text into an element identified by a snapshot reference.",
			InputSchema: schema(map[string]any{
				"ref":     str("Element reference from the latest snapshot"),
				"text":    str("Text to type"),
				"submit":  boolean("Press Enter / submit the form after typing"),
				"slowly":  boolean("Type one character at a time instead of setting the value directly"),
			}, "ref", "text"),
			Action: command.Type,
		},
		{
			Name:        "press_key",
			Description: "Press a single key on the currently focused element.",
			InputSchema: schema(map[string]any{"key": str("Key name, e.g. Enter, Tab, ArrowDown, a")}, "key"),
			Action:      command.PressKey,
		},
		{
			Name:        "hover",
			Description: "Move the pointer over an element identified by a snapshot reference.",
			InputSchema: schema(map[string]any{"ref": str("Element reference from the latest snapshot")}, "ref"),
			Action:      command.Hover,
		},
		{
			Name: "fill_form",
			Description: "Fill multiple form fields in one batch; per-field errors are collected and do not abort the rest.",
			InputSchema: schema(map[string]any{
				"fields": array(object("One field: {ref, name, type, value}"), "Fields to fill"),
			}, "fields"),
			Action: command.FillForm,
		},
		{
			Name:        "select_option",
			Description: "Select one or more options in a <select> element identified by a snapshot reference.",
			InputSchema: schema(map[string]any{
				"ref":    str("Element reference from the latest snapshot"),
				"values": array(str("Option text or value"), "Values to select"),
			}, "ref", "values"),
			Action: command.SelectOption,
		},
		{
			Name: "evaluate",
			Description: "Evaluate a JavaScript function in the page's main world, optionally scoped to an element reference.",
			InputSchema: schema(map[string]any{
				"function": str("Arrow function source, e.g. () => document.title"),
				"ref":      str("Element reference to pass as the function's argument"),
			}, "function"),
			Action: command.Evaluate,
		},
		{
			Name: "wait_for",
			Description: "Wait for text to appear or disappear, or simply wait a number of seconds.",
			InputSchema: schema(map[string]any{
				"text":     str("Wait until this text appears in the page"),
				"textGone": str("Wait until this text disappears from the page"),
				"time":     integer("Seconds to wait / overall timeout"),
			}),
			Action: command.WaitFor,
		},
		{
			Name: "tabs",
			Description: "List, open, close, or select browser tabs.",
			InputSchema: schema(map[string]any{
				"action": str("list, new, close, or select"),
				"index":  integer("Tab index, for close/select"),
			}, "action"),
			Action: command.Tabs,
		},
		{
			Name:        "close",
			Description: "Close the active tab.",
			InputSchema: schema(nil),
			Action:      command.Close,
		},
		{
			Name:        "resize",
			Description: "Resize the active tab's viewport.",
			InputSchema: schema(map[string]any{"width": integer("Width in pixels"), "height": integer("Height in pixels")}, "width", "height"),
			Action:      command.Resize,
		},
		{
			Name:        "get_cookies",
			Description: "Read cookies, optionally scoped to a URL.",
			InputSchema: schema(map[string]any{"url": str("Restrict to cookies visible to this URL")}),
			Action:      command.GetCookies,
		},
		{
			Name:        "get_bookmarks",
			Description: "Search the browser's bookmarks.",
			InputSchema: schema(map[string]any{"query": str("Search query")}),
			Action:      command.GetBookmarks,
		},
		{
			Name:        "get_history",
			Description: "Search browser history.",
			InputSchema: schema(map[string]any{
				"query":      str("Search query"),
				"maxResults": integer("Maximum number of results"),
				"startTime":  integer("Unix millis lower bound"),
				"endTime":    integer("Unix millis upper bound"),
			}),
			Action: command.GetHistory,
		},
		{
			Name:        "network_requests",
			Description: "Start, stop, read, or clear network request recording for the active tab.",
			InputSchema: schema(map[string]any{
				"action": str("start, stop, get, or clear"),
				"filter": str("Substring filter over request URLs"),
			}, "action"),
			Action: command.NetworkRequests,
		},
		{
			Name:        "save_pdf",
			Description: "Render the active tab as a PDF, with optional header/footer text. Works only when the browser runs headless; the rendered PDF is neither written to a file nor returned.",
			InputSchema: schema(map[string]any{
				"headerText": str("Header text"),
				"footerText": str("Footer text"),
			}),
			Action: command.SavePDF,
		},
		{
			Name: "page_content",
			Description: "Extract trimmed, whitespace-normalized text from the page or a CSS selector.",
			InputSchema: schema(map[string]any{"selector": str("Optional CSS selector to scope extraction")}),
			Action:       command.PageContent,
		},
	}

	byName := make(map[string]*Tool, len(tools))
	for _, t := range tools {
		if t.Format == nil {
			t.Format = formatDefault
		}
		byName[t.Name] = t
	}
	return byName
}
