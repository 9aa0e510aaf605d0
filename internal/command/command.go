// Package command defines the wire-level data model shared by the
// broker, relay, gateway, and browser driver: the tagged Command and
// CommandResponse records, the IPC envelope, and the closed action
// enumeration of spec section 6.
package command

import "encoding/json"

// Action is the closed enumeration of browser operations a Command may
// carry. Downstream switches over Action should be exhaustive.
type Action string

const (
	Navigate        Action = "navigate"
	NavigateBack    Action = "navigate_back"
	Snapshot        Action = "snapshot"
	Screenshot      Action = "screenshot"
	Click           Action = "click"
	Type            Action = "type"
	PressKey        Action = "press_key"
	Hover           Action = "hover"
	FillForm        Action = "fill_form"
	SelectOption    Action = "select_option"
	Evaluate        Action = "evaluate"
	WaitFor         Action = "wait_for"
	Tabs            Action = "tabs"
	Close           Action = "close"
	Resize          Action = "resize"
	GetCookies      Action = "get_cookies"
	GetBookmarks    Action = "get_bookmarks"
	GetHistory      Action = "get_history"
	NetworkRequests Action = "network_requests"
	SavePDF         Action = "save_pdf"
	PageContent     Action = "page_content"
)

// browserAPIActions are executed directly against browser APIs by the
// background-equivalent process (spec 4.E); every other action is a
// page-interaction command forwarded to the content-equivalent context.
var browserAPIActions = map[Action]bool{
	Navigate:        true,
	NavigateBack:    true,
	Screenshot:      true,
	Tabs:            true,
	Close:           true,
	Resize:          true,
	SavePDF:         true,
	GetCookies:      true,
	GetBookmarks:    true,
	GetHistory:      true,
	NetworkRequests: true,
}

// IsBrowserAPI reports whether a lives against the dispatcher's own
// browser APIs rather than needing a content context.
func (a Action) IsBrowserAPI() bool {
	return browserAPIActions[a]
}

// Command is a tagged request flowing from the MCP gateway toward the
// browser. ID is the correlation ID the caller assigns; it must be
// unique among commands currently pending on the broker.
type Command struct {
	ID     string          `json:"id"`
	Action Action          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response carries exactly one of Result or Error, matching the ID of
// the Command it answers. Responses may arrive out of order relative
// to submission.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EnvelopeKind tags the four shapes that cross the wire between the
// broker and its one attached client (relay, or in tests, a fake).
type EnvelopeKind string

const (
	KindCommand  EnvelopeKind = "command"
	KindResponse EnvelopeKind = "response"
	KindPing     EnvelopeKind = "ping"
	KindPong     EnvelopeKind = "pong"
)

// Envelope is the outermost frame payload: exactly one of Command or
// Response is populated, selected by Kind; ping/pong carry neither.
type Envelope struct {
	Kind     EnvelopeKind `json:"kind"`
	Command  *Command     `json:"command,omitempty"`
	Response *Response    `json:"response,omitempty"`
}

// Marshal encodes e as JSON. Errors are not expected: Envelope is a
// plain struct of JSON-safe fields.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes data into an Envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}
