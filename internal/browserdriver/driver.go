// Package browserdriver realizes spec section 4.E's dispatcher against
// a real browser through go-rod/CDP: browser-API commands (navigate,
// tabs, screenshot, ...) call rod/proto directly, and page-interaction
// commands (click, type, snapshot, ...) either call rod's element
// methods or evaluate internal/a11y's generated JavaScript in-page.
//
// Grounded in the pack's browser-agent example
// (internal/infrastructure/browser/rod/adapter.go): launcher
// construction, Navigate/Click/Screenshot all follow that file's
// shape, generalized from a single fixed page to the multi-tab,
// multi-action surface spec section 6 requires.
package browserdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	"github.com/Lemon9247/agentfox/internal/a11y"
	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config configures the launched browser.
type Config struct {
	BrowserBinary string
	Headless      bool
	NavigateWait  time.Duration
}

// Driver owns the rod.Browser, the tab list, and the per-driver
// snapshot generation counter. Exactly one tab is "active" at a time,
// matching spec section 4.E's single-active-tab model.
type Driver struct {
	log      *zap.SugaredLogger
	headless bool

	browser  *rod.Browser
	launcher *launcher.Launcher

	mu         sync.Mutex
	tabs       []*tab
	activeIdx  int
	generation int
}

type tab struct {
	page *rod.Page

	netMu      sync.Mutex
	recording  bool
	requests   []networkRequest
	netCancel  context.CancelFunc
}

type networkRequest struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	Timestamp int64  `json:"timestampMs"`
}

// New launches a new browser process (cfg.BrowserBinary when set,
// otherwise whichever binary rod's launcher locates) and opens an
// initial blank tab. It never attaches to an already-running browser.
func New(cfg Config, log *zap.SugaredLogger) (*Driver, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true)
	if cfg.BrowserBinary != "" {
		l = l.Bin(cfg.BrowserBinary)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("browserdriver: connecting to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browserdriver: opening initial tab: %w", err)
	}

	d := &Driver{
		log:      log,
		headless: cfg.Headless,
		browser:  browser,
		launcher: l,
		tabs:     []*tab{{page: page}},
	}
	return d, nil
}

// Close shuts down every tab and kills the browser process.
func (d *Driver) Close() {
	if d.browser != nil {
		_ = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
}

func (d *Driver) active() (*tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeIdx < 0 || d.activeIdx >= len(d.tabs) {
		return nil, fmt.Errorf("browserdriver: no active tab")
	}
	return d.tabs[d.activeIdx], nil
}

func (d *Driver) nextGeneration() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	return d.generation
}

func (d *Driver) currentGeneration() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

// Dispatch executes one command against the browser and returns the
// response the broker should relay back to the gateway. It never
// panics: every handler's error is converted into a success=false
// Response carrying an mcperr.Encode-d structured error string, per
// spec section 7's propagation policy ("the gateway never exposes raw
// protocol errors to the agent").
func (d *Driver) Dispatch(cmd command.Command) command.Response {
	result, err := d.dispatch(cmd)
	if err != nil {
		return command.Response{ID: cmd.ID, Success: false, Error: errString(err)}
	}
	encoded, merr := json.Marshal(result)
	if merr != nil {
		return command.Response{ID: cmd.ID, Success: false, Error: errString(fmt.Errorf("browserdriver: marshaling result: %w", merr))}
	}
	return command.Response{ID: cmd.ID, Success: true, Result: encoded}
}

// errString renders err as the Error string carried on the wire: a
// *structuredErr yields its mcperr.Encode form so the gateway can
// recover the original code; anything else falls back to its plain
// message and the gateway wraps it as an internal error.
func errString(err error) string {
	if se, ok := err.(*structuredErr); ok {
		return mcperr.Encode(se.s)
	}
	return err.Error()
}

// structuredErr carries an mcperr.Structured through the plain-error
// return path of dispatch's handlers.
type structuredErr struct{ s mcperr.Structured }

func (e *structuredErr) Error() string { return e.s.Message }

func target(code, message string) error {
	return &structuredErr{s: mcperr.New(code, message)}
}

func (d *Driver) dispatch(cmd command.Command) (any, error) {
	switch cmd.Action {
	case command.Navigate:
		return d.handleNavigate(cmd.Params)
	case command.NavigateBack:
		return d.handleNavigateBack()
	case command.Snapshot:
		return d.handleSnapshot()
	case command.Screenshot:
		return d.handleScreenshot(cmd.Params)
	case command.Click:
		return d.handleClick(cmd.Params)
	case command.Type:
		return d.handleType(cmd.Params)
	case command.PressKey:
		return d.handlePressKey(cmd.Params)
	case command.Hover:
		return d.handleHover(cmd.Params)
	case command.FillForm:
		return d.handleFillForm(cmd.Params)
	case command.SelectOption:
		return d.handleSelectOption(cmd.Params)
	case command.Evaluate:
		return d.handleEvaluate(cmd.Params)
	case command.WaitFor:
		return d.handleWaitFor(cmd.Params)
	case command.Tabs:
		return d.handleTabs(cmd.Params)
	case command.Close:
		return d.handleClose()
	case command.Resize:
		return d.handleResize(cmd.Params)
	case command.GetCookies:
		return d.handleGetCookies(cmd.Params)
	case command.GetBookmarks:
		return nil, target(mcperr.CodeUnsupportedTarget, "get_bookmarks has no CDP equivalent; it requires an extension with the bookmarks permission")
	case command.GetHistory:
		return nil, target(mcperr.CodeUnsupportedTarget, "get_history has no CDP equivalent; it requires an extension with the history permission")
	case command.NetworkRequests:
		return d.handleNetworkRequests(cmd.Params)
	case command.SavePDF:
		return d.handleSavePDF(cmd.Params)
	case command.PageContent:
		return d.handlePageContent(cmd.Params)
	default:
		return nil, target(mcperr.CodeUnknownTool, fmt.Sprintf("unrecognized action %q", cmd.Action))
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &structuredErr{s: mcperr.New(mcperr.CodeInvalidParams, err.Error())}
	}
	return nil
}

// resolveRef turns a snapshot reference back into a live *rod.Element.
// A reference assigned under a stale generation, or one whose element
// has left the document, fails with a distinct stale-reference error
// (spec section 3's reference map invariant).
func (d *Driver) resolveRef(t *tab, ref string) (*rod.Element, error) {
	if ref == "" {
		return nil, target(mcperr.CodeInvalidParams, "ref is required")
	}
	gen := d.currentGeneration()
	el, err := t.page.Timeout(2 * time.Second).Element(a11y.RefSelector(ref, gen))
	if err != nil {
		return nil, target(mcperr.CodeStaleReference, fmt.Sprintf("reference %q is stale or unknown; take a new snapshot", ref))
	}
	return el, nil
}

func imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func trimTo(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
