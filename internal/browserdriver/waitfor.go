package browserdriver

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
)

const (
	defaultWaitForTimeout = 30 * time.Second
	waitForPollInterval   = 100 * time.Millisecond
)

type waitForParams struct {
	Text     string `json:"text"`
	TextGone string `json:"textGone"`
	Time     int    `json:"time"`
}

type waitForResult struct {
	Matched bool `json:"matched"`
}

// handleWaitFor polls the document body's text at a 100ms cadence —
// standing in for the spec's debounced MutationObserver, which Go
// cannot attach to directly — until the requested condition holds or
// the overall timeout (Time, default 30s) expires.
func (d *Driver) handleWaitFor(raw json.RawMessage) (any, error) {
	var p waitForParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Text == "" && p.TextGone == "" && p.Time == 0 {
		return nil, target(mcperr.CodeInvalidParams, "at least one of text, textGone, or time is required")
	}

	timeout := defaultWaitForTimeout
	if p.Time > 0 {
		timeout = time.Duration(p.Time) * time.Second
	}

	if p.Text == "" && p.TextGone == "" {
		time.Sleep(timeout)
		return waitForResult{Matched: true}, nil
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		body, berr := t.page.Timeout(2 * time.Second).Element("body")
		if berr == nil {
			text, terr := body.Text()
			if terr == nil {
				if p.Text != "" && strings.Contains(text, p.Text) {
					return waitForResult{Matched: true}, nil
				}
				if p.TextGone != "" && !strings.Contains(text, p.TextGone) {
					return waitForResult{Matched: true}, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return waitForResult{Matched: false}, nil
		}
		time.Sleep(waitForPollInterval)
	}
}
