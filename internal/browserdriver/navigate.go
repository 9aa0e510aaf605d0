package browserdriver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
)

const defaultNavigateTimeout = 30 * time.Second

type navigateParams struct {
	URL string `json:"url"`
}

type navigateResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

func (d *Driver) handleNavigate(raw json.RawMessage) (any, error) {
	var p navigateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.URL == "" {
		return nil, target(mcperr.CodeInvalidParams, "url is required")
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	if err := t.page.Navigate(p.URL); err != nil {
		return nil, fmt.Errorf("browserdriver: navigate: %w", err)
	}
	if err := waitForComplete(t, defaultNavigateTimeout); err != nil {
		return nil, err
	}

	info, err := t.page.Info()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading page info: %w", err)
	}
	return navigateResult{URL: info.URL, Title: info.Title}, nil
}

func (d *Driver) handleNavigateBack() (any, error) {
	t, err := d.active()
	if err != nil {
		return nil, err
	}

	before, err := t.page.Info()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading page info: %w", err)
	}

	if err := t.page.NavigateBack(); err != nil {
		return nil, fmt.Errorf("browserdriver: navigate back: %w", err)
	}

	// Probe briefly: if there is no history entry to go back to, the
	// URL will not change and the tab is already complete, so waiting
	// for a "navigation happened" event would hang forever.
	time.Sleep(150 * time.Millisecond)
	after, err := t.page.Info()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading page info: %w", err)
	}
	if after.URL == before.URL {
		return navigateResult{URL: after.URL, Title: after.Title}, nil
	}

	if err := waitForComplete(t, defaultNavigateTimeout); err != nil {
		return nil, err
	}
	info, err := t.page.Info()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading page info: %w", err)
	}
	return navigateResult{URL: info.URL, Title: info.Title}, nil
}

// waitForComplete blocks until the tab finishes loading or timeout
// elapses, surfacing a distinct error if the tab is closed out from
// under the wait instead of a generic timeout.
func waitForComplete(t *tab, timeout time.Duration) error {
	err := t.page.Timeout(timeout).WaitLoad()
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "closed") {
		return target(mcperr.CodeInternal, "tab closed during navigation")
	}
	return target(mcperr.CodeCommandTimeout, fmt.Sprintf("navigation did not complete within %s", timeout))
}
