package browserdriver

import (
	"encoding/json"
	"fmt"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/go-rod/rod/lib/proto"
)

type tabsParams struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
}

type tabDesc struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

type tabsListResult struct {
	Tabs []tabDesc `json:"tabs"`
}

func (d *Driver) handleTabs(raw json.RawMessage) (any, error) {
	var p tabsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	switch p.Action {
	case "list":
		return d.tabsList()
	case "new":
		return d.tabsNew()
	case "close":
		return d.tabsClose(p.Index)
	case "select":
		return d.tabsSelect(p.Index)
	default:
		return nil, target(mcperr.CodeInvalidParams, fmt.Sprintf("unknown tabs action %q", p.Action))
	}
}

func (d *Driver) tabsList() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	descs := make([]tabDesc, 0, len(d.tabs))
	for i, t := range d.tabs {
		info, err := t.page.Info()
		if err != nil {
			continue
		}
		descs = append(descs, tabDesc{Index: i, Title: info.Title, URL: info.URL, Active: i == d.activeIdx})
	}
	return tabsListResult{Tabs: descs}, nil
}

func (d *Driver) tabsNew() (any, error) {
	page, err := d.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browserdriver: opening tab: %w", err)
	}

	d.mu.Lock()
	d.tabs = append(d.tabs, &tab{page: page})
	idx := len(d.tabs) - 1
	d.activeIdx = idx
	d.mu.Unlock()

	return tabDesc{Index: idx, Title: "", URL: "about:blank", Active: true}, nil
}

func (d *Driver) tabsClose(index int) (any, error) {
	d.mu.Lock()
	if index < 0 || index >= len(d.tabs) {
		d.mu.Unlock()
		return nil, target(mcperr.CodeInvalidParams, fmt.Sprintf("no tab at index %d", index))
	}
	closing := d.tabs[index]
	d.tabs = append(d.tabs[:index], d.tabs[index+1:]...)
	if d.activeIdx >= len(d.tabs) {
		d.activeIdx = len(d.tabs) - 1
	} else if d.activeIdx > index {
		d.activeIdx--
	}
	d.mu.Unlock()

	if closing.netCancel != nil {
		closing.netCancel()
	}
	if err := closing.page.Close(); err != nil {
		return nil, fmt.Errorf("browserdriver: closing tab: %w", err)
	}
	return struct{}{}, nil
}

func (d *Driver) tabsSelect(index int) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.tabs) {
		return nil, target(mcperr.CodeInvalidParams, fmt.Sprintf("no tab at index %d", index))
	}
	d.activeIdx = index

	info, err := d.tabs[index].page.Info()
	if err != nil {
		return tabDesc{Index: index, Active: true}, nil
	}
	return tabDesc{Index: index, Title: info.Title, URL: info.URL, Active: true}, nil
}

// handleClose closes the active tab, matching the top-level "close"
// action's simpler contract (no index; always targets the active tab).
func (d *Driver) handleClose() (any, error) {
	d.mu.Lock()
	idx := d.activeIdx
	d.mu.Unlock()
	return d.tabsClose(idx)
}
