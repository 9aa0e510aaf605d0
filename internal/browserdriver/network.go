package browserdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/go-rod/rod/lib/proto"
)

type networkRequestsParams struct {
	Action string `json:"action"`
	Filter string `json:"filter"`
}

type networkRequestsResult struct {
	Recording bool             `json:"recording,omitempty"`
	Count     int              `json:"count,omitempty"`
	Requests  []networkRequest `json:"requests,omitempty"`
}

// handleNetworkRequests starts or stops capturing outgoing requests on
// the active tab, or reads back what's been captured so far. Capture
// is driven by subscribing to Network.requestWillBeSent from "start"
// until "stop" rather than polling, since CDP pushes these events as
// they happen.
func (d *Driver) handleNetworkRequests(raw json.RawMessage) (any, error) {
	var p networkRequestsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	switch p.Action {
	case "start":
		return d.networkStart(t, p.Filter)
	case "stop":
		return d.networkStop(t)
	case "get":
		return d.networkGet(t)
	case "clear":
		return d.networkClear(t)
	default:
		return nil, target(mcperr.CodeInvalidParams, fmt.Sprintf("unknown network_requests action %q", p.Action))
	}
}

func (d *Driver) networkStart(t *tab, filter string) (any, error) {
	t.netMu.Lock()
	if t.recording {
		t.netMu.Unlock()
		return networkRequestsResult{Recording: true}, nil
	}
	t.recording = true
	t.requests = nil
	ctx, cancel := context.WithCancel(context.Background())
	t.netCancel = cancel
	t.netMu.Unlock()

	page := t.page.Context(ctx)
	go page.EachEvent(func(e *proto.NetworkRequestWillBeSent) {
		if filter != "" && !strings.Contains(e.Request.URL, filter) {
			return
		}
		t.netMu.Lock()
		t.requests = append(t.requests, networkRequest{
			URL:       e.Request.URL,
			Method:    e.Request.Method,
			Timestamp: time.Now().UnixMilli(),
		})
		t.netMu.Unlock()
	})()

	return networkRequestsResult{Recording: true}, nil
}

func (d *Driver) networkStop(t *tab) (any, error) {
	t.netMu.Lock()
	defer t.netMu.Unlock()
	if t.netCancel != nil {
		t.netCancel()
		t.netCancel = nil
	}
	t.recording = false
	return networkRequestsResult{Recording: false, Count: len(t.requests)}, nil
}

func (d *Driver) networkGet(t *tab) (any, error) {
	t.netMu.Lock()
	defer t.netMu.Unlock()
	requests := make([]networkRequest, len(t.requests))
	copy(requests, t.requests)
	return networkRequestsResult{Recording: t.recording, Requests: requests, Count: len(requests)}, nil
}

func (d *Driver) networkClear(t *tab) (any, error) {
	t.netMu.Lock()
	defer t.netMu.Unlock()
	t.requests = nil
	return networkRequestsResult{Recording: t.recording, Count: 0}, nil
}
