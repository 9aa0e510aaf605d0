package browserdriver

import (
	"encoding/json"
	"fmt"

	"github.com/Lemon9247/agentfox/internal/a11y"
)

type snapshotResult struct {
	Tree  a11y.Node `json:"tree"`
	URL   string    `json:"url"`
	Title string    `json:"title"`
}

// handleSnapshot bumps the driver's generation counter, evaluates the
// tree-building script under that stamp, and returns the resulting
// tree alongside the page's current URL/title. Bumping the generation
// here — before the script runs — is what makes every reference from
// the previous snapshot unresolvable the instant this one starts (spec
// section 8: "after the next snapshot, every prior reference is absent
// from the map").
func (d *Driver) handleSnapshot() (any, error) {
	t, err := d.active()
	if err != nil {
		return nil, err
	}

	gen := d.nextGeneration()
	script := a11y.BuildScript(gen)

	res, err := t.page.Eval(script)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: evaluating snapshot script: %w", err)
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: marshaling snapshot result: %w", err)
	}
	snap, err := a11y.ParseSnapshot(raw)
	if err != nil {
		return nil, err
	}

	info, err := t.page.Info()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading page info: %w", err)
	}

	return snapshotResult{Tree: snap.Root, URL: info.URL, Title: info.Title}, nil
}
