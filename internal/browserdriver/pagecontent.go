package browserdriver

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

type pageContentParams struct {
	Selector string `json:"selector"`
}

type pageContentResult struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

func (d *Driver) handlePageContent(raw json.RawMessage) (any, error) {
	var p pageContentParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	selector := p.Selector
	if selector == "" {
		selector = "body"
	}
	el, err := t.page.Timeout(defaultEvaluateTimeout).Element(selector)
	if err != nil {
		return nil, target(mcperr.CodeUnknownReference, fmt.Sprintf("no element matches selector %q", selector))
	}
	text, err := el.Text()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading text: %w", err)
	}

	info, err := t.page.Info()
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading page info: %w", err)
	}

	normalized := whitespaceRun.ReplaceAllString(text, " ")
	return pageContentResult{Text: trimTo(normalized, 1<<20), URL: info.URL, Title: info.Title}, nil
}
