package browserdriver

import (
	"encoding/json"
	"fmt"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/go-rod/rod/lib/proto"
)

type resizeParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d *Driver) handleResize(raw json.RawMessage) (any, error) {
	var p resizeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, target(mcperr.CodeInvalidParams, "width and height must be positive")
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}
	if err := t.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  p.Width,
		Height: p.Height,
	}); err != nil {
		return nil, fmt.Errorf("browserdriver: resize: %w", err)
	}
	return struct{}{}, nil
}

type getCookiesParams struct {
	URL string `json:"url"`
}

type cookieDesc struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
}

type getCookiesResult struct {
	Cookies []cookieDesc `json:"cookies"`
}

func (d *Driver) handleGetCookies(raw json.RawMessage) (any, error) {
	var p getCookiesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	var urls []string
	if p.URL != "" {
		urls = []string{p.URL}
	}
	cookies, err := t.page.Cookies(urls)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading cookies: %w", err)
	}

	descs := make([]cookieDesc, 0, len(cookies))
	for _, c := range cookies {
		descs = append(descs, cookieDesc{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Secure: c.Secure, HTTPOnly: c.HTTPOnly,
		})
	}
	return getCookiesResult{Cookies: descs}, nil
}

type savePDFParams struct {
	HeaderText string `json:"headerText"`
	FooterText string `json:"footerText"`
}

type savePDFResult struct {
	Saved  bool   `json:"saved"`
	Status string `json:"status"`
}

// handleSavePDF prints the active tab to PDF via CDP. Chrome's
// Page.printToPDF historically only works against a headless target;
// a browser launched with a visible window has no such target, which
// is the "unsupported platform" edge case spec section 7 names for
// this action.
func (d *Driver) handleSavePDF(raw json.RawMessage) (any, error) {
	var p savePDFParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if !d.headless {
		return nil, target(mcperr.CodeUnsupportedTarget, "save_pdf requires a headless browser instance")
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	req := &proto.PagePrintToPDF{
		DisplayHeaderFooter: p.HeaderText != "" || p.FooterText != "",
		HeaderTemplate:      wrapPDFTemplate(p.HeaderText),
		FooterTemplate:      wrapPDFTemplate(p.FooterText),
	}
	_, err = t.page.PDF(req)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: printing to pdf: %w", err)
	}
	return savePDFResult{Saved: true, Status: "ok"}, nil
}

func wrapPDFTemplate(text string) string {
	if text == "" {
		return ""
	}
	return "<span>" + text + "</span>"
}
