package browserdriver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/disintegration/imaging"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

type screenshotParams struct {
	Type     string `json:"type"`
	FullPage bool   `json:"fullPage"`
	Ref      string `json:"ref"`
}

type screenshotResult struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// handleScreenshot captures the active tab, a single element, or the
// full scrollable page. Full-page capture tiles the viewport down the
// page's scroll height and stitches the tiles with
// disintegration/imaging, grounded in the browser-agent example's use
// of the same library for screenshot post-processing (there, resizing
// a single capture; here, compositing several).
func (d *Driver) handleScreenshot(raw json.RawMessage) (any, error) {
	var p screenshotParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	format := proto.PageCaptureScreenshotFormatPng
	mimeType := "image/png"
	if p.Type == "jpeg" {
		format = proto.PageCaptureScreenshotFormatJpeg
		mimeType = "image/jpeg"
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	if p.Ref != "" {
		el, rerr := d.resolveRef(t, p.Ref)
		if rerr != nil {
			return nil, rerr
		}
		data, serr := el.Screenshot(format, 90)
		if serr != nil {
			return nil, fmt.Errorf("browserdriver: element screenshot: %w", serr)
		}
		return screenshotResult{Data: base64.StdEncoding.EncodeToString(data), MimeType: mimeType}, nil
	}

	if !p.FullPage {
		data, serr := t.page.Screenshot(false, &proto.PageCaptureScreenshot{Format: format, Quality: gson.Int(90)})
		if serr != nil {
			return nil, fmt.Errorf("browserdriver: screenshot: %w", serr)
		}
		return screenshotResult{Data: base64.StdEncoding.EncodeToString(data), MimeType: mimeType}, nil
	}

	stitched, err := d.fullPageScreenshot(t, format)
	if err != nil {
		return nil, err
	}
	encoded, err := imageToBase64PNG(stitched)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: encoding stitched screenshot: %w", err)
	}
	if p.Type == "jpeg" {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, stitched, imaging.JPEG); err != nil {
			return nil, fmt.Errorf("browserdriver: jpeg-encoding stitched screenshot: %w", err)
		}
		return screenshotResult{Data: base64.StdEncoding.EncodeToString(buf.Bytes()), MimeType: mimeType}, nil
	}
	return screenshotResult{Data: encoded, MimeType: mimeType}, nil
}

// fullPageScreenshot scrolls the page one viewport height at a time,
// capturing tiles top-to-bottom and pasting each at the scroll offset
// the page actually reached (the browser clamps the last scroll, so the
// final tile overlaps the one before it). CDP can capture beyond the
// viewport directly via Page.captureScreenshot's clip; tiling keeps
// each capture to one viewport, though the stitched canvas still holds
// the whole page.
func (d *Driver) fullPageScreenshot(t *tab, format proto.PageCaptureScreenshotFormat) (image.Image, error) {
	metrics, err := proto.PageGetLayoutMetrics{}.Call(t.page)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: reading layout metrics: %w", err)
	}
	viewportHeight := int(metrics.LayoutViewport.ClientHeight)
	totalHeight := int(metrics.CSSContentSize.Height)
	width := int(metrics.CSSContentSize.Width)
	if viewportHeight <= 0 || totalHeight <= 0 || width <= 0 {
		return nil, target(mcperr.CodeInternal, "unable to read page dimensions for full-page screenshot")
	}

	var tiles []image.Image
	var offsets []int
	for y := 0; y < totalHeight; y += viewportHeight {
		scrolled, err := t.page.Eval(fmt.Sprintf("() => { window.scrollTo(0, %d); return window.scrollY }", y))
		if err != nil {
			return nil, fmt.Errorf("browserdriver: scrolling for tile: %w", err)
		}
		data, serr := t.page.Screenshot(false, &proto.PageCaptureScreenshot{Format: format, Quality: gson.Int(90)})
		if serr != nil {
			return nil, fmt.Errorf("browserdriver: capturing tile: %w", serr)
		}
		tile, _, derr := image.Decode(bytes.NewReader(data))
		if derr != nil {
			return nil, fmt.Errorf("browserdriver: decoding tile: %w", derr)
		}
		tiles = append(tiles, tile)
		offsets = append(offsets, scrolled.Value.Int())
	}
	if _, err := t.page.Eval("() => window.scrollTo(0, 0)"); err != nil {
		return nil, fmt.Errorf("browserdriver: resetting scroll: %w", err)
	}

	canvas := imaging.New(width, totalHeight, color.White)
	for i, tile := range tiles {
		canvas = imaging.Paste(canvas, tile, image.Pt(0, offsets[i]))
	}
	return canvas, nil
}
