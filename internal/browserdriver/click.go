package browserdriver

import (
	"encoding/json"
	"fmt"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

type clickParams struct {
	Ref         string   `json:"ref"`
	Button      string   `json:"button"`
	Modifiers   []string `json:"modifiers"`
	DoubleClick bool     `json:"doubleClick"`
}

var mouseButtons = map[string]proto.InputMouseButton{
	"left":   proto.InputMouseButtonLeft,
	"right":  proto.InputMouseButtonRight,
	"middle": proto.InputMouseButtonMiddle,
}

var modifierKeys = map[string]input.Key{
	"ctrl":  input.ControlLeft,
	"alt":   input.AltLeft,
	"shift": input.ShiftLeft,
	"meta":  input.MetaLeft,
}

// holdModifiers presses down the requested modifier keys and returns a
// func that releases them, so a click (or any other action) can be
// dispatched with the right modifier state, the way a real ctrl/alt/
// shift/meta-click would arrive from the page.
func holdModifiers(t *tab, mods []string) (func(), error) {
	held := make([]input.Key, 0, len(mods))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = t.page.Keyboard.Release(held[i])
		}
	}
	for _, m := range mods {
		key, ok := modifierKeys[m]
		if !ok {
			release()
			return nil, target(mcperr.CodeInvalidParams, fmt.Sprintf("unknown modifier %q", m))
		}
		if err := t.page.Keyboard.Press(key); err != nil {
			release()
			return nil, fmt.Errorf("browserdriver: holding modifier %q: %w", m, err)
		}
		held = append(held, key)
	}
	return release, nil
}

func (d *Driver) handleClick(raw json.RawMessage) (any, error) {
	var p clickParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}
	el, err := d.resolveRef(t, p.Ref)
	if err != nil {
		return nil, err
	}

	btn := proto.InputMouseButtonLeft
	if p.Button != "" {
		mapped, ok := mouseButtons[p.Button]
		if !ok {
			return nil, target(mcperr.CodeInvalidParams, fmt.Sprintf("unknown button %q", p.Button))
		}
		btn = mapped
	}

	clicks := 1
	if p.DoubleClick {
		clicks = 2
	}

	release, err := holdModifiers(t, p.Modifiers)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := el.Click(btn, clicks); err != nil {
		return nil, fmt.Errorf("browserdriver: click: %w", err)
	}
	return struct{}{}, nil
}

func (d *Driver) handleHover(raw json.RawMessage) (any, error) {
	var p struct {
		Ref string `json:"ref"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}
	el, err := d.resolveRef(t, p.Ref)
	if err != nil {
		return nil, err
	}
	if err := el.Hover(); err != nil {
		return nil, fmt.Errorf("browserdriver: hover: %w", err)
	}
	return struct{}{}, nil
}

type typeParams struct {
	Ref    string `json:"ref"`
	Text   string `json:"text"`
	Submit bool   `json:"submit"`
	Slowly bool   `json:"slowly"`
}

func (d *Driver) handleType(raw json.RawMessage) (any, error) {
	var p typeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}
	el, err := d.resolveRef(t, p.Ref)
	if err != nil {
		return nil, err
	}

	if p.Slowly {
		if err := el.Input(""); err != nil {
			return nil, fmt.Errorf("browserdriver: clearing field: %w", err)
		}
		for _, r := range p.Text {
			if err := el.Type(input.Key(r)); err != nil {
				return nil, fmt.Errorf("browserdriver: typing: %w", err)
			}
		}
	} else {
		if err := el.Input(p.Text); err != nil {
			return nil, fmt.Errorf("browserdriver: setting value: %w", err)
		}
	}

	if p.Submit {
		if err := el.Type(input.Enter); err != nil {
			return nil, fmt.Errorf("browserdriver: submitting: %w", err)
		}
	}
	return struct{}{}, nil
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
}

func (d *Driver) handlePressKey(raw json.RawMessage) (any, error) {
	var p struct {
		Key string `json:"key"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Key == "" {
		return nil, target(mcperr.CodeInvalidParams, "key is required")
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	key, ok := namedKeys[p.Key]
	if !ok && len([]rune(p.Key)) == 1 {
		key = input.Key([]rune(p.Key)[0])
		ok = true
	}
	if !ok {
		return nil, target(mcperr.CodeInvalidParams, fmt.Sprintf("unrecognized key %q", p.Key))
	}

	if err := t.page.Keyboard.Type(key); err != nil {
		return nil, fmt.Errorf("browserdriver: press key: %w", err)
	}
	return struct{}{}, nil
}
