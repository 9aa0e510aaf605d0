package browserdriver

import (
	"encoding/json"
	"fmt"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/go-rod/rod"
)

type formField struct {
	Ref   string `json:"ref"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type fillFormParams struct {
	Fields []formField `json:"fields"`
}

type fillFormResult struct {
	FilledCount int      `json:"filledCount"`
	Errors      []string `json:"errors,omitempty"`
}

// handleFillForm fills every field independently: one field's type
// mismatch or stale reference is recorded as a per-field error and
// does not stop the rest from being attempted, matching spec section
// 6's {filledCount, errors?} result shape.
func (d *Driver) handleFillForm(raw json.RawMessage) (any, error) {
	var p fillFormParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Fields) == 0 {
		return nil, target(mcperr.CodeInvalidParams, "fields must be non-empty")
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	result := fillFormResult{}
	for _, f := range p.Fields {
		if err := d.fillOneField(t, f); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		result.FilledCount++
	}
	return result, nil
}

// elementKind describes the minimum of an element a type check needs:
// its tag name and, for INPUT elements, its type attribute.
type elementKind struct {
	Tag       string `json:"tag"`
	InputType string `json:"inputType"`
}

func inspectElement(el *rod.Element) (elementKind, error) {
	value, err := el.Eval(`() => ({tag: this.tagName, inputType: (this.getAttribute('type') || '').toLowerCase()})`)
	if err != nil {
		return elementKind{}, fmt.Errorf("browserdriver: inspecting element: %w", err)
	}
	raw, err := json.Marshal(value.Value)
	if err != nil {
		return elementKind{}, fmt.Errorf("browserdriver: inspecting element: %w", err)
	}
	var kind elementKind
	if err := json.Unmarshal(raw, &kind); err != nil {
		return elementKind{}, fmt.Errorf("browserdriver: inspecting element: %w", err)
	}
	return kind, nil
}

var checkableInputTypes = map[string]bool{"checkbox": true, "radio": true}

// checkFieldType validates that the resolved element actually matches
// the field type the caller declared, per spec section 7.5's
// type_mismatch taxonomy entry — a field type is a claim about the
// element, not an instruction blindly trusted.
func checkFieldType(kind elementKind, fieldType string) error {
	switch fieldType {
	case "checkbox", "radio":
		if kind.Tag != "INPUT" || !checkableInputTypes[kind.InputType] {
			return target(mcperr.CodeTypeMismatch, fmt.Sprintf("expected a %s input, got tag=%s type=%q", fieldType, kind.Tag, kind.InputType))
		}
	case "combobox":
		if kind.Tag != "SELECT" {
			return target(mcperr.CodeTypeMismatch, fmt.Sprintf("expected a select element, got tag=%s", kind.Tag))
		}
	case "slider":
		if kind.Tag != "INPUT" || kind.InputType != "range" {
			return target(mcperr.CodeTypeMismatch, fmt.Sprintf("expected a range input, got tag=%s type=%q", kind.Tag, kind.InputType))
		}
	case "textbox":
		if kind.Tag != "INPUT" && kind.Tag != "TEXTAREA" {
			return target(mcperr.CodeTypeMismatch, fmt.Sprintf("expected an input or textarea, got tag=%s", kind.Tag))
		}
	default:
		return fmt.Errorf("unsupported field type %q", fieldType)
	}
	return nil
}

func (d *Driver) fillOneField(t *tab, f formField) error {
	el, err := d.resolveRef(t, f.Ref)
	if err != nil {
		return err
	}

	kind, err := inspectElement(el)
	if err != nil {
		return err
	}
	if err := checkFieldType(kind, f.Type); err != nil {
		return err
	}

	switch f.Type {
	case "checkbox", "radio":
		checked, cerr := el.Property("checked")
		if cerr == nil && checked.Bool() == (f.Value == "true") {
			return nil
		}
		return el.Click(mouseButtons["left"], 1)
	case "combobox":
		_, serr := selectByTextOrValue(el, []string{f.Value})
		return serr
	case "slider", "textbox":
		return el.Input(f.Value)
	default:
		return fmt.Errorf("unsupported field type %q", f.Type)
	}
}

type selectOptionInfo struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

func listOptions(el *rod.Element) ([]selectOptionInfo, error) {
	value, err := el.Eval(`() => Array.from(this.options).map(o => ({text: o.text, value: o.value}))`)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: listing options: %w", err)
	}
	raw, err := json.Marshal(value.Value)
	if err != nil {
		return nil, fmt.Errorf("browserdriver: listing options: %w", err)
	}
	var opts []selectOptionInfo
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("browserdriver: listing options: %w", err)
	}
	return opts, nil
}

// selectByTextOrValue matches spec section 4.E's "match by option text
// content first, else by option value": every requested value is
// resolved against each option's visible text first, falling back to
// its value attribute, and the whole resolved set of option texts is
// applied in a single Select call so a multi-select's selections don't
// clobber each other across separate calls.
func selectByTextOrValue(el *rod.Element, values []string) ([]string, error) {
	opts, err := listOptions(el)
	if err != nil {
		return nil, err
	}

	var texts []string
	var notFound []string
	for _, v := range values {
		matched := false
		for _, o := range opts {
			if o.Text == v {
				texts = append(texts, o.Text)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		for _, o := range opts {
			if o.Value == v {
				texts = append(texts, o.Text)
				matched = true
				break
			}
		}
		if !matched {
			notFound = append(notFound, v)
		}
	}
	if len(notFound) > 0 {
		return notFound, fmt.Errorf("option(s) %v not found by text or value", notFound)
	}
	return nil, el.Select(texts, true, rod.SelectorTypeText)
}

type selectOptionParams struct {
	Ref    string   `json:"ref"`
	Values []string `json:"values"`
}

type selectOptionResult struct {
	Selected []string `json:"selected"`
}

func (d *Driver) handleSelectOption(raw json.RawMessage) (any, error) {
	var p selectOptionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Values) == 0 {
		return nil, target(mcperr.CodeInvalidParams, "values must be non-empty")
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}
	el, err := d.resolveRef(t, p.Ref)
	if err != nil {
		return nil, err
	}

	if notFound, err := selectByTextOrValue(el, p.Values); err != nil {
		return nil, target(mcperr.CodeOptionNotFound, fmt.Sprintf("option(s) %v not found by text or value", notFound))
	}
	return selectOptionResult{Selected: p.Values}, nil
}
