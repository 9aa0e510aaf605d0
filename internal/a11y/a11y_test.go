package a11y

import (
	"strings"
	"testing"
)

func TestBuildScriptEmbedsGeneration(t *testing.T) {
	script := BuildScript(7)
	if !strings.Contains(script, "GENERATION = 7;") {
		t.Fatalf("script does not embed generation 7:\n%s", script[:200])
	}
}

func TestParseSnapshotDecodesTreeShape(t *testing.T) {
	raw := []byte(`{
		"root": {
			"role": "document",
			"name": "Example",
			"children": [
				{"role": "heading", "name": "Welcome", "level": 1},
				{"role": "button", "name": "Submit", "ref": "e0"}
			]
		},
		"generation": 3,
		"nodeCount": 4,
		"truncated": false
	}`)

	snap, err := ParseSnapshot(raw)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if snap.Root.Role != "document" || snap.Root.Name != "Example" {
		t.Fatalf("root = %+v", snap.Root)
	}
	if len(snap.Root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(snap.Root.Children))
	}
	heading := snap.Root.Children[0]
	if heading.Level == nil || *heading.Level != 1 {
		t.Fatalf("heading level = %v, want 1", heading.Level)
	}
	button := snap.Root.Children[1]
	if button.Ref != "e0" {
		t.Fatalf("button ref = %q, want e0", button.Ref)
	}
	if snap.Generation != 3 {
		t.Fatalf("generation = %d, want 3", snap.Generation)
	}
}

func TestParseSnapshotRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseSnapshot([]byte("not json")); err == nil {
		t.Fatal("expected error decoding malformed snapshot")
	}
}

func TestRefSelectorIncludesRefAndGeneration(t *testing.T) {
	sel := RefSelector("e12", 5)
	if !strings.Contains(sel, `"e12"`) || !strings.Contains(sel, `"5"`) {
		t.Fatalf("selector missing ref or generation: %s", sel)
	}
}
