package command

import (
	"encoding/json"
	"testing"
)

func TestIsBrowserAPIPartitionsActions(t *testing.T) {
	browserAPI := []Action{Navigate, NavigateBack, Screenshot, Tabs, Close, Resize, SavePDF, GetCookies, GetBookmarks, GetHistory, NetworkRequests}
	for _, a := range browserAPI {
		if !a.IsBrowserAPI() {
			t.Errorf("%s: expected IsBrowserAPI() true", a)
		}
	}

	contentActions := []Action{Snapshot, Click, Type, PressKey, Hover, FillForm, SelectOption, Evaluate, WaitFor, PageContent}
	for _, a := range contentActions {
		if a.IsBrowserAPI() {
			t.Errorf("%s: expected IsBrowserAPI() false", a)
		}
	}
}

func TestEnvelopeMarshalUnmarshalRoundTripsCommand(t *testing.T) {
	env := Envelope{
		Kind: KindCommand,
		Command: &Command{
			ID:     "c1",
			Action: Click,
			Params: json.RawMessage(`{"ref":"e3"}`),
		},
	}

	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != KindCommand {
		t.Errorf("Kind = %q", got.Kind)
	}
	if got.Command == nil || got.Command.ID != "c1" || got.Command.Action != Click {
		t.Errorf("Command = %+v", got.Command)
	}
	if got.Response != nil {
		t.Errorf("Response should be nil, got %+v", got.Response)
	}
}

func TestEnvelopeMarshalUnmarshalRoundTripsResponse(t *testing.T) {
	env := Envelope{
		Kind: KindResponse,
		Response: &Response{
			ID:      "c1",
			Success: false,
			Error:   "boom",
		},
	}

	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Command != nil {
		t.Errorf("Command should be nil, got %+v", got.Command)
	}
	if got.Response == nil || got.Response.Error != "boom" || got.Response.Success {
		t.Errorf("Response = %+v", got.Response)
	}
}

func TestPingPongEnvelopesCarryNoPayload(t *testing.T) {
	data, err := Envelope{Kind: KindPing}.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != KindPing || got.Command != nil || got.Response != nil {
		t.Errorf("got %+v", got)
	}
}

func TestUnmarshalRejectsMalformedJSON(t *testing.T) {
	if _, err := Unmarshal([]byte(`{not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
