package gateway

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lemon9247/agentfox/internal/broker"
	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/frame"
	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/Lemon9247/agentfox/internal/gateway/mcpresult"
	"github.com/Lemon9247/agentfox/internal/logging"
	"net"
)

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "gateway-test.sock")
}

func TestGatewayHandleInitialize(t *testing.T) {
	g := New(broker.New(testSocketPath(t), logging.Nop(), broker.Options{}), logging.Nop(), 50*time.Millisecond, time.Second)
	resp := g.handleRequest(requestOf(t, "initialize", nil))
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %v", resp.Error)
	}
	var result map[string]any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["protocolVersion"] != protocolVersion {
		t.Fatalf("protocolVersion = %v, want %v", result["protocolVersion"], protocolVersion)
	}
}

func TestGatewayHandleToolsList(t *testing.T) {
	g := New(broker.New(testSocketPath(t), logging.Nop(), broker.Options{}), logging.Nop(), 50*time.Millisecond, time.Second)
	resp := g.handleRequest(requestOf(t, "tools/list", nil))
	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Tools) != len(g.catalog) {
		t.Fatalf("got %d tools, want %d", len(result.Tools), len(g.catalog))
	}
}

func TestGatewayUnknownToolReturnsStructuredError(t *testing.T) {
	g := New(broker.New(testSocketPath(t), logging.Nop(), broker.Options{}), logging.Nop(), 50*time.Millisecond, time.Second)
	resp := g.handleRequest(requestOf(t, "tools/call", map[string]any{"name": "not_a_real_tool", "arguments": map[string]any{}}))
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %v", resp.Error)
	}
	if !bytes.Contains(resp.Result, []byte(mcperr.CodeUnknownTool)) {
		t.Fatalf("result missing %s: %s", mcperr.CodeUnknownTool, resp.Result)
	}
}

func TestGatewayNeverConnectedExtensionReturnsDistinctError(t *testing.T) {
	b := broker.New(testSocketPath(t), logging.Nop(), broker.Options{})
	g := New(b, logging.Nop(), 20*time.Millisecond, time.Second)

	resp := g.handleRequest(requestOf(t, "tools/call", map[string]any{"name": "snapshot", "arguments": map[string]any{}}))
	if !bytes.Contains(resp.Result, []byte(mcperr.CodeExtensionNeverConnected)) {
		t.Fatalf("result missing %s: %s", mcperr.CodeExtensionNeverConnected, resp.Result)
	}
}

// TestGatewayToolsCallRoundTrip exercises the full path: a real Broker
// listening on a unix socket, a fake extension client that answers one
// command, and the Gateway's tools/call dispatch across it.
func TestGatewayToolsCallRoundTrip(t *testing.T) {
	socketPath := testSocketPath(t)
	b := broker.New(socketPath, logging.Nop(), broker.Options{})
	if err := b.Start(); err != nil {
		t.Fatalf("broker start: %v", err)
	}
	defer b.Close()

	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return
		}
		defer conn.Close()

		dec := frame.NewDecoder(frame.IPC)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n == 0 && err != nil {
				return
			}
			msgs, _ := dec.Push(buf[:n])
			for _, m := range msgs {
				env, uerr := command.Unmarshal(m)
				if uerr != nil || env.Kind != command.KindCommand || env.Command == nil {
					continue
				}
				result, _ := json.Marshal(map[string]string{"title": "hello"})
				respEnv := command.Envelope{
					Kind: command.KindResponse,
					Response: &command.Response{ID: env.Command.ID, Success: true, Result: result},
				}
				encoded, _ := json.Marshal(respEnv)
				framed, _ := frame.IPC.Encode(encoded)
				conn.Write(framed)
				return
			}
		}
	}()

	if !b.WaitForConnection(2 * time.Second) {
		t.Fatal("fake extension never attached")
	}

	g := New(b, logging.Nop(), 50*time.Millisecond, 2*time.Second)
	resp := g.handleRequest(requestOf(t, "tools/call", map[string]any{"name": "page_content", "arguments": map[string]any{}}))
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %v", resp.Error)
	}
	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Result)
	}
	if len(result.Content) == 0 || result.Content[0].Text == "" {
		t.Fatalf("expected non-empty text content, got %+v", result)
	}

	<-clientDone
}

func requestOf(t *testing.T, method string, params any) mcpresult.Request {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = encoded
	}
	return mcpresult.Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw}
}
