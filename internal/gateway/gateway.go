// Package gateway implements the MCP tool gateway of spec section 4.D:
// a JSON-RPC 2.0 server over stdio that exposes the closed tool catalog
// to an agent, forwards tool calls to the broker as correlation-ID
// tagged commands, and renders responses as MCP content blocks.
//
// The "never connected" vs "disconnected" distinction in
// waitForExtension is grounded directly in the teacher's
// checkPilotReady (cmd/dev-console/pilot.go), which likewise refuses to
// report a timed-out command as "extension disabled" when it has no
// evidence either way.
package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Lemon9247/agentfox/internal/broker"
	"github.com/Lemon9247/agentfox/internal/command"
	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
	"github.com/Lemon9247/agentfox/internal/gateway/mcpresult"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodySize = 16 << 20

// protocolVersion is the MCP wire version this gateway speaks.
const protocolVersion = "2024-11-05"

// Gateway hosts the MCP stdio server over a Broker.
type Gateway struct {
	broker         *broker.Broker
	log            *zap.SugaredLogger
	catalog        map[string]*Tool
	extensionWait  time.Duration
	commandTimeout time.Duration
}

// New builds a Gateway over an already-constructed Broker.
func New(b *broker.Broker, log *zap.SugaredLogger, extensionWait, commandTimeout time.Duration) *Gateway {
	return &Gateway{
		broker:         b,
		log:            log,
		catalog:        Catalog(),
		extensionWait:  extensionWait,
		commandTimeout: commandTimeout,
	}
}

// Run reads JSON-RPC requests from in and writes responses to out until
// in reaches EOF or ctx-independent I/O fails. Each request is line- or
// Content-Length-framed; each response is written as a single
// newline-terminated JSON line, matching the teacher's stdio framing.
func (g *Gateway) Run(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		raw, err := readStdioMessage(reader, maxBodySize)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("gateway: reading stdio message: %w", err)
		}
		if len(raw) == 0 {
			continue
		}

		var req mcpresult.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			g.log.Warnw("malformed json-rpc request, skipping", "error", err)
			continue
		}

		resp := g.handleRequest(req)
		if err := g.writeResponse(out, resp); err != nil {
			return fmt.Errorf("gateway: writing response: %w", err)
		}
	}
}

func (g *Gateway) writeResponse(out io.Writer, resp mcpresult.Response) error {
	resp.JSONRPC = "2.0"
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	_, err = out.Write(encoded)
	return err
}

func (g *Gateway) handleRequest(req mcpresult.Request) mcpresult.Response {
	switch req.Method {
	case "initialize":
		return g.handleInitialize(req)
	case "tools/list":
		return g.handleToolsList(req)
	case "tools/call":
		return g.handleToolsCall(req)
	case "notifications/initialized", "ping":
		return mcpresult.Response{ID: req.ID, Result: json.RawMessage(`{}`)}
	default:
		return mcpresult.Response{
			ID:    req.ID,
			Error: &mcpresult.RPCError{Code: -32601, Message: "method not found: " + req.Method},
		}
	}
}

func (g *Gateway) handleInitialize(req mcpresult.Request) mcpresult.Response {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "agentfox-bridge", "version": "0.1.0"},
	}
	encoded, _ := json.Marshal(result)
	return mcpresult.Response{ID: req.ID, Result: encoded}
}

func (g *Gateway) handleToolsList(req mcpresult.Request) mcpresult.Response {
	type toolDesc struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"inputSchema"`
	}
	list := make([]toolDesc, 0, len(g.catalog))
	for _, t := range g.catalog {
		list = append(list, toolDesc{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	encoded, _ := json.Marshal(map[string]any{"tools": list})
	return mcpresult.Response{ID: req.ID, Result: encoded}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (g *Gateway) handleToolsCall(req mcpresult.Request) mcpresult.Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcpresult.Response{
			ID:    req.ID,
			Error: &mcpresult.RPCError{Code: -32602, Message: "invalid tools/call params: " + err.Error()},
		}
	}

	tool, ok := g.catalog[params.Name]
	if !ok {
		return mcpresult.Response{
			ID: req.ID,
			Result: mcpresult.StructuredError(mcperr.New(
				mcperr.CodeUnknownTool,
				fmt.Sprintf("no such tool: %q", params.Name),
			)),
		}
	}

	if err := g.waitForExtension(); err != nil {
		return mcpresult.Response{ID: req.ID, Result: mcpresult.StructuredError(*err)}
	}

	cmd := command.Command{ID: uuid.NewString(), Action: tool.Action, Params: params.Arguments}
	resp, err := g.broker.SendCommand(cmd, g.commandTimeout)
	if err != nil {
		return mcpresult.Response{ID: req.ID, Result: mcpresult.StructuredError(translateSendErr(err))}
	}
	if !resp.Success {
		if structured, ok := mcperr.Decode(resp.Error); ok {
			return mcpresult.Response{ID: req.ID, Result: mcpresult.StructuredError(structured)}
		}
		return mcpresult.Response{
			ID: req.ID,
			Result: mcpresult.StructuredError(mcperr.New(mcperr.CodeInternal, resp.Error)),
		}
	}

	return mcpresult.Response{ID: req.ID, Result: tool.Format(resp.Result)}
}

// waitForExtension mirrors checkPilotReady: it distinguishes "no
// extension has ever attached" from "an extension attached before but
// none is attached right now" so the error the agent sees tells it
// which situation it is actually in, rather than a generic timeout.
func (g *Gateway) waitForExtension() *mcperr.Structured {
	if g.broker.IsConnected() {
		return nil
	}
	if !g.broker.HasEverConnected() {
		s := mcperr.New(
			mcperr.CodeExtensionNeverConnected,
			"no browser has ever attached to this bridge",
			mcperr.WithHint("open a browser with the agentfox extension installed and pointed at this bridge's socket"),
		)
		if g.broker.WaitForConnection(g.extensionWait) {
			return nil
		}
		return &s
	}

	if g.broker.WaitForConnection(g.extensionWait) {
		return nil
	}
	s := mcperr.New(
		mcperr.CodeExtensionDisconnected,
		"the browser was attached previously but is not attached now",
	)
	return &s
}

func translateSendErr(err error) mcperr.Structured {
	switch err {
	case broker.ErrNotConnected:
		return mcperr.New(mcperr.CodeExtensionDisconnected, "browser disconnected before the command could be sent")
	case broker.ErrTimeout:
		return mcperr.New(mcperr.CodeCommandTimeout, "command timed out waiting for a response")
	case broker.ErrDisconnected:
		return mcperr.New(mcperr.CodeExtensionDisconnected, "browser disconnected while the command was in flight")
	case broker.ErrAlreadyExists:
		return mcperr.New(mcperr.CodeInternal, "correlation id collision")
	default:
		return mcperr.New(mcperr.CodeInternal, err.Error())
	}
}
