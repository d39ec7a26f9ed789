// Package mcpbridge exposes the host tool catalog as an MCP server and
// forwards every tool call to the relay.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tiancaiamao/hostbridge/pkg/tools"
)

const (
	serverName    = "hostbridge"
	serverVersion = "0.1.0"
)

// Bridge is the MCP server.
type Bridge struct {
	relay   *RelayClient
	catalog *tools.Registry
	log     *slog.Logger
	server  *mcp.Server
}

// New builds the MCP server over catalog. A nil catalog means the canonical one.
func New(relay *RelayClient, catalog *tools.Registry, log *slog.Logger) *Bridge {
	if catalog == nil {
		catalog = tools.Catalog()
	}
	if log == nil {
		log = slog.Default()
	}
	b := &Bridge{
		relay:   relay,
		catalog: catalog,
		log:     log.With("component", "mcp"),
		server:  mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
	}
	for _, tool := range catalog.All() {
		desc := tool.Description
		if tool.Gate != "" {
			desc += fmt.Sprintf(" Requires the host setting %s.", tool.Gate)
		}
		b.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: desc,
			InputSchema: tool.Parameters,
		}, b.handler(tool.Name))
	}
	return b
}

// Server returns the underlying MCP server.
func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Run serves over stdio until ctx is done or the client disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info("mcp server starting", "relay", b.relay.URL, "tools", len(b.catalog.All()))
	return b.server.Run(ctx, &mcp.StdioTransport{})
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func (b *Bridge) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		if len(args) > 0 && !json.Valid(args) {
			return errorResult("Invalid tool arguments"), nil
		}

		resp, err := b.relay.RunTool(ctx, name, args)
		if err != nil {
			b.log.Error("tool call failed", "tool", name, "error", err)
			return errorResult(fmt.Sprintf("Error communicating with relay: %v", err)), nil
		}
		if resp.IsError() {
			return errorResult(resp.Message), nil
		}

		text, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(text)}}}, nil
	}
}
