// Package mcp provides the entractl MCP server, registering one tool per
// catalog action plus tools to browse history and logs, and publishing
// model instructions.
package mcp

import (
	_ "embed"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/entractl"
	"github.com/deixis/entractl/internal/action"
	"github.com/deixis/entractl/internal/logs"
	"github.com/deixis/entractl/internal/report"
)

//go:embed instructions.md
var Instructions string

// ToolPrefix is prepended to every action id to form its tool name.
const ToolPrefix = "entra_"

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *action.Engine
	store  report.Store
	logs   *logs.Dir // nil disables entra_logs
}

// NewServer creates an MCP server with all entractl tools registered.
// Runs started through the server are saved by the engine's store; store
// is used to read them back.
func NewServer(engine *action.Engine, store report.Store, logDir *logs.Dir) *mcp.Server {
	h := &handler{engine: engine, store: store, logs: logDir}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "entractl", Version: entractl.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "entra_actions",
		Description: "List the available directory actions with their parameters.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.actionsHandler)

	registerActionTools(s, h)

	mcp.AddTool(s, &mcp.Tool{
		Name: "entra_inspect",
		Description: `Show the stored result of a previous action run.

Use the run_id printed by an action tool. Optionally filter records by
outcome (success, failure, warning, unknown) or by a substring of any value.`,
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "entra_history",
		Description: "List recent action runs, newest first.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.historyHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "entra_logs",
		Description: `Browse script transcripts.

Pass "query" to search every log (case-insensitive), "name" to read one log,
or nothing to list logs newest first.`,
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.logsHandler)

	return s
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
