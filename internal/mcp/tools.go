package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/entractl/internal/action"
)

// inputSchema builds the JSON Schema of an action's arguments from its
// field descriptors.
func inputSchema(a *action.Action) map[string]any {
	props := make(map[string]any, len(a.Fields))
	var required []string
	for _, f := range a.Fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldSchema(f action.Field) map[string]any {
	desc := f.Help
	var s map[string]any
	switch f.Kind {
	case action.List:
		s = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		if desc == "" && f.UPN {
			desc = "user principal names"
		}
	case action.Toggle:
		s = map[string]any{"type": "boolean"}
	case action.Secret:
		s = map[string]any{"type": "string"}
		desc = strings.TrimSpace(desc + " (plain text; encoded before it reaches the script and never stored)")
	default:
		s = map[string]any{"type": "string"}
	}
	if desc != "" {
		s["description"] = desc
	}
	return s
}

func toolDescription(a *action.Action) string {
	var b strings.Builder
	fmt.Fprintln(&b, a.Description)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Runs %s. ", a.Script)
	if a.Mode == action.Streaming {
		fmt.Fprint(&b, "Long running; progress is written to the run log. ")
	}
	fmt.Fprint(&b, "The result is stored for entra_inspect.")
	return b.String()
}

// registerActionTools registers entra_<id> for every catalog action.
func registerActionTools(s *mcp.Server, h *handler) {
	for _, a := range h.engine.Catalog.All() {
		s.AddTool(
			&mcp.Tool{
				Name:        ToolPrefix + a.ID,
				Title:       a.Title,
				Description: toolDescription(a),
				InputSchema: inputSchema(a),
			},
			makeActionHandler(h, a.ID),
		)
	}
}

// makeActionHandler returns a ToolHandler that dispatches the action and
// reports its result. Input problems come back as tool errors so the model
// can correct them.
func makeActionHandler(h *handler, id string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return toolError("invalid arguments: " + err.Error()), nil
			}
		}

		rr, err := h.engine.Dispatch(ctx, id, args, nil)
		if err != nil && rr == nil {
			var missing *action.MissingFieldError
			var preflight *action.PreflightError
			switch {
			case errors.As(err, &missing):
				return toolError(fmt.Sprintf("Missing required argument(s): %s.", strings.Join(missing.Fields, ", "))), nil
			case errors.As(err, &preflight):
				return toolError(fmt.Sprintf("Not run: %v. Check the spelling of the user principal names.", err)), nil
			}
			return toolError(err.Error()), nil
		}

		text := formatRun(rr)
		if err != nil {
			text += fmt.Sprintf("\nWarning: %v\n", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: !rr.OK(),
		}, nil
	}
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
