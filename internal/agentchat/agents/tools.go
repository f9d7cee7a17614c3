// Package agents provides the participant implementations used by the
// reference group chats: a model-backed assistant and a scripted agent.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/Iron-Ham/teamrun/internal/agentchat/models"
)

// ToolFunc executes a tool call with decoded JSON arguments.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is a function an assistant may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Fn          ToolFunc
}

// Spec returns the model-facing description of t.
func (t Tool) Spec() models.ToolSpec {
	return models.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// Call decodes arguments and runs the tool.
func (t Tool) Call(ctx context.Context, arguments string) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", t.Name, err)
		}
	}
	return t.Fn(ctx, args)
}

func stringParam(name, desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			name: map[string]any{"type": "string", "description": desc},
		},
		"required": []string{name},
	}
}

var builtinTools = map[string]Tool{
	"echo": {
		Name:        "echo",
		Description: "Return the given text unchanged.",
		Parameters:  stringParam("text", "Text to echo"),
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			return cast.ToString(args["text"]), nil
		},
	},
	"word_count": {
		Name:        "word_count",
		Description: "Count the words in the given text.",
		Parameters:  stringParam("text", "Text to count"),
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			return cast.ToString(len(strings.Fields(cast.ToString(args["text"])))), nil
		},
	},
	"current_time": {
		Name:        "current_time",
		Description: "Return the current UTC time in RFC 3339 format.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Fn: func(context.Context, map[string]any) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	},
}

// BuiltinTool looks up a tool shipped with teamrun.
func BuiltinTool(name string) (Tool, bool) {
	t, ok := builtinTools[name]
	return t, ok
}

// BuiltinToolNames lists the shipped tools in sorted order.
func BuiltinToolNames() []string {
	names := make([]string, 0, len(builtinTools))
	for name := range builtinTools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
