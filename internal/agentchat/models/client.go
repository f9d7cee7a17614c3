// Package models provides model clients used by assistant agents.
package models

import (
	"context"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
)

// Role identifies the author of a chat message sent to a model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is a single entry of a model request.
type ChatMessage struct {
	Role       Role
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []agentchat.FunctionCall
}

// ToolSpec describes a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// Request is the input to Client.Create.
type Request struct {
	Messages []ChatMessage
	Tools    []ToolSpec
}

// Completion is a model's answer.
type Completion struct {
	Content      string
	ToolCalls    []agentchat.FunctionCall
	FinishReason string
	Usage        agentchat.Usage
}

// Client is a chat-completion model client.
type Client interface {
	// Model returns the model identifier.
	Model() string
	// Create sends a request and waits for the completion.
	Create(ctx context.Context, req Request) (*Completion, error)
	// Close releases connections held by the client.
	Close() error
}
