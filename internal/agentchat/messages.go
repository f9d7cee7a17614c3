// Package agentchat defines the message model and the Team and Agent
// capabilities that teamrun executes. Concrete agents live in
// agentchat/agents, model clients in agentchat/models and group chats in
// agentchat/teams.
package agentchat

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Message is an entry in a team's chat history.
type Message interface {
	// Source is the name of the agent (or "user") that produced the message.
	Source() string
	// Text renders the message content as plain text.
	Text() string
}

// TextMessage is a plain chat message.
type TextMessage struct {
	From    string `json:"source"`
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

func (m TextMessage) Source() string { return m.From }
func (m TextMessage) Text() string   { return m.Content }

// StopMessage is emitted by a team when a termination condition fires.
type StopMessage struct {
	From    string `json:"source"`
	Content string `json:"content"`
}

func (m StopMessage) Source() string { return m.From }
func (m StopMessage) Text() string   { return m.Content }

// FunctionCall is a tool invocation requested by a model.
type FunctionCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionResult is the outcome of executing a FunctionCall.
type FunctionResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolCallRequest carries the tool calls an agent is about to execute.
type ToolCallRequest struct {
	From  string         `json:"source"`
	Calls []FunctionCall `json:"calls"`
}

func (m ToolCallRequest) Source() string { return m.From }

func (m ToolCallRequest) Text() string {
	names := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		names[i] = c.Name
	}
	return "calling " + strings.Join(names, ", ")
}

// ToolCallResult carries the results of executed tool calls.
type ToolCallResult struct {
	From    string           `json:"source"`
	Results []FunctionResult `json:"results"`
}

func (m ToolCallResult) Source() string { return m.From }

func (m ToolCallResult) Text() string {
	parts := make([]string, len(m.Results))
	for i, r := range m.Results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n")
}

// ModelChunk is a partial piece of model output. Chunks are stream events
// only and are never stored in the chat history.
type ModelChunk struct {
	From    string `json:"source"`
	Content string `json:"content"`
}

// SpeakerSelected is a stream event announcing the next agent's turn.
type SpeakerSelected struct {
	Speaker string `json:"speaker"`
	Turn    int    `json:"turn"`
}

// Usage accumulates model token counts and cost.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		Cost:             u.Cost + o.Cost,
	}
}

// IsZero reports whether no usage was recorded.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Raw stop reasons reported by the reference teams. Termination conditions
// report their own descriptive text.
const (
	StopMaxTurns  = "max_turns"
	StopCancelled = "cancelled"
	StopError     = "error"
)

// TaskResult is what a team returns when a run ends.
type TaskResult struct {
	Messages   []Message `json:"messages"`
	StopReason string    `json:"stop_reason"`
	Usage      Usage     `json:"usage"`
}

// MarshalMessage encodes a message with an added "type" field so that
// heterogeneous histories stay decodable by consumers.
func MarshalMessage(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(strconv.Quote(MessageType(m)))
	return json.Marshal(fields)
}

// MessageType returns the wire name of a message variant.
func MessageType(m Message) string {
	switch m.(type) {
	case TextMessage, *TextMessage:
		return "text"
	case StopMessage, *StopMessage:
		return "stop"
	case ToolCallRequest, *ToolCallRequest:
		return "tool_call_request"
	case ToolCallResult, *ToolCallResult:
		return "tool_call_result"
	default:
		return "unknown"
	}
}
