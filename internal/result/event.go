package result

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
)

// EventType discriminates stream events.
type EventType string

const (
	EventAgentTurnStarted EventType = "agent-turn-started"
	EventContentChunk     EventType = "content-chunk"
	EventToolInvoked      EventType = "tool-invoked"
	EventToolResult       EventType = "tool-result"
	EventRunCompleted     EventType = "run-completed"
	EventRunFailed        EventType = "run-failed"
	EventRunCancelled     EventType = "run-cancelled"
)

// Terminal reports whether t ends a stream.
func (t EventType) Terminal() bool {
	return t == EventRunCompleted || t == EventRunFailed || t == EventRunCancelled
}

// StreamEvent is one item of a streamed run. RunID and Seq are assigned by
// the engine.
type StreamEvent struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`

	Source  string `json:"source,omitempty"`
	Content string `json:"content,omitempty"`
	// Message is set for complete chat messages; partial chunks carry only
	// Content.
	Message     *Message                   `json:"message,omitempty"`
	ToolCalls   []agentchat.FunctionCall   `json:"tool_calls,omitempty"`
	ToolResults []agentchat.FunctionResult `json:"tool_results,omitempty"`

	Result *TeamResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// WrapEvent converts an item produced by a team stream into a StreamEvent.
// Unknown items become content chunks carrying an opaque rendering.
func WrapEvent(raw any) StreamEvent {
	ev := StreamEvent{Type: EventContentChunk, Timestamp: time.Now()}

	switch v := raw.(type) {
	case agentchat.SpeakerSelected:
		ev.Type = EventAgentTurnStarted
		ev.Source = v.Speaker
		ev.Content = fmt.Sprintf("turn %d", v.Turn)
	case agentchat.ModelChunk:
		ev.Source = v.From
		ev.Content = v.Content
	case agentchat.ToolCallRequest:
		ev.Type = EventToolInvoked
		ev.Source = v.From
		ev.Content = v.Text()
		ev.ToolCalls = v.Calls
		ev.Message = ptr(FromMessage(v))
	case agentchat.ToolCallResult:
		ev.Type = EventToolResult
		ev.Source = v.From
		ev.Content = v.Text()
		ev.ToolResults = v.Results
		ev.Message = ptr(FromMessage(v))
	case agentchat.Message:
		ev.Source = v.Source()
		ev.Content = v.Text()
		ev.Message = ptr(FromMessage(v))
	case agentchat.TaskResult, *agentchat.TaskResult, TeamResult, *TeamResult:
		res := WrapResult(v)
		return TerminalEvent(res)
	case nil:
	default:
		ev.Content = opaque(v)
	}
	return ev
}

// TerminalEvent builds the final event for a finished run from its result.
func TerminalEvent(res TeamResult) StreamEvent {
	ev := StreamEvent{
		Type:      EventRunCompleted,
		RunID:     res.RunID,
		Timestamp: time.Now(),
		Result:    &res,
		Error:     res.Error,
	}
	switch res.Status {
	case StatusFailed:
		ev.Type = EventRunFailed
	case StatusCancelled:
		ev.Type = EventRunCancelled
	}
	return ev
}

func opaque(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

func ptr[T any](v T) *T { return &v }
