// Package result defines the stable envelopes teamrun hands to callers:
// TeamResult for a finished run and StreamEvent for streamed progress.
// The wrappers accept whatever shape a team produced and never fail.
package result

import (
	"encoding/json"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// StopReason is the fixed vocabulary explaining why a run ended.
type StopReason string

const (
	StopMaxTurns    StopReason = "max_turns"
	StopTermination StopReason = "termination_condition"
	StopError       StopReason = "error"
	StopCancelled   StopReason = "cancelled"
)

// NormalizeStopReason maps a reason reported by a team onto the fixed
// vocabulary. Reasons outside it become termination_condition and are
// returned verbatim as detail. An empty reason means error.
func NormalizeStopReason(raw string) (StopReason, string) {
	switch StopReason(raw) {
	case "":
		return StopError, ""
	case StopMaxTurns, StopTermination, StopError, StopCancelled:
		return StopReason(raw), ""
	default:
		return StopTermination, raw
	}
}

// Message is the stable rendering of a chat message.
type Message struct {
	Type        string                     `json:"type"`
	Source      string                     `json:"source"`
	Content     string                     `json:"content"`
	ToolCalls   []agentchat.FunctionCall   `json:"tool_calls,omitempty"`
	ToolResults []agentchat.FunctionResult `json:"tool_results,omitempty"`
	Usage       *agentchat.Usage           `json:"usage,omitempty"`
}

// FromMessage converts a chat message into its stable form.
func FromMessage(m agentchat.Message) Message {
	out := Message{Type: agentchat.MessageType(m), Source: m.Source(), Content: m.Text()}
	switch v := m.(type) {
	case agentchat.TextMessage:
		out.Usage = v.Usage
	case agentchat.ToolCallRequest:
		out.ToolCalls = v.Calls
	case agentchat.ToolCallResult:
		out.ToolResults = v.Results
	}
	return out
}

// TaskResult is the wrapped outcome of the team.
type TaskResult struct {
	Messages   []Message  `json:"messages"`
	StopReason StopReason `json:"stop_reason"`
	// StopDetail holds the team's own stop reason when it was not already a
	// vocabulary value, e.g. "Text 'TERMINATE' mentioned".
	StopDetail string `json:"stop_detail,omitempty"`
}

// TeamResult is the envelope returned for every run.
type TeamResult struct {
	RunID      string          `json:"run_id,omitempty"`
	Status     Status          `json:"status"`
	TaskResult TaskResult      `json:"task_result"`
	Duration   time.Duration   `json:"-"`
	Usage      agentchat.Usage `json:"usage"`
	Error      string          `json:"error,omitempty"`
}

type teamResultJSON struct {
	RunID      string          `json:"run_id,omitempty"`
	Status     Status          `json:"status"`
	TaskResult TaskResult      `json:"task_result"`
	DurationMS int64           `json:"duration_ms"`
	Usage      agentchat.Usage `json:"usage"`
	Error      string          `json:"error,omitempty"`
}

// MarshalJSON renders Duration as whole milliseconds.
func (r TeamResult) MarshalJSON() ([]byte, error) {
	msgs := r.TaskResult.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	tr := r.TaskResult
	tr.Messages = msgs
	return json.Marshal(teamResultJSON{
		RunID:      r.RunID,
		Status:     r.Status,
		TaskResult: tr,
		DurationMS: r.Duration.Milliseconds(),
		Usage:      r.Usage,
		Error:      r.Error,
	})
}

func (r *TeamResult) UnmarshalJSON(data []byte) error {
	var raw teamResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = TeamResult{
		RunID:      raw.RunID,
		Status:     raw.Status,
		TaskResult: raw.TaskResult,
		Duration:   time.Duration(raw.DurationMS) * time.Millisecond,
		Usage:      raw.Usage,
		Error:      raw.Error,
	}
	if r.TaskResult.Messages == nil {
		r.TaskResult.Messages = []Message{}
	}
	return nil
}

// WrapResult converts whatever a team returned into a TeamResult. Missing
// fields default to an empty message list and the error stop reason. The
// status follows the stop reason; the engine overrides it when it knows
// better.
func WrapResult(raw any) TeamResult {
	var (
		msgs   []Message
		reason string
		usage  agentchat.Usage
	)

	switch v := raw.(type) {
	case TeamResult:
		return normalized(v)
	case *TeamResult:
		if v == nil {
			break
		}
		return normalized(*v)
	case agentchat.TaskResult:
		msgs, reason, usage = fromTaskResult(&v)
	case *agentchat.TaskResult:
		if v != nil {
			msgs, reason, usage = fromTaskResult(v)
		}
	case map[string]any:
		msgs, reason, usage = fromMap(v)
	}

	stop, detail := NormalizeStopReason(reason)
	return TeamResult{
		Status: statusFor(stop),
		TaskResult: TaskResult{
			Messages:   nonNil(msgs),
			StopReason: stop,
			StopDetail: detail,
		},
		Usage: usage,
	}
}

func normalized(r TeamResult) TeamResult {
	r.TaskResult.Messages = nonNil(r.TaskResult.Messages)
	if r.TaskResult.StopReason == "" {
		r.TaskResult.StopReason = StopError
	}
	if r.Status == "" {
		r.Status = statusFor(r.TaskResult.StopReason)
	}
	return r
}

func statusFor(stop StopReason) Status {
	switch stop {
	case StopCancelled:
		return StatusCancelled
	case StopError:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

func nonNil(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

func fromTaskResult(tr *agentchat.TaskResult) ([]Message, string, agentchat.Usage) {
	msgs := make([]Message, 0, len(tr.Messages))
	for _, m := range tr.Messages {
		if m != nil {
			msgs = append(msgs, FromMessage(m))
		}
	}
	return msgs, tr.StopReason, tr.Usage
}

// fromMap reads the loosely typed result shape produced by decoded JSON.
func fromMap(m map[string]any) ([]Message, string, agentchat.Usage) {
	var usage agentchat.Usage
	if u, ok := m["usage"]; ok {
		_ = decodeWeak(u, &usage)
	}

	var msgs []Message
	for _, item := range cast.ToSlice(m["messages"]) {
		switch v := item.(type) {
		case agentchat.Message:
			msgs = append(msgs, FromMessage(v))
		case Message:
			msgs = append(msgs, v)
		case map[string]any:
			var msg Message
			if err := decodeWeak(v, &msg); err == nil {
				if msg.Type == "" {
					msg.Type = "text"
				}
				msgs = append(msgs, msg)
			}
		case string:
			msgs = append(msgs, Message{Type: "text", Content: v})
		}
	}
	return msgs, cast.ToString(m["stop_reason"]), usage
}

func decodeWeak(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
