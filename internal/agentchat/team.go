package agentchat

import (
	"context"
	"iter"
)

// Team is a runnable multi-agent team. A Team instance serves a single run
// and must be closed exactly once afterwards.
type Team interface {
	// Name returns the team's label.
	Name() string

	// Run executes task to completion. On error the returned result, when
	// non-nil, holds the messages produced before the failure.
	Run(ctx context.Context, task string) (*TaskResult, error)

	// RunStream executes task and yields intermediate items as they are
	// produced: SpeakerSelected, ModelChunk and Message values, followed by
	// a final *TaskResult. A failure is yielded as a non-nil error and ends
	// the sequence. Stopping iteration early abandons the run.
	RunStream(ctx context.Context, task string) iter.Seq2[any, error]

	// Close releases resources held by the team and its participants.
	Close(ctx context.Context) error
}

// Emitter receives intermediate output while an agent is responding.
// It is never nil when passed to Agent.Respond.
type Emitter func(item any)

// Response is the output of a single agent turn. The last message is the
// agent's reply; earlier ones are inner messages such as tool calls.
type Response struct {
	Messages []Message
	Usage    Usage
}

// Final returns the reply message, or nil when the response is empty.
func (r Response) Final() Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return r.Messages[len(r.Messages)-1]
}

// Agent is a participant in a team.
type Agent interface {
	Name() string
	Description() string

	// Respond produces the agent's next turn given the full history.
	Respond(ctx context.Context, history []Message, emit Emitter) (Response, error)

	// Close releases the agent's resources, such as model clients.
	Close(ctx context.Context) error
}

// Discard is an Emitter that drops everything.
func Discard(any) {}
