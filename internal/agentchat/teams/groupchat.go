// Package teams implements the group chats teamrun ships with: a
// round-robin chat and a selector chat that picks the next speaker.
package teams

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/errors"
)

// UserSource is the source name of the task message.
const UserSource = "user"

// Config holds the settings shared by all group chats.
type Config struct {
	Name         string
	Participants []agentchat.Agent
	// MaxTurns stops the chat after this many agent turns. Zero means no
	// limit.
	MaxTurns int
	// Termination, if set, is checked after the task message and after every
	// agent turn.
	Termination agentchat.TerminationCondition
}

func (c Config) validate() error {
	if len(c.Participants) == 0 {
		return fmt.Errorf("at least one participant is required")
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns must be non-negative")
	}
	seen := make(map[string]bool, len(c.Participants))
	for _, p := range c.Participants {
		if seen[p.Name()] {
			return fmt.Errorf("duplicate participant name %q", p.Name())
		}
		seen[p.Name()] = true
	}
	return nil
}

// speakerFunc picks the index of the next participant. last is -1 before
// the first turn.
type speakerFunc func(ctx context.Context, history []agentchat.Message, last int) (int, error)

type groupChat struct {
	cfg     Config
	next    speakerFunc
	closers []func(context.Context) error

	mu     sync.Mutex
	closes int
}

func (g *groupChat) Name() string {
	if g.cfg.Name == "" {
		return "team"
	}
	return g.cfg.Name
}

// Participants returns the team's agents in configured order.
func (g *groupChat) Participants() []agentchat.Agent {
	return append([]agentchat.Agent(nil), g.cfg.Participants...)
}

// Run drives RunStream to completion. Messages seen before a failure are
// returned alongside the error.
func (g *groupChat) Run(ctx context.Context, task string) (*agentchat.TaskResult, error) {
	partial := &agentchat.TaskResult{StopReason: agentchat.StopError}
	for item, err := range g.RunStream(ctx, task) {
		if err != nil {
			if errors.IsCancelled(err) {
				partial.StopReason = agentchat.StopCancelled
			}
			return partial, err
		}
		switch v := item.(type) {
		case *agentchat.TaskResult:
			return v, nil
		case agentchat.Message:
			partial.Messages = append(partial.Messages, v)
		}
	}
	return partial, errors.ErrMissingResult
}

func (g *groupChat) RunStream(ctx context.Context, task string) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		g.run(ctx, task, yield)
	}
}

func (g *groupChat) run(ctx context.Context, task string, yield func(any, error) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := false
	out := func(item any, err error) bool {
		if stopped {
			return false
		}
		if !yield(item, err) {
			stopped = true
			cancel()
		}
		return !stopped
	}
	emit := func(item any) { out(item, nil) }

	if g.cfg.Termination != nil {
		g.cfg.Termination.Reset()
	}
	result := &agentchat.TaskResult{}
	finish := func(reason string) {
		if g.cfg.Termination != nil && reason != agentchat.StopMaxTurns {
			stop := agentchat.StopMessage{From: g.Name(), Content: reason}
			result.Messages = append(result.Messages, stop)
			if !out(stop, nil) {
				return
			}
		}
		result.StopReason = reason
		out(result, nil)
	}

	taskMsg := agentchat.TextMessage{From: UserSource, Content: task}
	history := []agentchat.Message{taskMsg}
	result.Messages = append(result.Messages, taskMsg)
	if !out(taskMsg, nil) {
		return
	}
	if reason := g.check([]agentchat.Message{taskMsg}); reason != "" {
		finish(reason)
		return
	}

	last := -1
	for turn := 1; ; turn++ {
		if g.cfg.MaxTurns > 0 && turn > g.cfg.MaxTurns {
			finish(agentchat.StopMaxTurns)
			return
		}
		if err := ctx.Err(); err != nil {
			out(nil, err)
			return
		}

		idx, err := g.next(ctx, history, last)
		if err != nil {
			out(nil, fmt.Errorf("selecting speaker: %w", err))
			return
		}
		agent := g.cfg.Participants[idx]
		if !out(agentchat.SpeakerSelected{Speaker: agent.Name(), Turn: turn}, nil) {
			return
		}

		resp, err := agent.Respond(ctx, history, emit)
		if stopped {
			return
		}
		if err != nil {
			out(nil, fmt.Errorf("participant %q: %w", agent.Name(), err))
			return
		}
		final := resp.Final()
		if final == nil {
			out(nil, fmt.Errorf("participant %q returned no message", agent.Name()))
			return
		}
		if !out(final, nil) {
			return
		}

		history = append(history, resp.Messages...)
		result.Messages = append(result.Messages, resp.Messages...)
		result.Usage = result.Usage.Add(resp.Usage)
		last = idx

		if reason := g.check(resp.Messages); reason != "" {
			finish(reason)
			return
		}
	}
}

func (g *groupChat) check(delta []agentchat.Message) string {
	if g.cfg.Termination == nil {
		return ""
	}
	return g.cfg.Termination.Check(delta)
}

// Close closes every participant and any extra resources. Errors are
// joined; every participant is closed even if an earlier one fails.
func (g *groupChat) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closes++
	g.mu.Unlock()

	var errs []error
	for _, p := range g.cfg.Participants {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing %q: %w", p.Name(), err))
		}
	}
	for _, c := range g.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closes returns how many times Close was called.
func (g *groupChat) Closes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closes
}
