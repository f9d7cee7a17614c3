package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
)

// ScriptedConfig configures a Scripted agent.
type ScriptedConfig struct {
	Name        string
	Description string
	// Replies are returned in order; the last one repeats once exhausted.
	Replies []string
	// FailAfter makes the agent fail on its turn after this many successful
	// replies. Zero never fails.
	FailAfter int
	// Delay is waited before each reply. Cancelling the context ends the
	// wait early.
	Delay time.Duration
	// ChunkSize, when positive, emits each reply as ModelChunks of this many
	// bytes before returning it.
	ChunkSize int
}

// Scripted is a model-free agent with fixed replies.
type Scripted struct {
	cfg ScriptedConfig

	mu     sync.Mutex
	turns  int
	closes int
}

var _ agentchat.Agent = (*Scripted)(nil)

// NewScripted returns a scripted agent.
func NewScripted(cfg ScriptedConfig) (*Scripted, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("scripted agent name is required")
	}
	if cfg.FailAfter < 0 {
		return nil, fmt.Errorf("scripted agent %q: fail_after must be non-negative", cfg.Name)
	}
	return &Scripted{cfg: cfg}, nil
}

func (s *Scripted) Name() string        { return s.cfg.Name }
func (s *Scripted) Description() string { return s.cfg.Description }

func (s *Scripted) Respond(ctx context.Context, _ []agentchat.Message, emit agentchat.Emitter) (agentchat.Response, error) {
	if s.cfg.Delay > 0 {
		timer := time.NewTimer(s.cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return agentchat.Response{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	turn := s.turns
	s.turns++
	s.mu.Unlock()

	if s.cfg.FailAfter > 0 && turn >= s.cfg.FailAfter {
		return agentchat.Response{}, fmt.Errorf("agent %q failed after %d turns", s.cfg.Name, s.cfg.FailAfter)
	}

	reply := ""
	if n := len(s.cfg.Replies); n > 0 {
		reply = s.cfg.Replies[min(turn, n-1)]
	}
	if s.cfg.ChunkSize > 0 {
		for start := 0; start < len(reply); start += s.cfg.ChunkSize {
			end := min(start+s.cfg.ChunkSize, len(reply))
			emit(agentchat.ModelChunk{From: s.cfg.Name, Content: reply[start:end]})
		}
	}

	return agentchat.Response{
		Messages: []agentchat.Message{agentchat.TextMessage{From: s.cfg.Name, Content: reply}},
	}, nil
}

func (s *Scripted) Close(context.Context) error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

// Turns returns the number of replies attempted.
func (s *Scripted) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Closes returns how many times Close was called.
func (s *Scripted) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Replies returns the configured replies.
func (s *Scripted) Replies() []string {
	return append([]string(nil), s.cfg.Replies...)
}
