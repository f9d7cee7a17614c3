package teams

import (
	"context"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
)

// RoundRobin lets participants speak in configured order.
type RoundRobin struct {
	groupChat
}

var _ agentchat.Team = (*RoundRobin)(nil)

// NewRoundRobin validates cfg and returns a round-robin team.
func NewRoundRobin(cfg Config) (*RoundRobin, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := len(cfg.Participants)
	t := &RoundRobin{groupChat: groupChat{cfg: cfg}}
	t.next = func(_ context.Context, _ []agentchat.Message, last int) (int, error) {
		return (last + 1) % n, nil
	}
	return t, nil
}
