package teams

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/agentchat/models"
)

// DefaultSelectorPrompt is used when SelectorConfig.Prompt is empty. The
// placeholders {roles}, {participants} and {history} are substituted.
const DefaultSelectorPrompt = `You are in a role play game. The following roles are available:
{roles}.
Read the following conversation. Then select the next role from {participants} to play. Only return the role.

{history}

Read the above conversation. Then select the next role from {participants} to play. Only return the role.`

// SelectorConfig configures a Selector team.
type SelectorConfig struct {
	Config
	// Client, when set, is asked to pick the next speaker. The team owns it.
	Client models.Client
	Prompt string
	// AllowRepeatedSpeaker lets the previous speaker be chosen again.
	AllowRepeatedSpeaker bool
}

// Selector picks the next speaker each turn: by asking a model when one is
// configured, otherwise by the last message mentioning a participant, and
// finally in round-robin order.
type Selector struct {
	groupChat
	sel SelectorConfig
}

var _ agentchat.Team = (*Selector)(nil)

// NewSelector validates cfg and returns a selector team.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultSelectorPrompt
	}
	t := &Selector{groupChat: groupChat{cfg: cfg.Config}, sel: cfg}
	t.next = t.selectSpeaker
	if cfg.Client != nil {
		t.closers = append(t.closers, func(context.Context) error { return cfg.Client.Close() })
	}
	return t, nil
}

func (t *Selector) candidates(last int) []int {
	var out []int
	for i := range t.cfg.Participants {
		if i == last && !t.sel.AllowRepeatedSpeaker && len(t.cfg.Participants) > 1 {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (t *Selector) selectSpeaker(ctx context.Context, history []agentchat.Message, last int) (int, error) {
	candidates := t.candidates(last)
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	if t.sel.Client != nil {
		completion, err := t.sel.Client.Create(ctx, models.Request{
			Messages: []models.ChatMessage{{Role: models.RoleSystem, Content: t.render(history, candidates)}},
		})
		if err != nil {
			return 0, fmt.Errorf("selector model: %w", err)
		}
		if idx, ok := t.mentioned(completion.Content, candidates); ok {
			return idx, nil
		}
	}

	if len(history) > 0 {
		if idx, ok := t.mentioned(history[len(history)-1].Text(), candidates); ok {
			return idx, nil
		}
	}

	for _, idx := range candidates {
		if idx > last {
			return idx, nil
		}
	}
	return candidates[0], nil
}

// mentioned returns the first candidate named as a whole word in text.
func (t *Selector) mentioned(text string, candidates []int) (int, bool) {
	best, bestPos := -1, len(text)+1
	for _, idx := range candidates {
		name := t.cfg.Participants[idx].Name()
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < bestPos {
			best, bestPos = idx, loc[0]
		}
	}
	return best, best >= 0
}

func (t *Selector) render(history []agentchat.Message, candidates []int) string {
	var roles, names, lines []string
	for _, idx := range candidates {
		p := t.cfg.Participants[idx]
		roles = append(roles, fmt.Sprintf("%s: %s", p.Name(), p.Description()))
		names = append(names, p.Name())
	}
	for _, m := range history {
		if _, ok := m.(agentchat.TextMessage); ok {
			lines = append(lines, fmt.Sprintf("%s: %s", m.Source(), m.Text()))
		}
	}
	return strings.NewReplacer(
		"{roles}", strings.Join(roles, "\n"),
		"{participants}", "["+strings.Join(names, ", ")+"]",
		"{history}", strings.Join(lines, "\n"),
	).Replace(t.sel.Prompt)
}
