package component

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/agentchat/agents"
	"github.com/Iron-Ham/teamrun/internal/agentchat/models"
	"github.com/Iron-Ham/teamrun/internal/agentchat/teams"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/teamconfig"
)

func registerBuiltins(r *Registry) {
	r.RegisterTeam(buildRoundRobin, "round_robin", "RoundRobinGroupChat")
	r.RegisterTeam(buildSelector, "selector", "SelectorGroupChat")

	r.RegisterAgent(buildScripted, "scripted", "ScriptedAgent")
	r.RegisterAgent(buildAssistant, "assistant", "AssistantAgent")

	r.RegisterModel(buildOpenAI, "openai", "OpenAIChatCompletionClient")
	r.RegisterModel(buildReplay, "replay", "ReplayChatCompletionClient")

	r.RegisterTermination(buildTextMention, "text_mention", "TextMentionTermination")
	r.RegisterTermination(buildMaxMessages, "max_messages", "MaxMessageTermination")
	r.RegisterTermination(buildAnyOf, "any_of", "OrTerminationCondition")
}

// -----------------------------------------------------------------------------
// Teams
// -----------------------------------------------------------------------------

type groupChatPayload struct {
	Participants []Spec `mapstructure:"participants"`
	MaxTurns     int    `mapstructure:"max_turns"`
	Termination  *Spec  `mapstructure:"termination_condition"`
}

type selectorPayload struct {
	ModelClient          *Spec  `mapstructure:"model_client"`
	SelectorPrompt       string `mapstructure:"selector_prompt"`
	AllowRepeatedSpeaker bool   `mapstructure:"allow_repeated_speaker"`
}

// groupChatConfig builds the participants and termination condition
// shared by every group chat. On error, participants built so far are
// closed.
func groupChatConfig(ctx context.Context, bc *BuildContext, cfg teamconfig.TeamConfig) (teams.Config, error) {
	var p groupChatPayload
	if err := Decode(cfg.Config, &p); err != nil {
		return teams.Config{}, err
	}

	out := teams.Config{Name: cfg.Name(), MaxTurns: p.MaxTurns}
	for i, spec := range p.Participants {
		agent, err := bc.Agent(ctx, spec)
		if err != nil {
			closeAgents(ctx, out.Participants)
			return teams.Config{}, errors.Wrapf(err, "participant %d (%s)", i, spec.Kind())
		}
		out.Participants = append(out.Participants, agent)
	}
	if p.Termination != nil {
		cond, err := bc.Termination(ctx, *p.Termination)
		if err != nil {
			closeAgents(ctx, out.Participants)
			return teams.Config{}, errors.Wrap(err, "termination_condition")
		}
		out.Termination = cond
	}
	return out, nil
}

func closeAgents(ctx context.Context, agents []agentchat.Agent) {
	for _, a := range agents {
		_ = a.Close(ctx)
	}
}

func buildRoundRobin(ctx context.Context, bc *BuildContext, cfg teamconfig.TeamConfig) (agentchat.Team, error) {
	gc, err := groupChatConfig(ctx, bc, cfg)
	if err != nil {
		return nil, err
	}
	team, err := teams.NewRoundRobin(gc)
	if err != nil {
		closeAgents(ctx, gc.Participants)
		return nil, err
	}
	return team, nil
}

func buildSelector(ctx context.Context, bc *BuildContext, cfg teamconfig.TeamConfig) (agentchat.Team, error) {
	var p selectorPayload
	if err := Decode(cfg.Config, &p); err != nil {
		return nil, err
	}
	gc, err := groupChatConfig(ctx, bc, cfg)
	if err != nil {
		return nil, err
	}

	sc := teams.SelectorConfig{
		Config:               gc,
		Prompt:               p.SelectorPrompt,
		AllowRepeatedSpeaker: p.AllowRepeatedSpeaker,
	}
	if p.ModelClient != nil {
		client, err := bc.Model(ctx, *p.ModelClient)
		if err != nil {
			closeAgents(ctx, gc.Participants)
			return nil, errors.Wrap(err, "model_client")
		}
		sc.Client = client
	}

	team, err := teams.NewSelector(sc)
	if err != nil {
		closeAgents(ctx, gc.Participants)
		if sc.Client != nil {
			_ = sc.Client.Close()
		}
		return nil, err
	}
	return team, nil
}

// -----------------------------------------------------------------------------
// Agents
// -----------------------------------------------------------------------------

type scriptedPayload struct {
	Name        string        `mapstructure:"name"`
	Description string        `mapstructure:"description"`
	Replies     []string      `mapstructure:"replies"`
	FailAfter   int           `mapstructure:"fail_after"`
	Delay       time.Duration `mapstructure:"delay"`
	ChunkSize   int           `mapstructure:"chunk_size"`
}

func buildScripted(_ context.Context, _ *BuildContext, spec Spec) (agentchat.Agent, error) {
	var p scriptedPayload
	if err := Decode(spec.Config, &p); err != nil {
		return nil, err
	}
	return agents.NewScripted(agents.ScriptedConfig{
		Name:        firstNonEmpty(p.Name, spec.Label),
		Description: firstNonEmpty(p.Description, spec.Description),
		Replies:     p.Replies,
		FailAfter:   p.FailAfter,
		Delay:       p.Delay,
		ChunkSize:   p.ChunkSize,
	})
}

type assistantPayload struct {
	Name              string   `mapstructure:"name"`
	Description       string   `mapstructure:"description"`
	SystemMessage     string   `mapstructure:"system_message"`
	ModelClient       *Spec    `mapstructure:"model_client"`
	Tools             []string `mapstructure:"tools"`
	MaxToolIterations int      `mapstructure:"max_tool_iterations"`
}

func buildAssistant(ctx context.Context, bc *BuildContext, spec Spec) (agentchat.Agent, error) {
	var p assistantPayload
	if err := Decode(spec.Config, &p); err != nil {
		return nil, err
	}
	name := firstNonEmpty(p.Name, spec.Label)
	if p.ModelClient == nil {
		return nil, fmt.Errorf("assistant %q: model_client is required", name)
	}

	tools := make([]agents.Tool, 0, len(p.Tools))
	for _, toolName := range p.Tools {
		tool, ok := agents.BuiltinTool(toolName)
		if !ok {
			return nil, fmt.Errorf("assistant %q: unknown tool %q (available: %v)", name, toolName, agents.BuiltinToolNames())
		}
		tools = append(tools, tool)
	}

	client, err := bc.Model(ctx, *p.ModelClient)
	if err != nil {
		return nil, errors.Wrapf(err, "assistant %q: model_client", name)
	}
	a, err := agents.NewAssistant(agents.AssistantConfig{
		Name:              name,
		Description:       firstNonEmpty(p.Description, spec.Description),
		SystemMessage:     p.SystemMessage,
		Client:            client,
		Tools:             tools,
		MaxToolIterations: p.MaxToolIterations,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return a, nil
}

// -----------------------------------------------------------------------------
// Model clients
// -----------------------------------------------------------------------------

// DefaultAPIKeyEnv is consulted when an OpenAI payload names no key.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

type openAIPayload struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	APIKeyEnv   string        `mapstructure:"api_key_env"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature any           `mapstructure:"temperature"`
}

func buildOpenAI(_ context.Context, bc *BuildContext, spec Spec) (models.Client, error) {
	var p openAIPayload
	if err := Decode(spec.Config, &p); err != nil {
		return nil, err
	}

	key := p.APIKey
	if key == "" {
		keyEnv := firstNonEmpty(p.APIKeyEnv, DefaultAPIKeyEnv)
		key = bc.Env.Get(keyEnv)
		if key == "" {
			return nil, fmt.Errorf("openai model %q: api key not set (looked up %s)", p.Model, keyEnv)
		}
	}

	cfg := models.OpenAIConfig{
		Model:   p.Model,
		APIKey:  key,
		BaseURL: firstNonEmpty(p.BaseURL, bc.Env.Get("OPENAI_BASE_URL"), bc.Models.BaseURL),
		Timeout: p.Timeout,
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = bc.Models.Timeout
	}
	if p.Temperature != nil {
		t, err := cast.ToFloat64E(p.Temperature)
		if err != nil {
			return nil, fmt.Errorf("openai model %q: temperature: %w", p.Model, err)
		}
		cfg.Temperature = &t
	}
	return models.NewOpenAI(cfg)
}

type replayPayload struct {
	Model     string `mapstructure:"model"`
	Responses []any  `mapstructure:"responses"`
}

type replayResponse struct {
	Content      string `mapstructure:"content"`
	FinishReason string `mapstructure:"finish_reason"`
}

func buildReplay(_ context.Context, _ *BuildContext, spec Spec) (models.Client, error) {
	var p replayPayload
	if err := Decode(spec.Config, &p); err != nil {
		return nil, err
	}
	completions := make([]models.Completion, 0, len(p.Responses))
	for i, raw := range p.Responses {
		if m, ok := raw.(map[string]any); ok {
			var r replayResponse
			if err := Decode(m, &r); err != nil {
				return nil, fmt.Errorf("responses[%d]: %w", i, err)
			}
			completions = append(completions, models.Completion{Content: r.Content, FinishReason: r.FinishReason})
			continue
		}
		content, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("responses[%d]: %w", i, err)
		}
		completions = append(completions, models.Completion{Content: content, FinishReason: "stop"})
	}
	return models.NewReplay(p.Model, completions...), nil
}

// -----------------------------------------------------------------------------
// Termination conditions
// -----------------------------------------------------------------------------

type textMentionPayload struct {
	Text    string   `mapstructure:"text"`
	Sources []string `mapstructure:"sources"`
}

func buildTextMention(_ context.Context, _ *BuildContext, spec Spec) (agentchat.TerminationCondition, error) {
	var p textMentionPayload
	if err := Decode(spec.Config, &p); err != nil {
		return nil, err
	}
	if p.Text == "" {
		return nil, fmt.Errorf("text_mention: text is required")
	}
	return &agentchat.TextMention{Text: p.Text, Sources: p.Sources}, nil
}

type maxMessagesPayload struct {
	MaxMessages int `mapstructure:"max_messages"`
}

func buildMaxMessages(_ context.Context, _ *BuildContext, spec Spec) (agentchat.TerminationCondition, error) {
	var p maxMessagesPayload
	if err := Decode(spec.Config, &p); err != nil {
		return nil, err
	}
	if p.MaxMessages < 1 {
		return nil, fmt.Errorf("max_messages must be positive, got %d", p.MaxMessages)
	}
	return &agentchat.MaxMessages{Max: p.MaxMessages}, nil
}

type anyOfPayload struct {
	Conditions []Spec `mapstructure:"conditions"`
}

func buildAnyOf(ctx context.Context, bc *BuildContext, spec Spec) (agentchat.TerminationCondition, error) {
	var p anyOfPayload
	if err := Decode(spec.Config, &p); err != nil {
		return nil, err
	}
	if len(p.Conditions) == 0 {
		return nil, fmt.Errorf("any_of: at least one condition is required")
	}
	out := make(agentchat.AnyOf, 0, len(p.Conditions))
	for i, c := range p.Conditions {
		cond, err := bc.Termination(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("conditions[%d]: %w", i, err)
		}
		out = append(out, cond)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
