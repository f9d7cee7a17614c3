package agents

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/agentchat/models"
)

// AssistantConfig configures an Assistant.
type AssistantConfig struct {
	Name          string
	Description   string
	SystemMessage string
	Client        models.Client
	Tools         []Tool
	// MaxToolIterations bounds model calls that may request tools within a
	// single turn. Values below 1 mean 1.
	MaxToolIterations int
}

// Assistant answers with a model client and may call tools.
type Assistant struct {
	cfg   AssistantConfig
	tools map[string]Tool
	specs []models.ToolSpec
}

var _ agentchat.Agent = (*Assistant)(nil)

// NewAssistant returns an assistant owning cfg.Client.
func NewAssistant(cfg AssistantConfig) (*Assistant, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("assistant name is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("assistant %q: model client is required", cfg.Name)
	}
	if cfg.MaxToolIterations < 1 {
		cfg.MaxToolIterations = 1
	}
	a := &Assistant{cfg: cfg, tools: make(map[string]Tool, len(cfg.Tools))}
	for _, t := range cfg.Tools {
		if _, dup := a.tools[t.Name]; dup {
			return nil, fmt.Errorf("assistant %q: duplicate tool %q", cfg.Name, t.Name)
		}
		a.tools[t.Name] = t
		a.specs = append(a.specs, t.Spec())
	}
	return a, nil
}

func (a *Assistant) Name() string        { return a.cfg.Name }
func (a *Assistant) Description() string { return a.cfg.Description }

// Client returns the model client owned by the assistant.
func (a *Assistant) Client() models.Client { return a.cfg.Client }

// Respond calls the model, executing requested tools and feeding their
// results back until the model answers in text or the iteration budget
// runs out.
func (a *Assistant) Respond(ctx context.Context, history []agentchat.Message, emit agentchat.Emitter) (agentchat.Response, error) {
	var resp agentchat.Response
	prompt := a.prompt(history)

	for iteration := 1; ; iteration++ {
		completion, err := a.cfg.Client.Create(ctx, models.Request{Messages: prompt, Tools: a.specs})
		if err != nil {
			return resp, fmt.Errorf("assistant %q: model call: %w", a.cfg.Name, err)
		}
		resp.Usage = resp.Usage.Add(completion.Usage)

		if len(completion.ToolCalls) == 0 {
			usage := resp.Usage
			resp.Messages = append(resp.Messages, agentchat.TextMessage{
				From:    a.cfg.Name,
				Content: completion.Content,
				Usage:   &usage,
			})
			return resp, nil
		}

		request := agentchat.ToolCallRequest{From: a.cfg.Name, Calls: completion.ToolCalls}
		emit(request)
		resp.Messages = append(resp.Messages, request)

		result := agentchat.ToolCallResult{From: a.cfg.Name}
		for _, call := range completion.ToolCalls {
			result.Results = append(result.Results, a.execute(ctx, call))
		}
		emit(result)
		resp.Messages = append(resp.Messages, result)

		if iteration >= a.cfg.MaxToolIterations {
			// Out of budget: the tool output is the answer.
			usage := resp.Usage
			resp.Messages = append(resp.Messages, agentchat.TextMessage{
				From:    a.cfg.Name,
				Content: result.Text(),
				Usage:   &usage,
			})
			return resp, nil
		}

		prompt = append(prompt, models.ChatMessage{Role: models.RoleAssistant, Content: completion.Content, ToolCalls: completion.ToolCalls})
		for _, r := range result.Results {
			prompt = append(prompt, models.ChatMessage{Role: models.RoleTool, ToolCallID: r.CallID, Content: r.Content})
		}
	}
}

func (a *Assistant) execute(ctx context.Context, call agentchat.FunctionCall) agentchat.FunctionResult {
	out := agentchat.FunctionResult{CallID: call.ID, Name: call.Name}
	tool, ok := a.tools[call.Name]
	if !ok {
		out.Content = fmt.Sprintf("unknown tool %q", call.Name)
		out.IsError = true
		return out
	}
	content, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		out.Content = err.Error()
		out.IsError = true
		return out
	}
	out.Content = content
	return out
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// prompt converts the shared history into a model request from this
// agent's point of view. Tool traffic and stop messages are omitted.
func (a *Assistant) prompt(history []agentchat.Message) []models.ChatMessage {
	var out []models.ChatMessage
	if a.cfg.SystemMessage != "" {
		out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: a.cfg.SystemMessage})
	}
	for _, m := range history {
		if _, ok := m.(agentchat.TextMessage); !ok {
			continue
		}
		role := models.RoleUser
		if m.Source() == a.cfg.Name {
			role = models.RoleAssistant
		}
		out = append(out, models.ChatMessage{
			Role:    role,
			Content: m.Text(),
			Name:    nameSanitizer.ReplaceAllString(m.Source(), "_"),
		})
	}
	return out
}

// Close closes the model client.
func (a *Assistant) Close(context.Context) error {
	return a.cfg.Client.Close()
}
