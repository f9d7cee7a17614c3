// Package component turns team configurations into runnable teams. A
// Registry maps type tags to builders and a Factory drives a build with a
// scoped set of environment overrides.
package component

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/agentchat/models"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/logging"
	"github.com/Iron-Ham/teamrun/internal/teamconfig"
)

// Spec is a nested component reference inside a team payload, such as a
// participant, a model client or a termination condition.
type Spec struct {
	Provider      string         `mapstructure:"provider"`
	ComponentType string         `mapstructure:"component_type"`
	Label         string         `mapstructure:"label"`
	Description   string         `mapstructure:"description"`
	Config        map[string]any `mapstructure:"config"`
}

// Kind returns the type tag, preferring Provider.
func (s Spec) Kind() string {
	if s.Provider != "" {
		return s.Provider
	}
	return s.ComponentType
}

// ModelDefaults fill in model client settings a payload leaves out.
type ModelDefaults struct {
	BaseURL string
	Timeout time.Duration
}

// BuildContext carries everything a builder may need. It is scoped to a
// single Factory.Build call.
type BuildContext struct {
	Env      Env
	Registry *Registry
	Models   ModelDefaults
	Logger   *logging.Logger
}

// TeamBuilder constructs a team from a validated config whose payload
// has already been expanded against the build's Env.
type TeamBuilder func(ctx context.Context, bc *BuildContext, cfg teamconfig.TeamConfig) (agentchat.Team, error)

// AgentBuilder constructs a participant.
type AgentBuilder func(ctx context.Context, bc *BuildContext, spec Spec) (agentchat.Agent, error)

// ModelBuilder constructs a model client.
type ModelBuilder func(ctx context.Context, bc *BuildContext, spec Spec) (models.Client, error)

// TerminationBuilder constructs a termination condition.
type TerminationBuilder func(ctx context.Context, bc *BuildContext, spec Spec) (agentchat.TerminationCondition, error)

// table resolves a tag exactly, then by its last dotted segment, so
// "autogen_agentchat.teams.RoundRobinGroupChat" finds "RoundRobinGroupChat".
type table[B any] map[string]B

func (t table[B]) lookup(tag string) (B, bool) {
	if b, ok := t[tag]; ok {
		return b, true
	}
	if i := strings.LastIndex(tag, "."); i >= 0 {
		b, ok := t[tag[i+1:]]
		return b, ok
	}
	var zero B
	return zero, false
}

// Registry maps type tags to builders. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	teams        table[TeamBuilder]
	agents       table[AgentBuilder]
	models       table[ModelBuilder]
	terminations table[TerminationBuilder]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		teams:        make(table[TeamBuilder]),
		agents:       make(table[AgentBuilder]),
		models:       make(table[ModelBuilder]),
		terminations: make(table[TerminationBuilder]),
	}
}

// DefaultRegistry returns a registry holding the built-in components.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// RegisterTeam binds b to each tag, replacing earlier bindings.
func (r *Registry) RegisterTeam(b TeamBuilder, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range tags {
		r.teams[tag] = b
	}
}

// RegisterAgent binds b to each tag.
func (r *Registry) RegisterAgent(b AgentBuilder, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range tags {
		r.agents[tag] = b
	}
}

// RegisterModel binds b to each tag.
func (r *Registry) RegisterModel(b ModelBuilder, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range tags {
		r.models[tag] = b
	}
}

// RegisterTermination binds b to each tag.
func (r *Registry) RegisterTermination(b TerminationBuilder, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range tags {
		r.terminations[tag] = b
	}
}

// Team returns the team builder for tag.
func (r *Registry) Team(tag string) (TeamBuilder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teams.lookup(tag)
}

// Supports reports whether tag names a registered team.
func (r *Registry) Supports(tag string) bool {
	_, ok := r.Team(tag)
	return ok
}

// TeamTags returns the registered team tags, sorted.
func (r *Registry) TeamTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.teams))
	for tag := range r.teams {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Agent builds a participant from spec.
func (bc *BuildContext) Agent(ctx context.Context, spec Spec) (agentchat.Agent, error) {
	bc.Registry.mu.RLock()
	b, ok := bc.Registry.agents.lookup(spec.Kind())
	bc.Registry.mu.RUnlock()
	if !ok {
		return nil, errors.NewUnsupportedComponentError(spec.Kind())
	}
	return b(ctx, bc, spec)
}

// Model builds a model client from spec.
func (bc *BuildContext) Model(ctx context.Context, spec Spec) (models.Client, error) {
	bc.Registry.mu.RLock()
	b, ok := bc.Registry.models.lookup(spec.Kind())
	bc.Registry.mu.RUnlock()
	if !ok {
		return nil, errors.NewUnsupportedComponentError(spec.Kind())
	}
	return b(ctx, bc, spec)
}

// Termination builds a termination condition from spec.
func (bc *BuildContext) Termination(ctx context.Context, spec Spec) (agentchat.TerminationCondition, error) {
	bc.Registry.mu.RLock()
	b, ok := bc.Registry.terminations.lookup(spec.Kind())
	bc.Registry.mu.RUnlock()
	if !ok {
		return nil, errors.NewUnsupportedComponentError(spec.Kind())
	}
	return b(ctx, bc, spec)
}

// Decode decodes a payload into out. Strings are coerced to numbers,
// booleans and durations where the target field needs them.
func Decode(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
