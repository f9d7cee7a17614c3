package component

import (
	"context"
	"os"

	"github.com/Iron-Ham/teamrun/internal/agentchat"
	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/event"
	"github.com/Iron-Ham/teamrun/internal/logging"
	"github.com/Iron-Ham/teamrun/internal/teamconfig"
)

// Factory builds teams from any config source the Loader accepts.
type Factory struct {
	loader   *teamconfig.Loader
	registry *Registry
	models   ModelDefaults
	base     LookupFunc
	logger   *logging.Logger
	bus      *event.Bus
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRegistry replaces the default registry.
func WithRegistry(r *Registry) FactoryOption {
	return func(f *Factory) { f.registry = r }
}

// WithModelDefaults sets the fallback model client settings.
func WithModelDefaults(d ModelDefaults) FactoryOption {
	return func(f *Factory) { f.models = d }
}

// WithBaseEnv replaces the process environment as the bottom Env layer.
func WithBaseEnv(lookup LookupFunc) FactoryOption {
	return func(f *Factory) { f.base = lookup }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// WithBus publishes team.built events to bus.
func WithBus(b *event.Bus) FactoryOption {
	return func(f *Factory) { f.bus = b }
}

// NewFactory creates a Factory that resolves sources through loader.
func NewFactory(loader *teamconfig.Loader, opts ...FactoryOption) *Factory {
	f := &Factory{
		loader:   loader,
		registry: DefaultRegistry(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.NopLogger()
	}
	f.logger = f.logger.WithComponent("factory")
	return f
}

// Registry returns the factory's registry.
func (f *Factory) Registry() *Registry { return f.registry }

// Resolve turns source into a validated TeamConfig. A string is a file
// path; anything else goes through Loader.LoadPayload.
func (f *Factory) Resolve(source any) (teamconfig.TeamConfig, error) {
	if path, ok := source.(string); ok {
		return f.loader.LoadOne(path)
	}
	return f.loader.LoadPayload(source)
}

// Build loads source and constructs a fresh team. env overrides are
// visible to the components for this call only; they are never written
// to the process environment. The caller owns the returned team and must
// Close it.
func (f *Factory) Build(ctx context.Context, source any, env map[string]string) (agentchat.Team, error) {
	cfg, err := f.Resolve(source)
	if err != nil {
		return nil, err
	}
	return f.BuildConfig(ctx, cfg, NewEnv(env).WithBase(f.baseLookup()))
}

// BuildConfig constructs a team from an already loaded config.
func (f *Factory) BuildConfig(ctx context.Context, cfg teamconfig.TeamConfig, env Env) (agentchat.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewComponentConstructionError("build cancelled", err).
			WithProvider(cfg.Kind()).
			WithLabel(cfg.Label)
	}

	builder, ok := f.registry.Team(cfg.Kind())
	if !ok {
		return nil, errors.NewUnsupportedComponentError(cfg.Kind())
	}

	expanded := cfg.Clone()
	expanded.Config, _ = env.ExpandAll(cfg.Config).(map[string]any)

	bc := &BuildContext{
		Env:      env,
		Registry: f.registry,
		Models:   f.models,
		Logger:   f.logger.WithTeam(cfg.Label, cfg.Kind()),
	}
	team, err := builder(ctx, bc, expanded)
	if err != nil {
		var unsupported *errors.UnsupportedComponentError
		if errors.As(err, &unsupported) {
			return nil, err
		}
		return nil, errors.NewComponentConstructionError("building team", err).
			WithProvider(cfg.Kind()).
			WithLabel(cfg.Label)
	}

	participants := len(cfg.Participants())
	f.logger.Info("built team",
		"team", cfg.Name(),
		"provider", cfg.Kind(),
		"participants", participants,
		"overrides", len(env.Overrides()))
	f.bus.Publish(event.NewTeamBuiltEvent(cfg.Kind(), cfg.Label, participants))
	return team, nil
}

func (f *Factory) baseLookup() LookupFunc {
	if f.base != nil {
		return f.base
	}
	return os.LookupEnv
}
