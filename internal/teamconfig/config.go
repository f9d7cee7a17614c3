// Package teamconfig loads declarative team configurations from JSON and
// YAML documents, in-memory payloads and directories.
package teamconfig

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/teamrun/internal/errors"
)

// TeamConfig is the normalized, format-agnostic description of a team.
// Treat it as immutable; use Clone before handing it to code that mutates.
type TeamConfig struct {
	// Provider is the type tag selecting an implementation, e.g.
	// "round_robin" or "autogen_agentchat.teams.RoundRobinGroupChat".
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty" mapstructure:"provider"`
	// ComponentType is "team" for exported components. Legacy documents
	// put the type tag here and leave Provider empty.
	ComponentType    string         `json:"component_type,omitempty" yaml:"component_type,omitempty" mapstructure:"component_type"`
	Version          int            `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
	ComponentVersion int            `json:"component_version,omitempty" yaml:"component_version,omitempty" mapstructure:"component_version"`
	Label            string         `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
	Description      string         `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Config           map[string]any `json:"config" yaml:"config" mapstructure:"config"`

	// Source is the file the config was loaded from; empty for payloads.
	Source string `json:"-" yaml:"-" mapstructure:"-"`
}

// Kind returns the discriminator used to pick an implementation.
func (c TeamConfig) Kind() string {
	if c.Provider != "" {
		return c.Provider
	}
	return c.ComponentType
}

// Name returns the label, falling back to the kind.
func (c TeamConfig) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Kind()
}

// Participants returns the raw participant entries, or nil when absent.
func (c TeamConfig) Participants() []any {
	ps, _ := c.Config["participants"].([]any)
	return ps
}

// Clone returns a deep copy of c.
func (c TeamConfig) Clone() TeamConfig {
	out := c
	out.Config, _ = deepCopy(c.Config).(map[string]any)
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// Validate checks the structural invariants of a team config.
func (c TeamConfig) Validate() error {
	if strings.TrimSpace(c.Kind()) == "" {
		return errors.NewConfigValidationError("missing component type: provider or component_type is required").
			WithSource(c.Source).
			WithField("provider")
	}
	if c.Config == nil {
		return errors.NewConfigValidationError("missing component payload").
			WithSource(c.Source).
			WithField("config")
	}
	if raw, ok := c.Config["participants"]; ok {
		ps, isList := raw.([]any)
		if !isList {
			return errors.NewConfigValidationError("participants must be a list").
				WithSource(c.Source).
				WithField("config.participants").
				WithValue(raw)
		}
		if len(ps) == 0 {
			return errors.NewConfigValidationError("at least one participant is required").
				WithSource(c.Source).
				WithField("config.participants").
				WithValue(ps)
		}
		for i, p := range ps {
			if _, ok := p.(map[string]any); !ok {
				return errors.NewConfigValidationError("participant must be a mapping").
					WithSource(c.Source).
					WithField(fmt.Sprintf("config.participants[%d]", i)).
					WithValue(p)
			}
		}
	}
	return nil
}

// normalize converts decoder output into plain map[string]any / []any
// trees. YAML may produce map[any]any for non-string keys.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
