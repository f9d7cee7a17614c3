package component

import (
	"maps"
	"os"
	"regexp"

	"github.com/subosito/gotenv"
)

// LookupFunc resolves a variable name.
type LookupFunc func(key string) (string, bool)

// Env is an immutable, layered variable lookup: overrides first, then the
// base lookup (the process environment unless replaced). Overrides are
// never written to the process environment.
type Env struct {
	overrides map[string]string
	base      LookupFunc
}

// NewEnv returns an Env layering overrides over the process environment.
func NewEnv(overrides map[string]string) Env {
	return Env{overrides: maps.Clone(overrides), base: os.LookupEnv}
}

// WithBase returns a copy of e that falls back to lookup instead of the
// process environment. A nil lookup disables the fallback.
func (e Env) WithBase(lookup LookupFunc) Env {
	e.base = lookup
	return e
}

// With returns a copy of e with additional overrides layered on top.
func (e Env) With(overrides map[string]string) Env {
	merged := maps.Clone(e.overrides)
	if merged == nil {
		merged = make(map[string]string, len(overrides))
	}
	maps.Copy(merged, overrides)
	e.overrides = merged
	return e
}

// Lookup returns the value for key and whether it was set.
func (e Env) Lookup(key string) (string, bool) {
	if v, ok := e.overrides[key]; ok {
		return v, true
	}
	if e.base != nil {
		return e.base(key)
	}
	return "", false
}

// Get returns the value for key, or "" when unset.
func (e Env) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Overrides returns a copy of the override layer.
func (e Env) Overrides() map[string]string {
	return maps.Clone(e.overrides)
}

var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces ${NAME} references in s. Unset names expand to "".
// A bare $NAME is left alone.
func (e Env) Expand(s string) string {
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		return e.Get(varRef.FindStringSubmatch(ref)[1])
	})
}

// ExpandAll returns a copy of v with Expand applied to every string in
// nested maps and lists.
func (e Env) ExpandAll(v any) any {
	switch t := v.(type) {
	case string:
		return e.Expand(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = e.ExpandAll(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = e.ExpandAll(val)
		}
		return out
	default:
		return v
	}
}

// ReadEnvFiles parses dotenv files into an override map. Later files win.
func ReadEnvFiles(paths ...string) (map[string]string, error) {
	out := make(map[string]string)
	for _, p := range paths {
		env, err := gotenv.Read(p)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, env)
	}
	return out, nil
}
