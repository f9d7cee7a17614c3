// Package testutil provides testing utilities for teamrun tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// SampleTeamConfig returns a round-robin team of scripted agents as a
// decoded mapping. Each participant name maps to its replies.
// The team stops after maxTurns turns, or when a reply contains
// "TERMINATE".
func SampleTeamConfig(label string, maxTurns int, participants ...Participant) map[string]any {
	if len(participants) == 0 {
		participants = []Participant{
			{Name: "writer", Replies: []string{"first draft", "second draft"}},
			{Name: "critic", Replies: []string{"needs work", "TERMINATE"}},
		}
	}
	ps := make([]any, len(participants))
	for i, p := range participants {
		cfg := map[string]any{
			"name":    p.Name,
			"replies": toAny(p.Replies),
		}
		if p.FailAfter > 0 {
			cfg["fail_after"] = p.FailAfter
		}
		if p.Delay != "" {
			cfg["delay"] = p.Delay
		}
		ps[i] = map[string]any{
			"provider":       "scripted",
			"component_type": "agent",
			"label":          p.Name,
			"config":         cfg,
		}
	}
	return map[string]any{
		"provider":       "autogen_agentchat.teams.RoundRobinGroupChat",
		"component_type": "team",
		"version":        1,
		"label":          label,
		"config": map[string]any{
			"participants": ps,
			"max_turns":    maxTurns,
			"termination_condition": map[string]any{
				"provider": "text_mention",
				"config":   map[string]any{"text": "TERMINATE"},
			},
		},
	}
}

// Participant describes a scripted agent for SampleTeamConfig.
type Participant struct {
	Name      string
	Replies   []string
	FailAfter int
	Delay     string // Go duration, e.g. "50ms"
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// JSON marshals v or fails the test.
func JSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// YAML marshals v or fails the test.
func YAML(t *testing.T, v any) []byte {
	t.Helper()
	data, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal YAML: %v", err)
	}
	return data
}

// WriteConfig writes content to dir/name and returns the full path.
func WriteConfig(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", name, err)
	}
	return path
}

// SetupConfigDir creates a temporary directory holding files (relative
// path to content) and returns its path.
func SetupConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		WriteConfig(t, dir, name, []byte(content))
	}
	return dir
}

// MemFs returns an in-memory filesystem holding files.
func MemFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
	return fs
}
