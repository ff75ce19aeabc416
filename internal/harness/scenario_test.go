package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalScenario = `
name: minimal
description: One item, one action
repository:
  - handle: "123/1"
source:
  - dir: item_1
    handle: "123/1"
actions:
  delete_metadata: [dc.subject]
expect:
  succeeded: 1
`

func TestLoadScenario_Minimal(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Source, 1)
	assert.Equal(t, "123/1", s.Source[0].Handle)
	assert.Equal(t, []string{"dc.subject"}, s.Actions.DeleteMetadata)
	assert.Equal(t, 1, s.Expect.Succeeded)
	assert.False(t, s.Undo)
}

func TestLoadScenario_ResolvesRegistryPaths(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "local_schema.yaml"))
	require.NoError(t, err)
	require.Len(t, s.Registries, 1)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "local.cue"), s.Registries[0])
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, minimalScenario+"assertion:\n  - type: metadata\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Repository:  []ItemSpec{{Handle: "123/1"}},
			Source:      []SourceItem{{Dir: "item_1", Handle: "123/1"}},
			Actions:     ActionSpec{AddMetadata: []string{"dc.subject"}},
			Expect:      ExpectClause{Succeeded: 1},
		}
	}
	require.NoError(t, validateScenario(valid()))

	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no source", func(s *Scenario) { s.Source = nil }, "source list is required"},
		{"missing registry", func(s *Scenario) { s.Registries = []string{"/nonexistent/x.cue"} }, "registry file not found"},
		{"blank handle", func(s *Scenario) { s.Repository[0].Handle = "" }, "handle is required"},
		{"duplicate handle", func(s *Scenario) { s.Repository = append(s.Repository, ItemSpec{Handle: "123/1"}) }, "duplicate handle"},
		{"bad repository value", func(s *Scenario) { s.Repository[0].Metadata = []string{"dc.title"} }, "repository[0].metadata[0]"},
		{"unnamed file", func(s *Scenario) { s.Repository[0].Files = []FileSpec{{Content: "x"}} }, "name is required"},
		{"nested dir", func(s *Scenario) { s.Source[0].Dir = "a/b" }, "plain directory name"},
		{"duplicate dir", func(s *Scenario) { s.Source = append(s.Source, SourceItem{Dir: "item_1"}) }, "duplicate dir"},
		{"bad source value", func(s *Scenario) { s.Source[0].Metadata = []string{"x=1"} }, "source[0].metadata[0]"},
		{"no actions", func(s *Scenario) { s.Actions = ActionSpec{} }, "at least one action"},
		{"wildcard target", func(s *Scenario) { s.Actions.AddMetadata = []string{"dc.subject.*"} }, "wildcard"},
		{"unknown filter", func(s *Scenario) { s.Actions.Filter = "nosuch" }, "actions.filter"},
		{"orphan filter properties", func(s *Scenario) { s.Actions.FilterProperties = map[string]string{"filename": ".*"} }, "requires filter"},
		{"negative succeeded", func(s *Scenario) { s.Expect.Succeeded = -1 }, "non-negative"},
		{"unknown failed dir", func(s *Scenario) { s.Expect.Failed = map[string]string{"item_9": "RESOLUTION"} }, "not a source dir"},
		{"assertion without type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "type is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "trace"}} }, "unknown assertion type"},
		{"metadata without field", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertMetadata, Handle: "123/1"}} }, "field is required"},
		{"assertion on unknown item", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertBitstreams, Handle: "999/9"}}
		}, "not in the repository"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
