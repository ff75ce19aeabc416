package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/itemupdate/internal/filter"
	"github.com/roach88/itemupdate/internal/ir"
)

// Scenario defines one batch run and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Registries lists CUE registry files loaded after the built-in one.
	// Relative paths are resolved against the scenario file.
	Registries []string `yaml:"registries,omitempty"`

	// RunID fixes the batch run id. Defaults to "scenario-run".
	RunID string `yaml:"run_id,omitempty"`

	// Repository is the items present before the batch.
	Repository []ItemSpec `yaml:"repository"`

	// Source is the batch archive, one entry per item directory.
	Source []SourceItem `yaml:"source"`

	Actions ActionSpec  `yaml:"actions"`
	Options OptionsSpec `yaml:"options,omitempty"`

	Expect ExpectClause `yaml:"expect"`

	// Assertions validate the repository and undo archive after the batch.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Undo replays the undo archive and checks the repository is restored.
	Undo bool `yaml:"undo,omitempty"`
}

// ItemSpec is a repository item created before the batch.
type ItemSpec struct {
	Handle string `yaml:"handle"`

	// Metadata values in name[@lang]=value form.
	Metadata []string `yaml:"metadata,omitempty"`

	Files []FileSpec `yaml:"files,omitempty"`
}

// FileSpec is a bitstream attached to a seeded item.
type FileSpec struct {
	Name    string `yaml:"name"`
	Bundle  string `yaml:"bundle,omitempty"` // default ORIGINAL
	Content string `yaml:"content"`
}

// SourceItem is one item directory of the source archive.
type SourceItem struct {
	Dir string `yaml:"dir"`

	// Handle, when set, is written as the dc.identifier.uri value.
	Handle string `yaml:"handle,omitempty"`

	// Metadata values in name[@lang]=value form.
	Metadata []string `yaml:"metadata,omitempty"`

	// Files maps file names (contents, delete_contents, bitstreams) to
	// their content.
	Files map[string]string `yaml:"files,omitempty"`
}

// ActionSpec selects the batch actions. They run in the command line's
// fixed order.
type ActionSpec struct {
	AddMetadata      []string          `yaml:"add_metadata,omitempty"`
	DeleteMetadata   []string          `yaml:"delete_metadata,omitempty"`
	AddBitstreams    bool              `yaml:"add_bitstreams,omitempty"`
	DeleteBitstreams bool              `yaml:"delete_bitstreams,omitempty"`
	Filter           string            `yaml:"filter,omitempty"`
	FilterProperties map[string]string `yaml:"filter_properties,omitempty"`
}

// OptionsSpec carries the run-wide options.
type OptionsSpec struct {
	EPerson      string `yaml:"eperson,omitempty"`
	ItemField    string `yaml:"item_field,omitempty"`
	DryRun       bool   `yaml:"dry_run,omitempty"`
	SuppressUndo bool   `yaml:"suppress_undo,omitempty"`
	Provenance   bool   `yaml:"provenance,omitempty"`
}

// ExpectClause is the expected batch outcome.
type ExpectClause struct {
	Succeeded int `yaml:"succeeded"`

	// Failed maps failing item directories to their error kind.
	Failed map[string]string `yaml:"failed,omitempty"`
}

// Assertion validates the repository or the undo archive after the batch.
type Assertion struct {
	// Type is one of metadata, bitstreams, undo_entries.
	Type string `yaml:"type"`

	// Handle selects the item (metadata, bitstreams).
	Handle string `yaml:"handle,omitempty"`

	// Field is the field to read (metadata). A "*" qualifier matches any.
	Field string `yaml:"field,omitempty"`

	// Values are the expected values in order (metadata).
	Values []string `yaml:"values,omitempty"`

	// Bundle restricts bitstreams to one bundle (bitstreams).
	Bundle string `yaml:"bundle,omitempty"`

	// Names are the expected bitstream names (bitstreams). Without Bundle
	// each name is written BUNDLE/name.
	Names []string `yaml:"names,omitempty"`

	// Entries are the expected undo archive entries (undo_entries).
	Entries []string `yaml:"entries,omitempty"`
}

// Assertion type constants.
const (
	AssertMetadata    = "metadata"
	AssertBitstreams  = "bitstreams"
	AssertUndoEntries = "undo_entries"
)

// LoadScenario reads and parses a scenario YAML file, resolving registry
// paths against the file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" for "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Registries {
		if !filepath.IsAbs(p) {
			scenario.Registries[i] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Source) == 0 {
		return fmt.Errorf("source list is required and must be non-empty")
	}

	for _, p := range s.Registries {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("registry file not found: %s", p)
		}
	}

	handles := map[string]bool{}
	for i, item := range s.Repository {
		if item.Handle == "" {
			return fmt.Errorf("repository[%d]: handle is required", i)
		}
		if handles[item.Handle] {
			return fmt.Errorf("repository[%d]: duplicate handle %q", i, item.Handle)
		}
		handles[item.Handle] = true
		if err := validateValues(fmt.Sprintf("repository[%d]", i), item.Metadata); err != nil {
			return err
		}
		for j, f := range item.Files {
			if f.Name == "" {
				return fmt.Errorf("repository[%d].files[%d]: name is required", i, j)
			}
		}
	}

	dirs := map[string]bool{}
	for i, item := range s.Source {
		if item.Dir == "" || filepath.Base(item.Dir) != item.Dir {
			return fmt.Errorf("source[%d]: dir must be a plain directory name, got %q", i, item.Dir)
		}
		if dirs[item.Dir] {
			return fmt.Errorf("source[%d]: duplicate dir %q", i, item.Dir)
		}
		dirs[item.Dir] = true
		if err := validateValues(fmt.Sprintf("source[%d]", i), item.Metadata); err != nil {
			return err
		}
	}

	if err := validateActions(s.Actions); err != nil {
		return err
	}

	if s.Expect.Succeeded < 0 {
		return fmt.Errorf("expect.succeeded must be non-negative")
	}
	for dir := range s.Expect.Failed {
		if !dirs[dir] {
			return fmt.Errorf("expect.failed: %q is not a source dir", dir)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], handles); err != nil {
			return err
		}
	}
	return nil
}

func validateValues(where string, values []string) error {
	for j, v := range values {
		if _, err := ir.ParseFieldValue(v); err != nil {
			return fmt.Errorf("%s.metadata[%d]: %w", where, j, err)
		}
	}
	return nil
}

func validateActions(a ActionSpec) error {
	for _, list := range [][]string{a.AddMetadata, a.DeleteMetadata} {
		for _, name := range list {
			if _, err := ir.ParseFieldName(name, false); err != nil {
				return fmt.Errorf("actions: %w", err)
			}
		}
	}
	if a.Filter != "" {
		if _, err := filter.New(a.Filter, a.FilterProperties); err != nil {
			return fmt.Errorf("actions.filter: %w", err)
		}
	} else if len(a.FilterProperties) > 0 {
		return fmt.Errorf("actions: filter_properties requires filter")
	}

	if len(a.AddMetadata) == 0 && len(a.DeleteMetadata) == 0 &&
		!a.AddBitstreams && !a.DeleteBitstreams && a.Filter == "" {
		return fmt.Errorf("actions: at least one action is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, handles map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertMetadata:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for metadata", index)
		}
		if _, err := ir.ParseFieldName(a.Field, true); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertBitstreams:
	case AssertUndoEntries:
		return nil
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if !handles[a.Handle] {
		return fmt.Errorf("assertions[%d]: handle %q is not in the repository", index, a.Handle)
	}
	return nil
}
