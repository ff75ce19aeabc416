package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/itemupdate/internal/action"
	"github.com/roach88/itemupdate/internal/archive"
	"github.com/roach88/itemupdate/internal/compiler"
	"github.com/roach88/itemupdate/internal/engine"
	"github.com/roach88/itemupdate/internal/filter"
	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/logging"
	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
	"github.com/roach88/itemupdate/internal/testutil"
)

// DefaultRunID is the run id used when a scenario sets none.
const DefaultRunID = "scenario-run"

// Harness holds the per-scenario workspace.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary workspace holding the SQLite
// repository, the source archive and the undo archive; it is removed when
// Run returns. An error means the scenario could not be executed at all;
// expectation and assertion failures are reported in the result.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	work, err := os.MkdirTemp("", "itemupdate-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer os.RemoveAll(work)

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(filepath.Join(work, "repo.db"),
		store.WithAssetDir(filepath.Join(work, "assets")),
		store.WithClock(clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  clock,
		logger: logging.Discard(),
	}

	if err := h.loadRegistries(ctx, s.Registries); err != nil {
		return nil, fmt.Errorf("failed to load registries: %w", err)
	}
	if err := h.seed(ctx, s.Repository); err != nil {
		return nil, fmt.Errorf("failed to seed repository: %w", err)
	}

	source := filepath.Join(work, "source")
	if err := writeSource(source, s.Source); err != nil {
		return nil, fmt.Errorf("failed to write source archive: %w", err)
	}

	before, err := h.snapshot(ctx, s.Repository)
	if err != nil {
		return nil, err
	}

	actions, err := buildActions(s.Actions)
	if err != nil {
		return nil, err
	}

	runID := s.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	summary, err := h.runBatch(ctx, engine.Config{
		SourceDir:    source,
		Actions:      actions,
		EPerson:      s.Options.EPerson,
		ItemField:    s.Options.ItemField,
		DryRun:       s.Options.DryRun,
		SuppressUndo: s.Options.SuppressUndo,
		Provenance:   s.Options.Provenance,
	}, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to run batch: %w", err)
	}

	result := NewResult(s.Name)
	result.Total = summary.Total()
	result.Succeeded = summary.Succeeded()
	result.Items = outcomes(summary)
	if result.State, err = h.snapshot(ctx, s.Repository); err != nil {
		return nil, err
	}
	if summary.UndoDir != "" {
		if result.UndoEntries, err = listEntries(summary.UndoDir); err != nil {
			return nil, err
		}
	}

	checkExpect(result, s.Expect)
	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError("%s", msg)
	}

	if s.Undo {
		if err := h.replayUndo(ctx, s, runID+"-undo", actions, summary, before, result); err != nil {
			return nil, err
		}
	}

	h.logger.Info("scenario complete", "scenario", s.Name, "pass", result.Pass)
	return result, nil
}

func (h *Harness) loadRegistries(ctx context.Context, paths []string) error {
	specs := make([]*ir.RegistrySpec, 0, len(paths)+1)
	spec, err := compiler.DefaultRegistry()
	if err != nil {
		return err
	}
	specs = append(specs, spec)
	for _, p := range paths {
		spec, err := compiler.LoadFile(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		specs = append(specs, spec)
	}

	for _, spec := range specs {
		if err := h.store.LoadRegistry(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) seed(ctx context.Context, items []ItemSpec) error {
	for _, spec := range items {
		fields, err := parseValues(spec.Metadata)
		if err != nil {
			return fmt.Errorf("item %s: %w", spec.Handle, err)
		}
		item, err := h.store.CreateItem(ctx, spec.Handle, fields)
		if err != nil {
			return err
		}
		for _, f := range spec.Files {
			bundle := f.Bundle
			if bundle == "" {
				bundle = repo.BundleOriginal
			}
			if _, err := h.store.AttachFile(ctx, item, bundle, f.Name, strings.NewReader(f.Content)); err != nil {
				return fmt.Errorf("item %s: %w", spec.Handle, err)
			}
		}
	}
	return nil
}

// writeSource lays out the source archive under root.
func writeSource(root string, items []SourceItem) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	for _, it := range items {
		dir := filepath.Join(root, it.Dir)
		if err := os.Mkdir(dir, 0o755); err != nil {
			return err
		}

		fields, err := parseValues(it.Metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", it.Dir, err)
		}
		if it.Handle != "" {
			uri, err := ir.NewMetadataField("dc", "identifier", "uri", "", archive.DefaultHandlePrefix+it.Handle)
			if err != nil {
				return err
			}
			fields = append([]ir.MetadataField{uri}, fields...)
		}
		if err := archive.WriteMetadata(dir, fields); err != nil {
			return fmt.Errorf("%s: %w", it.Dir, err)
		}

		for name, content := range it.Files {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
				return fmt.Errorf("%s: %w", it.Dir, err)
			}
		}
	}
	return nil
}

func parseValues(values []string) ([]ir.MetadataField, error) {
	fields := make([]ir.MetadataField, 0, len(values))
	for _, v := range values {
		f, err := ir.ParseFieldValue(v)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// buildActions registers actions in the command line's fixed order.
func buildActions(spec ActionSpec) (*action.Registry, error) {
	reg := action.NewRegistry()

	if len(spec.DeleteMetadata) > 0 {
		a := reg.DeleteMetadata()
		for _, name := range spec.DeleteMetadata {
			fn, err := ir.ParseFieldName(name, false)
			if err != nil {
				return nil, err
			}
			a.AddTarget(fn)
		}
	}
	if len(spec.AddMetadata) > 0 {
		a := reg.AddMetadata()
		for _, name := range spec.AddMetadata {
			fn, err := ir.ParseFieldName(name, false)
			if err != nil {
				return nil, err
			}
			a.AddTarget(fn)
		}
	}

	switch {
	case spec.Filter != "":
		f, err := filter.New(spec.Filter, spec.FilterProperties)
		if err != nil {
			return nil, err
		}
		reg.DeleteBitstreamsByFilter().SetFilter(f)
	case spec.DeleteBitstreams:
		reg.DeleteBitstreams()
	}

	if spec.AddBitstreams {
		reg.AddBitstreams()
	}
	return reg, nil
}

func (h *Harness) runBatch(ctx context.Context, cfg engine.Config, runID string) (*engine.Summary, error) {
	cfg.Repository = h.store
	cfg.Logger = h.logger
	cfg.Now = h.clock.Now
	cfg.RunIDs = testutil.NewFixedRunIDGenerator(runID)
	cfg.Ledger = h.store

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx)
}

// snapshot renders the seeded items in repository order.
func (h *Harness) snapshot(ctx context.Context, items []ItemSpec) ([]ItemState, error) {
	states := make([]ItemState, 0, len(items))
	for _, spec := range items {
		d, err := h.store.Describe(ctx, spec.Handle)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", spec.Handle, err)
		}

		state := ItemState{Handle: spec.Handle, Metadata: []string{}}
		for _, f := range d.Metadata {
			state.Metadata = append(state.Metadata, f.String())
		}
		for _, b := range d.Bundles {
			for _, bs := range b.Bitstreams {
				state.Bitstreams = append(state.Bitstreams, b.Name+"/"+bs.Name)
			}
		}
		states = append(states, state)
	}
	return states, nil
}

func outcomes(summary *engine.Summary) []ItemOutcome {
	out := make([]ItemOutcome, 0, len(summary.Items))
	for _, it := range summary.Items {
		o := ItemOutcome{Dir: it.Dir, Handle: it.Handle}
		if it.Err != nil {
			o.Kind = string(ir.KindOf(it.Err))
			var ie *engine.ItemError
			if errors.As(it.Err, &ie) {
				o.Stage = ie.Stage
			}
		}
		out = append(out, o)
	}
	return out
}

func listEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read undo archive: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// replayUndo runs the inverse actions over the undo archive and compares
// each seeded item with its state before the batch. Provenance notes are
// ignored since both runs may append them.
func (h *Harness) replayUndo(ctx context.Context, s *Scenario, runID string, actions *action.Registry, summary *engine.Summary, before []ItemState, result *Result) error {
	if summary.UndoDir == "" {
		result.AddError("undo: no undo archive was written")
		return nil
	}
	args := actions.UndoArgs()
	if len(args) == 0 {
		result.AddError("undo: the batch actions have no inverse")
		return nil
	}
	inverse, err := action.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("failed to parse undo actions: %w", err)
	}

	undoSummary, err := h.runBatch(ctx, engine.Config{
		SourceDir:  summary.UndoDir,
		Actions:    inverse,
		EPerson:    s.Options.EPerson,
		ItemField:  s.Options.ItemField,
		Provenance: s.Options.Provenance,
	}, runID)
	if err != nil {
		return fmt.Errorf("failed to replay undo archive: %w", err)
	}

	after, err := h.snapshot(ctx, s.Repository)
	if err != nil {
		return err
	}

	outcome := &UndoOutcome{
		Total:     undoSummary.Total(),
		Succeeded: undoSummary.Succeeded(),
		Restored:  true,
	}
	for i := range before {
		if diff := compareStates(before[i], after[i]); diff != "" {
			outcome.Restored = false
			result.AddError("undo: %s not restored: %s", before[i].Handle, diff)
		}
	}
	for _, it := range undoSummary.Failed() {
		result.AddError("undo: %s", it.Error)
	}
	result.Undo = outcome
	return nil
}

func compareStates(want, got ItemState) string {
	wantMD, gotMD := withoutProvenance(want.Metadata), withoutProvenance(got.Metadata)
	if !slices.Equal(wantMD, gotMD) {
		return fmt.Sprintf("metadata %q, want %q", gotMD, wantMD)
	}
	wantBS, gotBS := slices.Sorted(slices.Values(want.Bitstreams)), slices.Sorted(slices.Values(got.Bitstreams))
	if !slices.Equal(wantBS, gotBS) {
		return fmt.Sprintf("bitstreams %q, want %q", gotBS, wantBS)
	}
	return ""
}

// withoutProvenance drops provenance notes and sorts the rest, since a
// replayed field may come back in a different place order.
func withoutProvenance(values []string) []string {
	prefix := ir.FieldProvenance.String()
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.HasPrefix(v, prefix+"=") || strings.HasPrefix(v, prefix+"@") {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
