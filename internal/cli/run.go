package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/itemupdate/internal/action"
	"github.com/roach88/itemupdate/internal/engine"
	"github.com/roach88/itemupdate/internal/filter"
	"github.com/roach88/itemupdate/internal/ir"
)

// metricsNamespace prefixes every metric written by --metrics-file.
const metricsNamespace = "itemupdate"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	Source           string
	EPerson          string
	AddMetadata      []string
	DeleteMetadata   []string
	AddBitstreams    bool
	DeleteBitstreams bool
	Filter           string
	FilterConfig     string
	ItemField        string
	Provenance       bool
	DryRun           bool
	SuppressUndo     bool
	MetricsFile      string

	// RunIDs and Now override the run id generator and clock (for testing).
	RunIDs engine.RunIDGenerator
	Now    func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a batch of item updates from a source archive",
		Long: `Apply metadata and bitstream changes to existing items.

Every subdirectory of the source archive describes one item: a
dublin_core.xml (plus optional metadata_<schema>.xml files) identifying the
item, a contents manifest of bitstreams to add and a delete_contents list of
bitstream ids to remove. Actions run in a fixed order: delete metadata, add
metadata, delete bitstreams, add bitstreams.

Unless the run is a dry run (-t) or undo is suppressed (-z), an undo archive
undo_<source>_<N> is written beside the source together with a replay
command in undo_<source>_<N>_command.sh.

Example:
  itemupdate run -s ./batch -a dc.subject -P -e curator@example.org
  itemupdate run -s ./batch -D -F original --filter-config filter.yaml
  itemupdate run -s ./batch -A -t`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Source, "source", "s", "", "source archive directory (required)")
	f.StringVarP(&opts.EPerson, "eperson", "e", "", "operator named in provenance notes")
	f.StringArrayVarP(&opts.AddMetadata, "add-metadata", "a", nil, "add values of this field (schema.element[.qualifier]), repeatable")
	f.StringArrayVarP(&opts.DeleteMetadata, "delete-metadata", "d", nil, "delete all values of this field, repeatable")
	f.BoolVarP(&opts.AddBitstreams, "add-bitstreams", "A", false, "add the bitstreams listed in each contents file")
	f.BoolVarP(&opts.DeleteBitstreams, "delete-bitstreams", "D", false, "delete the bitstreams listed in each delete_contents file")
	f.StringVarP(&opts.Filter, "filter", "F", "", "delete bitstreams accepted by this filter ("+strings.Join(filter.Names(), ", ")+")")
	f.StringVar(&opts.FilterConfig, "filter-config", "", "YAML file with filter properties")
	f.StringVarP(&opts.ItemField, "item-field", "i", "", "field identifying items (default dc.identifier.uri by handle)")
	f.BoolVarP(&opts.Provenance, "provenance", "P", false, "append dc.description.provenance notes")
	f.BoolVarP(&opts.DryRun, "test", "t", false, "dry run: report what would change, change nothing")
	f.BoolVarP(&opts.SuppressUndo, "suppress-undo", "z", false, "do not write an undo archive")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when the batch ends")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runBatch(opts *RunOptions, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	cfg := opts.Config

	reg, err := buildRegistry(opts)
	if err != nil {
		return formatter.Fail("invalid actions", err)
	}

	itemField := opts.ItemField
	if itemField == "" {
		itemField = cfg.Archive.ItemField
	}
	if itemField != "" {
		if _, err := ir.ParseFieldName(itemField, false); err != nil {
			return formatter.Fail("invalid item field", ir.NewConfigError("item-field", itemField, err))
		}
	}

	eperson := opts.EPerson
	if eperson == "" {
		eperson = cfg.EPerson
	}

	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer opts.closeStore(st)

	var metrics engine.Metrics = engine.NoopMetrics{}
	metricsFile := opts.MetricsFile
	if metricsFile == "" {
		metricsFile = cfg.Metrics.File
	}
	var prom *engine.PromMetrics
	if metricsFile != "" {
		prom = engine.NewPromMetrics(metricsNamespace)
		metrics = prom
	}

	configFile := opts.ConfigFile
	if configFile != "" {
		if abs, err := filepath.Abs(configFile); err == nil {
			configFile = abs
		}
	}

	eng, err := engine.New(engine.Config{
		SourceDir:    opts.Source,
		Repository:   st,
		Actions:      reg,
		EPerson:      eperson,
		ItemField:    itemField,
		HandlePrefix: cfg.Archive.HandlePrefix,
		DryRun:       opts.DryRun,
		SuppressUndo: opts.SuppressUndo,
		Provenance:   opts.Provenance,
		CommandName:  engine.DefaultCommandName,
		ConfigFile:   configFile,
		DBPath:       opts.dbPath(),
		Logger:       opts.Logger,
		Now:          opts.Now,
		RunIDs:       opts.RunIDs,
		Metrics:      metrics,
		Ledger:       st,
	})
	if err != nil {
		return formatter.Fail("invalid run configuration", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := eng.Run(ctx)

	if prom != nil && summary != nil {
		if err := prom.WriteTextfile(metricsFile); err != nil {
			opts.Logger.Error("metrics not written", "error", err)
		}
	}

	if runErr != nil {
		if summary != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
			_ = outputSummary(formatter, summary)
			return WrapExitError(ExitFailure, "batch interrupted", runErr)
		}
		return formatter.Fail("batch failed", runErr)
	}

	return outputSummary(formatter, summary)
}

// buildRegistry registers the requested actions in their fixed order:
// delete metadata, add metadata, delete bitstreams, add bitstreams.
// A filter (-F) selects filtered deletion instead of delete_contents.
func buildRegistry(opts *RunOptions) (*action.Registry, error) {
	reg := action.NewRegistry()

	deleteTargets, err := parseTargets("delete-metadata", opts.DeleteMetadata)
	if err != nil {
		return nil, err
	}
	addTargets, err := parseTargets("add-metadata", opts.AddMetadata)
	if err != nil {
		return nil, err
	}

	if len(deleteTargets) > 0 {
		a := reg.DeleteMetadata()
		for _, t := range deleteTargets {
			a.AddTarget(t)
		}
	}
	if len(addTargets) > 0 {
		a := reg.AddMetadata()
		for _, t := range addTargets {
			a.AddTarget(t)
		}
	}

	switch {
	case opts.Filter != "":
		props := filter.Properties{}
		if opts.FilterConfig != "" {
			if props, err = filter.LoadProperties(opts.FilterConfig); err != nil {
				return nil, err
			}
		}
		f, err := filter.New(opts.Filter, props)
		if err != nil {
			return nil, err
		}
		reg.DeleteBitstreamsByFilter().SetFilter(f)
	case opts.FilterConfig != "":
		return nil, ir.NewConfigError("filter-config", "--filter-config requires --filter", nil)
	case opts.DeleteBitstreams:
		reg.DeleteBitstreams()
	}

	if opts.AddBitstreams {
		reg.AddBitstreams()
	}

	if !reg.HasActions() {
		return nil, ir.NewConfigError("actions",
			"no action requested: use -a, -d, -A, -D or -F", nil)
	}
	return reg, nil
}

// parseTargets parses field names for an action flag. Wildcards are
// rejected: the undo archive must name exactly the fields it restores.
func parseTargets(flag string, values []string) ([]ir.FieldName, error) {
	var out []ir.FieldName
	for _, v := range values {
		name, err := ir.ParseFieldName(v, false)
		if err != nil {
			return nil, ir.NewConfigError(flag, fmt.Sprintf("invalid field %q", v), err)
		}
		out = append(out, name)
	}
	return out, nil
}

// runOutput is the JSON payload of the run command.
type runOutput struct {
	*engine.Summary
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
}

func outputSummary(f *OutputFormatter, s *engine.Summary) error {
	if f.Format == "json" {
		return f.Success(runOutput{Summary: s, Total: s.Total(), Succeeded: s.Succeeded()})
	}

	w := f.Writer
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Processed %s items%s\n", s, mode)
	fmt.Fprintf(w, "Run: %s\n", s.RunID)
	if s.UndoDir != "" {
		fmt.Fprintf(w, "Undo archive: %s\n", s.UndoDir)
	}
	if s.UndoCommandFile != "" {
		fmt.Fprintf(w, "Undo command: %s\n", s.UndoCommandFile)
	}
	if failed := s.Failed(); len(failed) > 0 {
		fmt.Fprintln(w, "Failed items:")
		for _, r := range failed {
			fmt.Fprintf(w, "  %s: %s\n", r.Dir, r.Error)
		}
	}
	return nil
}
