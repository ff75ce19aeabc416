package cli

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/itemupdate/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded batch runs, newest first",
		Example: `  itemupdate runs
  itemupdate runs --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer opts.closeStore(st)

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return formatter.Fail("failed to list runs", err)
	}

	if formatter.Format == "json" {
		if runs == nil {
			runs = []store.RunRecord{}
		}
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		return formatter.Success("No runs recorded")
	}
	_, err = formatter.Writer.Write(renderRuns(runs))
	return err
}

func renderRuns(runs []store.RunRecord) []byte {
	var buf bytes.Buffer
	t := newTable(&buf)
	t.AppendHeader(table.Row{"Run", "Started", "Source", "Items", "Undo", "Dry run"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID,
			r.StartedAt.Format(time.DateTime),
			r.SourceDir,
			fmt.Sprintf("%d/%d", r.Succeeded, r.Total),
			r.UndoDir,
			r.DryRun,
		})
	}
	t.Render()
	return buf.Bytes()
}
