package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <handle>",
		Short: "Print an item's metadata, bundles and bitstreams",
		Example: `  itemupdate show 123/1
  itemupdate show 123/1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, handle string, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer opts.closeStore(st)

	detail, err := st.Describe(cmd.Context(), handle)
	if errors.Is(err, repo.ErrNotFound) {
		return formatter.Fail("item not found",
			ir.NewResolutionError("show", fmt.Sprintf("no item with handle %q", handle), err))
	}
	if err != nil {
		return formatter.Fail("failed to load item", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(detail)
	}
	_, err = formatter.Writer.Write(renderItem(detail))
	return err
}

func newTable(buf *bytes.Buffer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(buf)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// renderItem renders an item as a metadata table and a bitstream table.
func renderItem(d *store.ItemDetail) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Item %s (id %d, last modified %s)\n\n", d.Item.Handle, d.Item.ID, d.LastModified)

	mt := newTable(&buf)
	mt.AppendHeader(table.Row{"Field", "Language", "Value"})
	for _, f := range d.Metadata {
		mt.AppendRow(table.Row{f.Name().String(), f.Language, f.Value})
	}
	mt.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 3, WidthMax: 80},
	})
	mt.Render()

	if len(d.Bundles) == 0 {
		return buf.Bytes()
	}

	buf.WriteString("\n")
	bt := newTable(&buf)
	bt.AppendHeader(table.Row{"Bundle", "ID", "Name", "Size", "Format", "Checksum", "Policies"})
	for _, b := range d.Bundles {
		for _, bs := range b.Bitstreams {
			bt.AppendRow(table.Row{b.Name, bs.ID, bs.Name, bs.Size, bs.Format, bs.Checksum, policies(bs.Policies)})
		}
	}
	bt.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
	})
	bt.Render()
	return buf.Bytes()
}

func policies(ps []store.Policy) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.Action + ":" + p.Group
	}
	return strings.Join(parts, ", ")
}
