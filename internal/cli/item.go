package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
)

// ItemCreateOptions holds flags for the item create command.
type ItemCreateOptions struct {
	*RootOptions
	Metadata []string
	Files    []string
	Bundle   string
}

// itemCreated is what item create reports.
type itemCreated struct {
	Item       repo.Item        `json:"item"`
	Metadata   int              `json:"metadata"`
	Bitstreams []repo.Bitstream `json:"bitstreams,omitempty"`
}

func (r itemCreated) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Created item %s (id %d) with %d metadata value(s)", r.Item.Handle, r.Item.ID, r.Metadata)
	for _, bs := range r.Bitstreams {
		fmt.Fprintf(&b, "\n  bitstream %d: %s (%d bytes, %s)", bs.ID, bs.Name, bs.Size, bs.Checksum)
	}
	return b.String()
}

// NewItemCommand creates the item command group.
func NewItemCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage repository items",
	}
	cmd.AddCommand(newItemCreateCommand(rootOpts))
	return cmd
}

func newItemCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <handle>",
		Short: "Register an item with metadata and files",
		Long: `Register a new item under a handle.

Metadata values are given as schema.element[.qualifier][@language]=value;
every field must be registered (see init). Files are stored as bitstreams
in --bundle.

Example:
  itemupdate item create 123/1 -m "dc.title=Annual report" -m "dc.language.iso@en=en"
  itemupdate item create 123/2 -m "dc.title=Scans" -f scan1.tiff -f scan2.tiff`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItemCreate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Metadata, "meta", "m", nil, "metadata value name[@lang]=value, repeatable")
	cmd.Flags().StringArrayVarP(&opts.Files, "file", "f", nil, "file to attach as a bitstream, repeatable")
	cmd.Flags().StringVar(&opts.Bundle, "bundle", repo.BundleOriginal, "bundle receiving --file bitstreams")

	return cmd
}

func runItemCreate(opts *ItemCreateOptions, handle string, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	fields := make([]ir.MetadataField, 0, len(opts.Metadata))
	for _, m := range opts.Metadata {
		f, err := parseMetadataArg(m)
		if err != nil {
			return formatter.Fail("invalid metadata", err)
		}
		fields = append(fields, f)
	}

	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer opts.closeStore(st)

	ctx := cmd.Context()
	item, err := st.CreateItem(ctx, handle, fields)
	if err != nil {
		return formatter.Fail("failed to create item", err)
	}

	result := itemCreated{Item: item, Metadata: len(fields)}
	for _, path := range opts.Files {
		bs, err := attach(ctx, st, item, opts.Bundle, path)
		if err != nil {
			return formatter.Fail("failed to attach file", err)
		}
		result.Bitstreams = append(result.Bitstreams, bs)
	}

	return formatter.Success(result)
}

func attach(ctx context.Context, st *store.Store, item repo.Item, bundle, path string) (repo.Bitstream, error) {
	f, err := os.Open(path)
	if err != nil {
		return repo.Bitstream{}, ir.NewConfigError("file", path, err)
	}
	defer f.Close()
	return st.AttachFile(ctx, item, bundle, filepath.Base(path), f)
}

// parseMetadataArg parses name[@lang]=value.
func parseMetadataArg(s string) (ir.MetadataField, error) {
	f, err := ir.ParseFieldValue(s)
	if err != nil {
		return ir.MetadataField{}, ir.NewConfigError("meta", fmt.Sprintf("invalid metadata %q", s), err)
	}
	return f, nil
}
