package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/itemupdate/internal/config"
	"github.com/roach88/itemupdate/internal/logging"
	"github.com/roach88/itemupdate/internal/store"
)

// RootOptions holds global flags for all commands, plus the configuration
// and logger derived from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	DB         string

	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the itemupdate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "itemupdate",
		Short: "Batch updates of repository items from item archives",
		Long: `itemupdate applies metadata and bitstream changes to existing repository
items from a source archive (one directory per item), and writes an undo
archive plus a replay command that reverses the batch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to the SQLite repository (overrides store.path)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewItemCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

// setup validates the format flag, loads configuration and builds the
// logger. It runs once; commands call it too so they work when executed
// without the root command.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if o.Config != nil {
		return nil
	}
	if o.Format == "" {
		o.Format = "text"
	}
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.DB != "" {
		cfg.Store.Path = o.DB
	}

	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	o.Logger = logging.New(level, cfg.Log.Format, cmd.ErrOrStderr())
	o.Config = cfg
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// dbPath returns the absolute repository path.
func (o *RootOptions) dbPath() string {
	if abs, err := filepath.Abs(o.Config.Store.Path); err == nil {
		return abs
	}
	return o.Config.Store.Path
}

func (o *RootOptions) openStore() (*store.Store, error) {
	var opts []store.Option
	if o.Config.Store.AssetDir != "" {
		opts = append(opts, store.WithAssetDir(o.Config.Store.AssetDir))
	}
	o.Logger.Debug("opening store", "path", o.dbPath())
	return store.Open(o.dbPath(), opts...)
}

func (o *RootOptions) closeStore(s *store.Store) {
	if err := s.Close(); err != nil {
		o.Logger.Error("error closing store", "error", err)
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
