package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alessio/shellescape"

	"github.com/roach88/itemupdate/internal/archive"
)

// UndoCommandSuffix is appended to the undo directory path to name the
// file holding the replay command.
const UndoCommandSuffix = "_command.sh"

// UndoDirName returns the name of the n-th undo directory for a source
// archive named source.
func UndoDirName(source string, n int) string {
	return fmt.Sprintf("undo_%s_%d", source, n)
}

// AllocateUndoDir creates the undo archive directory beside source. It
// probes undo_<name>_1, undo_<name>_2, ... and takes the first one that
// does not exist yet, so earlier undo archives are never overwritten.
// The new directory carries the suppress_undo marker so that replaying it
// never produces an undo of the undo.
func AllocateUndoDir(source string) (string, error) {
	source = filepath.Clean(source)
	parent, name := filepath.Dir(source), filepath.Base(source)

	for n := 1; ; n++ {
		dir := filepath.Join(parent, UndoDirName(name, n))
		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create undo directory: %w", err)
		}

		marker := filepath.Join(dir, archive.SuppressUndoMarker)
		if err := os.WriteFile(marker, nil, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", archive.SuppressUndoMarker, err)
		}
		return dir, nil
	}
}

// UndoCommand renders the shell command that replays the undo archive at
// undoDir: the same tool, the run-level flags of cfg and the inverse
// action flags in undoArgs. Dry runs write no undo archive, so -t is never
// forwarded.
func UndoCommand(cfg Config, undoDir string, undoArgs []string) string {
	name := cfg.CommandName
	if name == "" {
		name = DefaultCommandName
	}

	args := []string{name, "run", "-s", undoDir}
	if cfg.ConfigFile != "" {
		args = append(args, "--config", cfg.ConfigFile)
	}
	if cfg.DBPath != "" {
		args = append(args, "--db", cfg.DBPath)
	}
	if cfg.EPerson != "" {
		args = append(args, "-e", cfg.EPerson)
	}
	if cfg.ItemField != "" {
		args = append(args, "-i", cfg.ItemField)
	}
	if cfg.Provenance {
		args = append(args, "-P")
	}
	args = append(args, undoArgs...)

	return shellescape.QuoteCommand(args)
}

func writeUndoCommand(undoDir, command string) (string, error) {
	path := filepath.Clean(undoDir) + UndoCommandSuffix
	if err := os.WriteFile(path, []byte(command+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write undo command: %w", err)
	}
	return path, nil
}
