// Package archive loads one item directory of a source archive, resolves
// the repository item it describes, and accumulates the undo records the
// actions produce for it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/manifest"
	"github.com/roach88/itemupdate/internal/repo"
)

// DefaultHandlePrefix is stripped from dc.identifier.uri values to obtain
// a handle.
const DefaultHandlePrefix = "http://hdl.handle.net/"

// LoadOptions control item resolution.
type LoadOptions struct {
	// ItemField names the field identifying the item. Empty means
	// dc.identifier.uri resolved by handle.
	ItemField string

	// HandlePrefix is stripped from dc.identifier.uri values.
	HandlePrefix string
}

// ItemArchive is the processing context for one item directory.
type ItemArchive struct {
	dir     string
	dirName string
	item    repo.Item

	metadata       []ir.MetadataField
	undoMetadata   []ir.MetadataField
	undoBitstreams []int64
}

// Load reads the metadata files in dir and resolves the item they describe.
func Load(ctx context.Context, sess repo.Session, dir string, opts LoadOptions) (*ItemArchive, error) {
	fields, err := readArchiveMetadata(dir)
	if err != nil {
		return nil, err
	}

	ia := &ItemArchive{
		dir:      dir,
		dirName:  filepath.Base(dir),
		metadata: fields,
	}

	if opts.ItemField == "" {
		err = ia.resolveByHandle(ctx, sess, opts.HandlePrefix)
	} else {
		err = ia.resolveByField(ctx, sess, opts.ItemField)
	}
	if err != nil {
		return nil, err
	}
	return ia, nil
}

func (ia *ItemArchive) resolveByHandle(ctx context.Context, sess repo.Session, prefix string) error {
	if prefix == "" {
		prefix = DefaultHandlePrefix
	}

	for _, f := range ia.metadata {
		if f.Name() != ir.FieldIdentifierURI || !strings.HasPrefix(f.Value, prefix) {
			continue
		}
		handle := strings.TrimPrefix(f.Value, prefix)
		item, err := sess.ResolveHandle(ctx, handle)
		if errors.Is(err, repo.ErrNotFound) {
			return ir.NewResolutionError("resolve item", fmt.Sprintf("no item with handle %q", handle), err)
		}
		if err != nil {
			return err
		}
		ia.item = item
		ia.undoMetadata = append(ia.undoMetadata, f)
		return nil
	}

	return ir.NewResolutionError("resolve item",
		fmt.Sprintf("no %s value starting with %q", ir.FieldIdentifierURI, prefix), nil)
}

func (ia *ItemArchive) resolveByField(ctx context.Context, sess repo.Session, itemField string) error {
	name, err := ir.ParseFieldName(itemField, false)
	if err != nil {
		return err
	}

	var matches []ir.MetadataField
	for _, f := range ia.metadata {
		if name.Matches(f.Name()) {
			matches = append(matches, f)
		}
	}
	if len(matches) != 1 {
		return ir.NewResolutionError("resolve item",
			fmt.Sprintf("expected exactly one %s value, found %d", name, len(matches)), nil)
	}

	items, err := sess.FindItemsByMetadata(ctx, name, matches[0].Value)
	if err != nil {
		return err
	}
	if len(items) != 1 {
		return ir.NewResolutionError("resolve item",
			fmt.Sprintf("expected exactly one item with %s = %q, found %d", name, matches[0].Value, len(items)), nil)
	}

	ia.item = items[0]
	ia.undoMetadata = append(ia.undoMetadata, matches[0])
	return nil
}

// Item returns the resolved repository item.
func (ia *ItemArchive) Item() repo.Item { return ia.item }

// Dir returns the item directory path.
func (ia *ItemArchive) Dir() string { return ia.dir }

// DirName returns the item directory's base name.
func (ia *ItemArchive) DirName() string { return ia.dirName }

// Metadata returns a copy of the fields loaded from the archive.
func (ia *ItemArchive) Metadata() []ir.MetadataField {
	return append([]ir.MetadataField(nil), ia.metadata...)
}

// FieldsMatching returns the loaded fields selected by name.
func (ia *ItemArchive) FieldsMatching(name ir.FieldName) []ir.MetadataField {
	var out []ir.MetadataField
	for _, f := range ia.metadata {
		if name.Matches(f.Name()) {
			out = append(out, f)
		}
	}
	return out
}

// AddUndoMetadata records fields whose replay restores removed values.
func (ia *ItemArchive) AddUndoMetadata(fields ...ir.MetadataField) {
	ia.undoMetadata = append(ia.undoMetadata, fields...)
}

// AddUndoBitstream records a bitstream whose deletion undoes an addition.
func (ia *ItemArchive) AddUndoBitstream(id int64) {
	ia.undoBitstreams = append(ia.undoBitstreams, id)
}

// UndoMetadata returns a copy of the recorded undo fields.
func (ia *ItemArchive) UndoMetadata() []ir.MetadataField {
	return append([]ir.MetadataField(nil), ia.undoMetadata...)
}

// UndoBitstreams returns a copy of the recorded bitstream IDs.
func (ia *ItemArchive) UndoBitstreams() []int64 {
	return append([]int64(nil), ia.undoBitstreams...)
}

// WriteUndo writes the item's undo sub-archive under undoRoot and returns
// its path. The sub-directory has the item directory's name and holds the
// undo metadata files plus delete_contents when bitstreams were added.
func (ia *ItemArchive) WriteUndo(undoRoot string) (string, error) {
	dir := filepath.Join(undoRoot, ia.dirName)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create undo directory: %w", err)
	}

	if err := WriteMetadata(dir, ia.undoMetadata); err != nil {
		return dir, err
	}

	if len(ia.undoBitstreams) > 0 {
		ids := make([]string, len(ia.undoBitstreams))
		for i, id := range ia.undoBitstreams {
			ids[i] = strconv.FormatInt(id, 10)
		}
		f, err := os.Create(filepath.Join(dir, manifest.DeleteContentsFile))
		if err != nil {
			return dir, fmt.Errorf("write %s: %w", manifest.DeleteContentsFile, err)
		}
		if err := manifest.WriteDeleteManifest(f, ids); err != nil {
			f.Close()
			return dir, err
		}
		if err := f.Close(); err != nil {
			return dir, fmt.Errorf("write %s: %w", manifest.DeleteContentsFile, err)
		}
	}

	return dir, nil
}
