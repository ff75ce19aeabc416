package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roach88/itemupdate/internal/archive"
	"github.com/roach88/itemupdate/internal/filter"
	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/manifest"
	"github.com/roach88/itemupdate/internal/repo"
)

const licenseFile = "license.txt"

// AddBitstreams adds the files listed in the item's contents manifest.
type AddBitstreams struct{}

func (a *AddBitstreams) Kind() Kind { return KindAddBitstreams }

// UndoArgs deletes the added bitstreams by ID.
func (a *AddBitstreams) UndoArgs() []string { return []string{"-D"} }

func (a *AddBitstreams) Execute(ctx context.Context, ia *archive.ItemArchive, env Env) error {
	entries, err := manifest.ReadContents(filepath.Join(ia.Dir(), manifest.ContentsFile))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		env.Logger.Info("no contents manifest entries, nothing to add")
		return nil
	}

	for _, e := range entries {
		info, err := os.Stat(filepath.Join(ia.Dir(), e.Filename))
		if err != nil || !info.Mode().IsRegular() {
			return ir.NewValidationError("add bitstreams",
				fmt.Sprintf("file %q listed in contents is not a regular file in %s", e.Filename, ia.DirName()))
		}
	}

	var added []repo.Bitstream
	for _, e := range entries {
		bs, err := a.addOne(ctx, ia, env, e)
		if err != nil {
			return err
		}
		if bs == nil {
			continue
		}
		if env.recordUndo() {
			ia.AddUndoBitstream(bs.ID)
		}
		if !repo.IsDerivativeBundle(bundleFor(e)) {
			added = append(added, *bs)
		}
	}

	if env.Provenance && !env.DryRun && len(added) > 0 {
		return appendProvenance(ctx, env, ia.Item(), addedNote(env, added))
	}
	return nil
}

func bundleFor(e manifest.Entry) string {
	switch {
	case e.Bundle != "":
		return e.Bundle
	case e.Filename == licenseFile:
		return repo.BundleLicense
	default:
		return repo.BundleOriginal
	}
}

// addOne stores a single entry. It returns nil on dry runs.
func (a *AddBitstreams) addOne(ctx context.Context, ia *archive.ItemArchive, env Env, e manifest.Entry) (*repo.Bitstream, error) {
	sess := env.Session
	item := ia.Item()
	bundleName := bundleFor(e)

	bundles, err := sess.Bundles(ctx, item, bundleName)
	if err != nil {
		return nil, err
	}
	for _, b := range bundles {
		existing, err := sess.Bitstreams(ctx, b)
		if err != nil {
			return nil, err
		}
		for _, bs := range existing {
			if bs.Name == e.Filename {
				return nil, ir.NewValidationError("add bitstreams",
					fmt.Sprintf("bundle %s already contains a bitstream named %q", bundleName, e.Filename))
			}
		}
	}

	log := env.Logger.With(slog.String("file", e.Filename), slog.String("bundle", bundleName))
	if env.DryRun {
		log.Info("would add bitstream")
		return nil, nil
	}

	var bundle repo.Bundle
	if len(bundles) > 0 {
		bundle = bundles[0]
	} else if bundle, err = sess.CreateBundle(ctx, item, bundleName); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(ia.Dir(), e.Filename))
	if err != nil {
		return nil, fmt.Errorf("add bitstream %s: %w", e.Filename, err)
	}
	defer f.Close()

	bs, err := sess.CreateBitstream(ctx, bundle, e.Filename, f)
	if err != nil {
		return nil, err
	}

	format, err := sess.GuessFormat(ctx, bs)
	if err != nil {
		return nil, err
	}
	if err := sess.SetFormat(ctx, bs, format); err != nil {
		return nil, err
	}
	bs.Format = format.ShortDescription

	if e.Description != "" {
		if err := sess.SetDescription(ctx, bs, e.Description); err != nil {
			return nil, err
		}
		bs.Description = e.Description
	}

	if e.Permission.Action != manifest.PermissionNone {
		if err := sess.RemovePolicies(ctx, bs); err != nil {
			return nil, err
		}
		if err := sess.AddPolicy(ctx, bs, e.Permission.Action.String(), e.Permission.Group); err != nil {
			return nil, err
		}
	}

	log.Info("added bitstream",
		slog.Int64("bitstream_id", bs.ID),
		slog.String("format", bs.Format),
		slog.Int64("size", bs.Size))
	return &bs, nil
}

// DeleteBitstreams removes the bitstreams listed by ID in the item's
// delete_contents manifest.
type DeleteBitstreams struct{}

func (a *DeleteBitstreams) Kind() Kind { return KindDeleteBitstreams }

// UndoArgs is nil: deleted content is not kept.
func (a *DeleteBitstreams) UndoArgs() []string { return nil }

func (a *DeleteBitstreams) Execute(ctx context.Context, ia *archive.ItemArchive, env Env) error {
	ids, exists, err := manifest.ReadDeleteManifest(filepath.Join(ia.Dir(), manifest.DeleteContentsFile))
	if err != nil {
		return err
	}
	if !exists || len(ids) == 0 {
		env.Logger.Warn("no delete_contents entries, nothing to delete")
		return nil
	}

	sess := env.Session
	item := ia.Item()

	for _, raw := range ids {
		log := env.Logger.With(slog.String("bitstream_id", raw))

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Error("invalid bitstream id")
			continue
		}
		bs, err := sess.FindBitstream(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			log.Error("bitstream not found")
			continue
		}
		if err != nil {
			return err
		}

		bundles, err := sess.BundlesOf(ctx, id)
		if err != nil {
			return err
		}
		var own []repo.Bundle
		for _, b := range bundles {
			if b.ItemID == item.ID {
				own = append(own, b)
			}
		}
		if len(own) == 0 {
			log.Error("bitstream does not belong to item")
			continue
		}

		if env.DryRun {
			log.Info("would delete bitstream", slog.String("name", bs.Name))
			continue
		}

		for _, b := range own {
			if err := sess.RemoveBitstream(ctx, b, bs); err != nil {
				return err
			}
		}
		log.Info("deleted bitstream", slog.String("name", bs.Name))

		if env.Provenance {
			if err := appendProvenance(ctx, env, item, deletedNote(env, bs)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteBitstreamsByFilter removes every bitstream of the item the filter
// accepts.
type DeleteBitstreamsByFilter struct {
	filter *filter.Filter
}

func (a *DeleteBitstreamsByFilter) Kind() Kind { return KindDeleteBitstreamsByFilter }

// SetFilter sets the selecting filter.
func (a *DeleteBitstreamsByFilter) SetFilter(f *filter.Filter) { a.filter = f }

// Filter returns the selecting filter.
func (a *DeleteBitstreamsByFilter) Filter() *filter.Filter { return a.filter }

// UndoArgs is nil: deleted content is not kept.
func (a *DeleteBitstreamsByFilter) UndoArgs() []string { return nil }

func (a *DeleteBitstreamsByFilter) Execute(ctx context.Context, ia *archive.ItemArchive, env Env) error {
	if a.filter == nil {
		return ir.NewConfigError("delete bitstreams by filter", "no filter configured", nil)
	}

	sess := env.Session
	item := ia.Item()

	bundles, err := sess.Bundles(ctx, item, "")
	if err != nil {
		return err
	}

	var removed []repo.Bitstream
	for _, b := range bundles {
		bitstreams, err := sess.Bitstreams(ctx, b)
		if err != nil {
			return err
		}
		for _, bs := range bitstreams {
			ok, err := a.filter.Accept(ctx, sess, bs)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			log := env.Logger.With(
				slog.Int64("bitstream_id", bs.ID),
				slog.String("name", bs.Name),
				slog.String("bundle", b.Name))
			if env.DryRun {
				log.Info("would delete bitstream")
			} else {
				if err := sess.RemoveBitstream(ctx, b, bs); err != nil {
					return err
				}
				log.Info("deleted bitstream")
			}

			if !repo.IsDerivativeBundle(b.Name) {
				removed = append(removed, bs)
			}
		}
	}

	if env.Provenance && !env.DryRun && len(removed) > 0 {
		return appendProvenance(ctx, env, item, filteredNote(env, a.filter.Name(), removed))
	}
	return nil
}
