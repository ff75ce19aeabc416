package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/itemupdate/internal/archive"
	"github.com/roach88/itemupdate/internal/ir"
)

// AddMetadata adds archive values of its target fields to the item,
// skipping values the item already carries.
type AddMetadata struct {
	targets []ir.FieldName
}

func (a *AddMetadata) Kind() Kind { return KindAddMetadata }

// AddTarget appends a target field. Repeated targets are ignored.
func (a *AddMetadata) AddTarget(name ir.FieldName) {
	a.targets = appendTarget(a.targets, name)
}

// Targets returns the configured target fields.
func (a *AddMetadata) Targets() []ir.FieldName {
	return append([]ir.FieldName(nil), a.targets...)
}

// UndoArgs deletes each target field, then re-adds the recorded originals.
func (a *AddMetadata) UndoArgs() []string {
	var args []string
	for _, t := range a.targets {
		args = append(args, "-d", t.String())
	}
	for _, t := range a.targets {
		args = append(args, "-a", t.String())
	}
	return args
}

func (a *AddMetadata) Execute(ctx context.Context, ia *archive.ItemArchive, env Env) error {
	item := ia.Item()
	sess := env.Session

	for _, target := range a.targets {
		existing, err := sess.GetMetadata(ctx, item, target)
		if err != nil {
			return fmt.Errorf("add metadata %s: %w", target, err)
		}

		// The undo archive must restore the field exactly as it was, even
		// when nothing gets added, since replaying the undo clears it on
		// every item first.
		if env.recordUndo() {
			ia.AddUndoMetadata(existing...)
		}

		if env.DryRun {
			if err := logRegistration(ctx, env, target); err != nil {
				return err
			}
		}

		for _, f := range ia.FieldsMatching(target) {
			if containsValue(existing, f.Value) {
				env.Logger.Warn("skipping duplicate metadata value",
					slog.String("field", target.String()),
					slog.String("value", f.Value))
				continue
			}

			if env.DryRun {
				env.Logger.Info("would add metadata",
					slog.String("field", target.String()),
					slog.String("value", f.Value),
					slog.String("language", f.Language))
				existing = append(existing, f)
				continue
			}

			if err := sess.AddMetadata(ctx, item, f); err != nil {
				return fmt.Errorf("add metadata %s: %w", target, err)
			}
			env.Logger.Info("added metadata",
				slog.String("field", target.String()),
				slog.String("value", f.Value))
			existing = append(existing, f)
		}
	}
	return nil
}

func logRegistration(ctx context.Context, env Env, target ir.FieldName) error {
	schemaOK, err := env.Session.SchemaExists(ctx, target.Schema)
	if err != nil {
		return err
	}
	fieldOK, err := env.Session.FieldExists(ctx, target)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if !schemaOK || !fieldOK {
		level = slog.LevelWarn
	}
	env.Logger.Log(ctx, level, "metadata field registration",
		slog.String("field", target.String()),
		slog.Bool("schema_registered", schemaOK),
		slog.Bool("field_registered", fieldOK))
	return nil
}

func containsValue(fields []ir.MetadataField, value string) bool {
	for _, f := range fields {
		if ir.SameValue(f.Value, value) {
			return true
		}
	}
	return false
}

func appendTarget(targets []ir.FieldName, name ir.FieldName) []ir.FieldName {
	for _, t := range targets {
		if t == name {
			return targets
		}
	}
	return append(targets, name)
}

// DeleteMetadata removes every value of its target fields.
type DeleteMetadata struct {
	targets []ir.FieldName
}

func (a *DeleteMetadata) Kind() Kind { return KindDeleteMetadata }

// AddTarget appends a target field. Repeated targets are ignored.
func (a *DeleteMetadata) AddTarget(name ir.FieldName) {
	a.targets = appendTarget(a.targets, name)
}

// Targets returns the configured target fields.
func (a *DeleteMetadata) Targets() []ir.FieldName {
	return append([]ir.FieldName(nil), a.targets...)
}

// UndoArgs re-adds the deleted values.
func (a *DeleteMetadata) UndoArgs() []string {
	var args []string
	for _, t := range a.targets {
		args = append(args, "-a", t.String())
	}
	return args
}

func (a *DeleteMetadata) Execute(ctx context.Context, ia *archive.ItemArchive, env Env) error {
	item := ia.Item()

	for _, target := range a.targets {
		values, err := env.Session.GetMetadata(ctx, item, target)
		if err != nil {
			return fmt.Errorf("delete metadata %s: %w", target, err)
		}

		for _, v := range values {
			env.Logger.Info("deleting metadata",
				slog.String("field", target.String()),
				slog.String("value", v.Value),
				slog.String("language", v.Language),
				slog.Bool("dry_run", env.DryRun))
		}

		if env.DryRun {
			continue
		}
		if env.recordUndo() {
			ia.AddUndoMetadata(values...)
		}
		if err := env.Session.ClearMetadata(ctx, item, target); err != nil {
			return fmt.Errorf("delete metadata %s: %w", target, err)
		}
	}
	return nil
}
