// Package action implements the per-item mutations a batch applies and
// the ordered registry that holds them.
//
// Every action runs against one ItemArchive and the item's repo.Session.
// Actions that can be reversed record what they changed on the archive's
// undo lists; the batch writes those lists out as the undo archive.
package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/itemupdate/internal/archive"
	"github.com/roach88/itemupdate/internal/repo"
)

// Kind identifies an action.
type Kind string

const (
	KindAddMetadata              Kind = "add-metadata"
	KindDeleteMetadata           Kind = "delete-metadata"
	KindAddBitstreams            Kind = "add-bitstreams"
	KindDeleteBitstreams         Kind = "delete-bitstreams"
	KindDeleteBitstreamsByFilter Kind = "delete-bitstreams-by-filter"
)

// Env is what an action may use while processing one item.
type Env struct {
	Session repo.Session
	Logger  *slog.Logger
	Now     func() time.Time

	// DryRun forbids every mutating Session call.
	DryRun bool

	// SuppressUndo forbids touching the archive's undo lists.
	SuppressUndo bool

	// Provenance enables dc.description.provenance notes.
	Provenance bool

	// EPerson is the operator named in provenance notes.
	EPerson string
}

func (e Env) recordUndo() bool {
	return !e.DryRun && !e.SuppressUndo
}

// Action is one mutation step.
type Action interface {
	Kind() Kind

	// Execute applies the action to the item.
	Execute(ctx context.Context, ia *archive.ItemArchive, env Env) error

	// UndoArgs returns the command-line flags that reverse the action when
	// replayed against the undo archive. Nil means the action has no undo.
	UndoArgs() []string
}
