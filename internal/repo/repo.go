// Package repo defines the repository boundary the batch engine mutates.
//
// The engine never talks to a concrete store. Each item is processed inside
// one Session, which the engine commits after the item's pipeline succeeds
// and rolls back otherwise (or always, for dry runs).
package repo

import (
	"context"
	"errors"
	"io"

	"github.com/roach88/itemupdate/internal/ir"
)

// ErrNotFound is returned (possibly wrapped) when a looked-up object does
// not exist.
var ErrNotFound = errors.New("not found")

// Well-known bundle names.
const (
	BundleOriginal  = "ORIGINAL"
	BundleLicense   = "LICENSE"
	BundleText      = "TEXT"
	BundleThumbnail = "THUMBNAIL"
)

// IsDerivativeBundle reports whether bundle holds generated content
// (extracted text, thumbnails) rather than deposited files.
func IsDerivativeBundle(name string) bool {
	return name == BundleText || name == BundleThumbnail
}

// Item is a repository item.
type Item struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
}

// Bundle is a named container of bitstreams within an item.
type Bundle struct {
	ID     int64  `json:"id"`
	ItemID int64  `json:"item_id"`
	Name   string `json:"name"`
}

// Bitstream is a stored file.
type Bitstream struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	MIMEType    string `json:"mimetype"`
	Format      string `json:"format,omitempty"`
	Description string `json:"description,omitempty"`
}

// Format is a registered bitstream format.
type Format struct {
	ID               int64  `json:"id"`
	ShortDescription string `json:"short_description"`
	MIMEType         string `json:"mimetype"`
}

// Policy actions.
const (
	ActionRead  = "READ"
	ActionWrite = "WRITE"
)

// Repository opens sessions.
type Repository interface {
	Begin(ctx context.Context) (Session, error)
}

// Session is one unit of work against the repository. Reads observe the
// session's own uncommitted writes.
type Session interface {
	// ResolveHandle returns the item registered under handle.
	ResolveHandle(ctx context.Context, handle string) (Item, error)

	// FindItemsByMetadata returns every item carrying value in field.
	FindItemsByMetadata(ctx context.Context, field ir.FieldName, value string) ([]Item, error)

	// GetMetadata returns the item's values for field in place order. The
	// qualifier must match exactly; values of every language are returned.
	GetMetadata(ctx context.Context, item Item, field ir.FieldName) ([]ir.MetadataField, error)

	// AddMetadata appends one value after the field's existing values.
	AddMetadata(ctx context.Context, item Item, f ir.MetadataField) error

	// ClearMetadata removes every value of field (qualifier exact, any language).
	ClearMetadata(ctx context.Context, item Item, field ir.FieldName) error

	SchemaExists(ctx context.Context, schema string) (bool, error)
	FieldExists(ctx context.Context, field ir.FieldName) (bool, error)

	// Bundles returns the item's bundles named name, or all bundles when
	// name is empty.
	Bundles(ctx context.Context, item Item, name string) ([]Bundle, error)
	CreateBundle(ctx context.Context, item Item, name string) (Bundle, error)

	// BundlesOf returns every bundle containing the bitstream.
	BundlesOf(ctx context.Context, bitstreamID int64) ([]Bundle, error)
	Bitstreams(ctx context.Context, bundle Bundle) ([]Bitstream, error)
	FindBitstream(ctx context.Context, id int64) (Bitstream, error)

	// CreateBitstream stores r as a new bitstream named name in bundle.
	CreateBitstream(ctx context.Context, bundle Bundle, name string, r io.Reader) (Bitstream, error)
	GuessFormat(ctx context.Context, bs Bitstream) (Format, error)
	SetFormat(ctx context.Context, bs Bitstream, format Format) error
	SetDescription(ctx context.Context, bs Bitstream, description string) error

	// RemovePolicies strips every policy from the bitstream.
	RemovePolicies(ctx context.Context, bs Bitstream) error

	// AddPolicy grants action on the bitstream to the named group.
	AddPolicy(ctx context.Context, bs Bitstream, action, group string) error

	// RemoveBitstream detaches the bitstream from bundle. A bitstream left in
	// no bundle is marked deleted.
	RemoveBitstream(ctx context.Context, bundle Bundle, bs Bitstream) error

	// TouchItem records that the item was modified.
	TouchItem(ctx context.Context, item Item) error

	Commit() error
	Rollback() error
}
