package store

import (
	"context"
	"fmt"
	"io"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
)

// CreateItem registers a new item under handle with the given metadata.
// Every field must already be registered.
func (s *Store) CreateItem(ctx context.Context, handle string, fields []ir.MetadataField) (repo.Item, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return repo.Item{}, err
	}
	defer sess.Rollback()

	res, err := sess.tx.ExecContext(ctx,
		`INSERT INTO items (handle, last_modified) VALUES (?, ?)`,
		handle, s.now().UTC().Format(timeLayout))
	if err != nil {
		return repo.Item{}, fmt.Errorf("create item %s: %w", handle, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return repo.Item{}, fmt.Errorf("create item %s: %w", handle, err)
	}
	item := repo.Item{ID: id, Handle: handle}

	for _, f := range fields {
		if err := sess.AddMetadata(ctx, item, f); err != nil {
			return repo.Item{}, fmt.Errorf("create item %s: %w", handle, err)
		}
	}

	if err := sess.Commit(); err != nil {
		return repo.Item{}, err
	}
	return item, nil
}

// AttachFile stores r as a bitstream named name in the item's bundle,
// creating the bundle if needed.
func (s *Store) AttachFile(ctx context.Context, item repo.Item, bundleName, name string, r io.Reader) (repo.Bitstream, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return repo.Bitstream{}, err
	}
	defer sess.Rollback()

	bundles, err := sess.Bundles(ctx, item, bundleName)
	if err != nil {
		return repo.Bitstream{}, err
	}
	var bundle repo.Bundle
	if len(bundles) > 0 {
		bundle = bundles[0]
	} else if bundle, err = sess.CreateBundle(ctx, item, bundleName); err != nil {
		return repo.Bitstream{}, err
	}

	bs, err := sess.CreateBitstream(ctx, bundle, name, r)
	if err != nil {
		return repo.Bitstream{}, err
	}
	format, err := sess.GuessFormat(ctx, bs)
	if err != nil {
		return repo.Bitstream{}, err
	}
	if err := sess.SetFormat(ctx, bs, format); err != nil {
		return repo.Bitstream{}, err
	}
	bs.Format = format.ShortDescription

	if err := sess.Commit(); err != nil {
		return repo.Bitstream{}, err
	}
	return bs, nil
}

// ItemDetail is a read-only snapshot of an item.
type ItemDetail struct {
	Item         repo.Item          `json:"item"`
	LastModified string             `json:"last_modified"`
	Metadata     []ir.MetadataField `json:"metadata"`
	Bundles      []BundleDetail     `json:"bundles"`
}

// BundleDetail is a bundle with its bitstreams.
type BundleDetail struct {
	Name       string            `json:"name"`
	Bitstreams []BitstreamDetail `json:"bitstreams"`
}

// BitstreamDetail is a bitstream with its policies.
type BitstreamDetail struct {
	repo.Bitstream
	Policies []Policy `json:"policies"`
}

// Describe loads the item registered under handle with its metadata,
// bundles, bitstreams and policies.
func (s *Store) Describe(ctx context.Context, handle string) (*ItemDetail, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback()

	item, err := sess.ResolveHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	detail := &ItemDetail{Item: item}
	err = sess.tx.QueryRowContext(ctx,
		`SELECT last_modified FROM items WHERE id = ?`, item.ID).Scan(&detail.LastModified)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", handle, err)
	}

	if detail.Metadata, err = sess.AllMetadata(ctx, item); err != nil {
		return nil, err
	}

	bundles, err := sess.Bundles(ctx, item, "")
	if err != nil {
		return nil, err
	}
	for _, b := range bundles {
		bd := BundleDetail{Name: b.Name}
		bitstreams, err := sess.Bitstreams(ctx, b)
		if err != nil {
			return nil, err
		}
		for _, bs := range bitstreams {
			policies, err := sess.Policies(ctx, bs)
			if err != nil {
				return nil, err
			}
			bd.Bitstreams = append(bd.Bitstreams, BitstreamDetail{Bitstream: bs, Policies: policies})
		}
		detail.Bundles = append(detail.Bundles, bd)
	}

	return detail, nil
}
