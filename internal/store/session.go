package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
)

// Session is one transaction against the store. It implements repo.Session.
// Every query goes through the transaction so reads see the session's own
// writes.
type Session struct {
	store *Store
	tx    *sql.Tx
}

var _ repo.Session = (*Session)(nil)

// Commit commits the session's transaction.
func (s *Session) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return ir.WrapStoreError("commit", err)
	}
	return nil
}

// Rollback discards the session's writes. Rolling back a finished session
// is a no-op.
func (s *Session) Rollback() error {
	err := s.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return ir.WrapStoreError("rollback", err)
	}
	return nil
}

func (s *Session) ResolveHandle(ctx context.Context, handle string) (repo.Item, error) {
	item := repo.Item{Handle: handle}
	err := s.tx.QueryRowContext(ctx, `SELECT id FROM items WHERE handle = ?`, handle).Scan(&item.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.Item{}, fmt.Errorf("handle %q: %w", handle, repo.ErrNotFound)
	}
	if err != nil {
		return repo.Item{}, ir.WrapStoreError("resolve handle", err)
	}
	return item, nil
}

func (s *Session) FindItemsByMetadata(ctx context.Context, field ir.FieldName, value string) ([]repo.Item, error) {
	fieldID, err := s.fieldID(ctx, field)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.QueryContext(ctx, `
		SELECT DISTINCT i.id, i.handle
		FROM metadata_values v
		JOIN items i ON i.id = v.item_id
		WHERE v.field_id = ? AND v.value = ?
		ORDER BY i.id ASC
	`, fieldID, value)
	if err != nil {
		return nil, ir.WrapStoreError("find items", err)
	}
	defer rows.Close()

	var items []repo.Item
	for rows.Next() {
		var it repo.Item
		if err := rows.Scan(&it.ID, &it.Handle); err != nil {
			return nil, ir.WrapStoreError("find items", err)
		}
		items = append(items, it)
	}
	return items, ir.WrapStoreError("find items", rows.Err())
}

func (s *Session) GetMetadata(ctx context.Context, item repo.Item, field ir.FieldName) ([]ir.MetadataField, error) {
	fieldID, err := s.fieldID(ctx, field)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.QueryContext(ctx, `
		SELECT value, language FROM metadata_values
		WHERE item_id = ? AND field_id = ?
		ORDER BY place ASC, id ASC
	`, item.ID, fieldID)
	if err != nil {
		return nil, ir.WrapStoreError("get metadata", err)
	}
	defer rows.Close()

	var values []ir.MetadataField
	for rows.Next() {
		f := ir.MetadataField{Schema: field.Schema, Element: field.Element, Qualifier: field.Qualifier}
		if err := rows.Scan(&f.Value, &f.Language); err != nil {
			return nil, ir.WrapStoreError("get metadata", err)
		}
		values = append(values, f)
	}
	return values, ir.WrapStoreError("get metadata", rows.Err())
}

// AllMetadata returns every value on the item, ordered by field then place.
func (s *Session) AllMetadata(ctx context.Context, item repo.Item) ([]ir.MetadataField, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT ms.prefix, f.element, f.qualifier, v.language, v.value
		FROM metadata_values v
		JOIN metadata_fields f ON f.id = v.field_id
		JOIN metadata_schemas ms ON ms.id = f.schema_id
		WHERE v.item_id = ?
		ORDER BY ms.prefix, f.element, f.qualifier, v.place ASC, v.id ASC
	`, item.ID)
	if err != nil {
		return nil, ir.WrapStoreError("all metadata", err)
	}
	defer rows.Close()

	var values []ir.MetadataField
	for rows.Next() {
		var f ir.MetadataField
		if err := rows.Scan(&f.Schema, &f.Element, &f.Qualifier, &f.Language, &f.Value); err != nil {
			return nil, ir.WrapStoreError("all metadata", err)
		}
		values = append(values, f)
	}
	return values, ir.WrapStoreError("all metadata", rows.Err())
}

func (s *Session) AddMetadata(ctx context.Context, item repo.Item, f ir.MetadataField) error {
	fieldID, err := s.fieldID(ctx, f.Name())
	if errors.Is(err, repo.ErrNotFound) {
		return ir.NewValidationError("add metadata",
			fmt.Sprintf("field %s is not registered", f.Name()))
	}
	if err != nil {
		return err
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO metadata_values (item_id, field_id, value, language, place)
		VALUES (?, ?, ?, ?, (
			SELECT COALESCE(MAX(place), 0) + 1 FROM metadata_values
			WHERE item_id = ? AND field_id = ?
		))
	`, item.ID, fieldID, f.Value, f.Language, item.ID, fieldID)
	return ir.WrapStoreError("add metadata", err)
}

func (s *Session) ClearMetadata(ctx context.Context, item repo.Item, field ir.FieldName) error {
	fieldID, err := s.fieldID(ctx, field)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx,
		`DELETE FROM metadata_values WHERE item_id = ? AND field_id = ?`, item.ID, fieldID)
	return ir.WrapStoreError("clear metadata", err)
}

func (s *Session) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var n int
	err := s.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metadata_schemas WHERE prefix = ?`, schema).Scan(&n)
	if err != nil {
		return false, ir.WrapStoreError("schema exists", err)
	}
	return n > 0, nil
}

func (s *Session) FieldExists(ctx context.Context, field ir.FieldName) (bool, error) {
	_, err := s.fieldID(ctx, field)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// fieldID looks up a registered field. Hits are cached on the store;
// registry loads flush the cache.
func (s *Session) fieldID(ctx context.Context, field ir.FieldName) (int64, error) {
	key := field.String()
	if id, ok := s.store.fields.Get(key); ok {
		return id.(int64), nil
	}

	var id int64
	err := s.tx.QueryRowContext(ctx, `
		SELECT f.id FROM metadata_fields f
		JOIN metadata_schemas ms ON ms.id = f.schema_id
		WHERE ms.prefix = ? AND f.element = ? AND f.qualifier = ?
	`, field.Schema, field.Element, field.Qualifier).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("field %s: %w", field, repo.ErrNotFound)
	}
	if err != nil {
		return 0, ir.WrapStoreError("lookup field", err)
	}

	s.store.fields.SetDefault(key, id)
	return id, nil
}

func (s *Session) Bundles(ctx context.Context, item repo.Item, name string) ([]repo.Bundle, error) {
	query := `SELECT id, item_id, name FROM bundles WHERE item_id = ?`
	args := []any{item.ID}
	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ir.WrapStoreError("bundles", err)
	}
	return scanBundles(rows)
}

func (s *Session) CreateBundle(ctx context.Context, item repo.Item, name string) (repo.Bundle, error) {
	res, err := s.tx.ExecContext(ctx, `INSERT INTO bundles (item_id, name) VALUES (?, ?)`, item.ID, name)
	if err != nil {
		return repo.Bundle{}, ir.WrapStoreError("create bundle", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return repo.Bundle{}, ir.WrapStoreError("create bundle", err)
	}
	return repo.Bundle{ID: id, ItemID: item.ID, Name: name}, nil
}

func (s *Session) BundlesOf(ctx context.Context, bitstreamID int64) ([]repo.Bundle, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT b.id, b.item_id, b.name
		FROM bundle_bitstreams bb
		JOIN bundles b ON b.id = bb.bundle_id
		WHERE bb.bitstream_id = ?
		ORDER BY b.id ASC
	`, bitstreamID)
	if err != nil {
		return nil, ir.WrapStoreError("bundles of bitstream", err)
	}
	return scanBundles(rows)
}

func scanBundles(rows *sql.Rows) ([]repo.Bundle, error) {
	defer rows.Close()
	var bundles []repo.Bundle
	for rows.Next() {
		var b repo.Bundle
		if err := rows.Scan(&b.ID, &b.ItemID, &b.Name); err != nil {
			return nil, ir.WrapStoreError("scan bundle", err)
		}
		bundles = append(bundles, b)
	}
	return bundles, ir.WrapStoreError("scan bundle", rows.Err())
}

const bitstreamColumns = `
	bs.id, bs.name, bs.size, bs.checksum, bs.mimetype,
	COALESCE(f.short_description, ''), bs.description`

func (s *Session) Bitstreams(ctx context.Context, bundle repo.Bundle) ([]repo.Bitstream, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT `+bitstreamColumns+`
		FROM bundle_bitstreams bb
		JOIN bitstreams bs ON bs.id = bb.bitstream_id
		LEFT JOIN bitstream_formats f ON f.id = bs.format_id
		WHERE bb.bundle_id = ?
		ORDER BY bb.position ASC, bs.id ASC
	`, bundle.ID)
	if err != nil {
		return nil, ir.WrapStoreError("bitstreams", err)
	}
	defer rows.Close()

	var out []repo.Bitstream
	for rows.Next() {
		bs, err := scanBitstream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bs)
	}
	return out, ir.WrapStoreError("bitstreams", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBitstream(row scanner) (repo.Bitstream, error) {
	var bs repo.Bitstream
	err := row.Scan(&bs.ID, &bs.Name, &bs.Size, &bs.Checksum, &bs.MIMEType, &bs.Format, &bs.Description)
	if err != nil {
		return repo.Bitstream{}, err
	}
	return bs, nil
}

func (s *Session) FindBitstream(ctx context.Context, id int64) (repo.Bitstream, error) {
	row := s.tx.QueryRowContext(ctx, `
		SELECT `+bitstreamColumns+`
		FROM bitstreams bs
		LEFT JOIN bitstream_formats f ON f.id = bs.format_id
		WHERE bs.id = ? AND bs.deleted = 0
	`, id)
	bs, err := scanBitstream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.Bitstream{}, fmt.Errorf("bitstream %d: %w", id, repo.ErrNotFound)
	}
	if err != nil {
		return repo.Bitstream{}, ir.WrapStoreError("find bitstream", err)
	}
	return bs, nil
}

func (s *Session) CreateBitstream(ctx context.Context, bundle repo.Bundle, name string, r io.Reader) (repo.Bitstream, error) {
	asset, err := s.store.assets.Put(r)
	if err != nil {
		return repo.Bitstream{}, ir.WrapStoreError("create bitstream", err)
	}

	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO bitstreams (name, size, checksum, mimetype) VALUES (?, ?, ?, ?)
	`, name, asset.Size, asset.Digest.String(), asset.MIMEType)
	if err != nil {
		return repo.Bitstream{}, ir.WrapStoreError("create bitstream", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return repo.Bitstream{}, ir.WrapStoreError("create bitstream", err)
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO bundle_bitstreams (bundle_id, bitstream_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM bundle_bitstreams WHERE bundle_id = ?))
	`, bundle.ID, id, bundle.ID)
	if err != nil {
		return repo.Bitstream{}, ir.WrapStoreError("create bitstream", err)
	}

	// New content inherits anonymous read access when that group exists.
	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO resource_policies (bitstream_id, action, group_id)
		SELECT ?, ?, id FROM epersongroups WHERE name = ?
	`, id, repo.ActionRead, AnonymousGroup)
	if err != nil {
		return repo.Bitstream{}, ir.WrapStoreError("create bitstream", err)
	}

	return repo.Bitstream{
		ID:       id,
		Name:     name,
		Size:     asset.Size,
		Checksum: asset.Digest.String(),
		MIMEType: asset.MIMEType,
	}, nil
}

// AnonymousGroup receives default read access on new bitstreams.
const AnonymousGroup = "Anonymous"

// GuessFormat matches the bitstream's extension against the format
// registry, then its sniffed MIME type. Unmatched content gets the unknown
// format (ID 0).
func (s *Session) GuessFormat(ctx context.Context, bs repo.Bitstream) (repo.Format, error) {
	var f repo.Format
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(bs.Name)), ".")
	if ext != "" {
		err := s.tx.QueryRowContext(ctx, `
			SELECT f.id, f.short_description, f.mimetype
			FROM format_extensions e
			JOIN bitstream_formats f ON f.id = e.format_id
			WHERE e.extension = ?
			ORDER BY f.id ASC LIMIT 1
		`, ext).Scan(&f.ID, &f.ShortDescription, &f.MIMEType)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return repo.Format{}, ir.WrapStoreError("guess format", err)
		}
	}

	mime, _, _ := strings.Cut(bs.MIMEType, ";")
	err := s.tx.QueryRowContext(ctx, `
		SELECT id, short_description, mimetype FROM bitstream_formats
		WHERE mimetype = ? ORDER BY id ASC LIMIT 1
	`, mime).Scan(&f.ID, &f.ShortDescription, &f.MIMEType)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.Format{ShortDescription: "Unknown", MIMEType: "application/octet-stream"}, nil
	}
	if err != nil {
		return repo.Format{}, ir.WrapStoreError("guess format", err)
	}
	return f, nil
}

func (s *Session) SetFormat(ctx context.Context, bs repo.Bitstream, format repo.Format) error {
	var formatID any
	if format.ID != 0 {
		formatID = format.ID
	}
	_, err := s.tx.ExecContext(ctx, `UPDATE bitstreams SET format_id = ? WHERE id = ?`, formatID, bs.ID)
	return ir.WrapStoreError("set format", err)
}

func (s *Session) SetDescription(ctx context.Context, bs repo.Bitstream, description string) error {
	_, err := s.tx.ExecContext(ctx, `UPDATE bitstreams SET description = ? WHERE id = ?`, description, bs.ID)
	return ir.WrapStoreError("set description", err)
}

func (s *Session) RemovePolicies(ctx context.Context, bs repo.Bitstream) error {
	_, err := s.tx.ExecContext(ctx, `DELETE FROM resource_policies WHERE bitstream_id = ?`, bs.ID)
	return ir.WrapStoreError("remove policies", err)
}

func (s *Session) AddPolicy(ctx context.Context, bs repo.Bitstream, action, group string) error {
	var groupID int64
	err := s.tx.QueryRowContext(ctx, `SELECT id FROM epersongroups WHERE name = ?`, group).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.NewResolutionError("add policy", fmt.Sprintf("group %q", group), repo.ErrNotFound)
	}
	if err != nil {
		return ir.WrapStoreError("add policy", err)
	}
	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO resource_policies (bitstream_id, action, group_id) VALUES (?, ?, ?)
	`, bs.ID, action, groupID)
	return ir.WrapStoreError("add policy", err)
}

// Policy is one resource policy, as listed by Policies.
type Policy struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

// Policies lists the policies on a bitstream.
func (s *Session) Policies(ctx context.Context, bs repo.Bitstream) ([]Policy, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT p.action, g.name FROM resource_policies p
		JOIN epersongroups g ON g.id = p.group_id
		WHERE p.bitstream_id = ?
		ORDER BY p.id ASC
	`, bs.ID)
	if err != nil {
		return nil, ir.WrapStoreError("policies", err)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.Action, &p.Group); err != nil {
			return nil, ir.WrapStoreError("policies", err)
		}
		out = append(out, p)
	}
	return out, ir.WrapStoreError("policies", rows.Err())
}

func (s *Session) RemoveBitstream(ctx context.Context, bundle repo.Bundle, bs repo.Bitstream) error {
	_, err := s.tx.ExecContext(ctx,
		`DELETE FROM bundle_bitstreams WHERE bundle_id = ? AND bitstream_id = ?`, bundle.ID, bs.ID)
	if err != nil {
		return ir.WrapStoreError("remove bitstream", err)
	}
	_, err = s.tx.ExecContext(ctx, `
		UPDATE bitstreams SET deleted = 1
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM bundle_bitstreams WHERE bitstream_id = ?)
	`, bs.ID, bs.ID)
	return ir.WrapStoreError("remove bitstream", err)
}

func (s *Session) TouchItem(ctx context.Context, item repo.Item) error {
	_, err := s.tx.ExecContext(ctx, `UPDATE items SET last_modified = ? WHERE id = ?`,
		s.store.now().UTC().Format(timeLayout), item.ID)
	return ir.WrapStoreError("touch item", err)
}
