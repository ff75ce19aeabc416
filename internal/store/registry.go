package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/itemupdate/internal/ir"
)

// LoadRegistry upserts the schemas, fields, formats and groups of spec in
// one transaction. Existing entries are kept; loading is idempotent.
func (s *Store) LoadRegistry(ctx context.Context, spec *ir.RegistrySpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	defer tx.Rollback()

	for _, schema := range spec.Schemas {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metadata_schemas (prefix, namespace) VALUES (?, ?)
			ON CONFLICT(prefix) DO UPDATE SET namespace = excluded.namespace
		`, schema.Prefix, schema.Namespace)
		if err != nil {
			return fmt.Errorf("load schema %s: %w", schema.Prefix, err)
		}

		for _, field := range schema.Fields {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO metadata_fields (schema_id, element, qualifier)
				SELECT id, ?, ? FROM metadata_schemas WHERE prefix = ?
				ON CONFLICT(schema_id, element, qualifier) DO NOTHING
			`, field.Element, field.Qualifier, schema.Prefix)
			if err != nil {
				return fmt.Errorf("load field %s: %w", field, err)
			}
		}
	}

	for _, format := range spec.Formats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bitstream_formats (short_description, mimetype) VALUES (?, ?)
			ON CONFLICT(short_description) DO UPDATE SET mimetype = excluded.mimetype
		`, format.ShortDescription, format.MIMEType)
		if err != nil {
			return fmt.Errorf("load format %s: %w", format.ShortDescription, err)
		}
		for _, ext := range format.Extensions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO format_extensions (format_id, extension)
				SELECT id, ? FROM bitstream_formats WHERE short_description = ?
				ON CONFLICT DO NOTHING
			`, strings.ToLower(strings.TrimPrefix(ext, ".")), format.ShortDescription)
			if err != nil {
				return fmt.Errorf("load format %s: %w", format.ShortDescription, err)
			}
		}
	}

	for _, group := range spec.Groups {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO epersongroups (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, group)
		if err != nil {
			return fmt.Errorf("load group %s: %w", group, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	s.fields.Flush()
	return nil
}

// RegistryCounts summarizes what the store has registered.
type RegistryCounts struct {
	Schemas int `json:"schemas"`
	Fields  int `json:"fields"`
	Formats int `json:"formats"`
	Groups  int `json:"groups"`
}

// CountRegistry returns the number of registered schemas, fields, formats
// and groups.
func (s *Store) CountRegistry(ctx context.Context) (RegistryCounts, error) {
	var c RegistryCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM metadata_schemas),
			(SELECT COUNT(*) FROM metadata_fields),
			(SELECT COUNT(*) FROM bitstream_formats),
			(SELECT COUNT(*) FROM epersongroups)
	`).Scan(&c.Schemas, &c.Fields, &c.Formats, &c.Groups)
	if err != nil {
		return RegistryCounts{}, fmt.Errorf("count registry: %w", err)
	}
	return c, nil
}
