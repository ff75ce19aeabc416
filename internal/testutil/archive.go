package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/itemupdate/internal/compiler"
	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
)

// Field builds a MetadataField from a compound name, failing the test on a
// malformed name.
func Field(t testing.TB, name, language, value string) ir.MetadataField {
	t.Helper()
	fn, err := ir.ParseFieldName(name, false)
	require.NoError(t, err)
	f, err := ir.NewMetadataField(fn.Schema, fn.Element, fn.Qualifier, language, value)
	require.NoError(t, err)
	return f
}

// HandleURI returns the dc.identifier.uri field for handle.
func HandleURI(t testing.TB, handle string) ir.MetadataField {
	return Field(t, "dc.identifier.uri", "", "http://hdl.handle.net/"+handle)
}

// ItemDir is a builder for one item directory of a source archive.
type ItemDir struct {
	t    testing.TB
	Path string
}

// NewItemDir creates root/name.
func NewItemDir(t testing.TB, root, name string) *ItemDir {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(path, 0o755))
	return &ItemDir{t: t, Path: path}
}

// Metadata writes dublin_core.xml (schema dc) or metadata_<schema>.xml.
func (d *ItemDir) Metadata(schema string, fields ...ir.MetadataField) *ItemDir {
	d.t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<dublin_core schema=%q>\n", schema)
	for _, f := range fields {
		q := f.Qualifier
		if q == "" {
			q = "none"
		}
		fmt.Fprintf(&b, "  <dcvalue element=%q qualifier=%q", f.Element, q)
		if f.Language != "" {
			fmt.Fprintf(&b, " language=%q", f.Language)
		}
		fmt.Fprintf(&b, ">%s</dcvalue>\n", xmlEscape(f.Value))
	}
	b.WriteString("</dublin_core>\n")

	name := "dublin_core.xml"
	if schema != "dc" {
		name = "metadata_" + schema + ".xml"
	}
	return d.File(name, b.String())
}

// Fields writes dublin_core.xml with the dc fields and one
// metadata_<schema>.xml per other schema, keeping field order.
func (d *ItemDir) Fields(fields ...ir.MetadataField) *ItemDir {
	d.t.Helper()
	bySchema := map[string][]ir.MetadataField{}
	var order []string
	for _, f := range fields {
		if _, ok := bySchema[f.Schema]; !ok {
			order = append(order, f.Schema)
		}
		bySchema[f.Schema] = append(bySchema[f.Schema], f)
	}
	if _, ok := bySchema["dc"]; !ok {
		d.Metadata("dc")
	}
	for _, schema := range order {
		d.Metadata(schema, bySchema[schema]...)
	}
	return d
}

// File writes a file into the item directory.
func (d *ItemDir) File(name, content string) *ItemDir {
	d.t.Helper()
	require.NoError(d.t, os.WriteFile(filepath.Join(d.Path, name), []byte(content), 0o644))
	return d
}

// Contents writes the contents manifest, one line per argument.
func (d *ItemDir) Contents(lines ...string) *ItemDir {
	return d.File("contents", strings.Join(lines, "\n")+"\n")
}

// DeleteContents writes the delete_contents manifest.
func (d *ItemDir) DeleteContents(ids ...string) *ItemDir {
	return d.File("delete_contents", strings.Join(ids, "\n")+"\n")
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// OpenStore opens a store in a temp dir seeded with the default registry
// plus a "Staff" group and a "local" schema with a "note" field.
func OpenStore(t testing.TB, clock *DeterministicClock) *store.Store {
	t.Helper()
	dir := t.TempDir()
	opts := []store.Option{store.WithAssetDir(filepath.Join(dir, "assets"))}
	if clock != nil {
		opts = append(opts, store.WithClock(clock.Now))
	}
	s, err := store.Open(filepath.Join(dir, "repo.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg, err := compiler.DefaultRegistry()
	require.NoError(t, err)
	reg.Groups = append(reg.Groups, "Staff")
	reg.Schemas = append(reg.Schemas, ir.SchemaSpec{
		Prefix:    "local",
		Namespace: "http://example.org/local",
		Fields:    []ir.FieldName{{Schema: "local", Element: "note"}},
	})
	require.NoError(t, s.LoadRegistry(context.Background(), reg))
	return s
}

// Session begins a session and rolls it back at cleanup.
func Session(t testing.TB, s *store.Store) repo.Session {
	t.Helper()
	sess, err := s.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Rollback() })
	return sess
}
