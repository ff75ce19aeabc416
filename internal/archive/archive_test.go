package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/testutil"
)

func TestLoadResolvesByHandle(t *testing.T) {
	s := testutil.OpenStore(t, nil)
	ctx := context.Background()
	item, err := s.CreateItem(ctx, "123/1", nil)
	require.NoError(t, err)

	root := t.TempDir()
	dir := testutil.NewItemDir(t, root, "item_001").
		Metadata("dc",
			testutil.Field(t, "dc.identifier.uri", "", "urn:isbn:0000"),
			testutil.HandleURI(t, "123/1"),
			testutil.Field(t, "dc.title", "en", "Title"),
		).
		Metadata("local", testutil.Field(t, "local.note", "", "n"))

	ia, err := Load(ctx, testutil.Session(t, s), dir.Path, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, item, ia.Item())
	assert.Equal(t, "item_001", ia.DirName())
	assert.Len(t, ia.Metadata(), 4)
	assert.Equal(t, "local", ia.Metadata()[3].Schema)

	// the resolving field seeds the undo set
	assert.Equal(t, []ir.MetadataField{testutil.HandleURI(t, "123/1")}, ia.UndoMetadata())
	assert.Empty(t, ia.UndoBitstreams())
}

func TestLoadCustomHandlePrefix(t *testing.T) {
	s := testutil.OpenStore(t, nil)
	ctx := context.Background()
	item, err := s.CreateItem(ctx, "10.1/7", nil)
	require.NoError(t, err)

	dir := testutil.NewItemDir(t, t.TempDir(), "a").
		Metadata("dc", testutil.Field(t, "dc.identifier.uri", "", "https://repo.example.org/handle/10.1/7"))

	ia, err := Load(ctx, testutil.Session(t, s), dir.Path, LoadOptions{HandlePrefix: "https://repo.example.org/handle/"})
	require.NoError(t, err)
	assert.Equal(t, item, ia.Item())
}

func TestLoadResolvesByItemField(t *testing.T) {
	s := testutil.OpenStore(t, nil)
	ctx := context.Background()
	item, err := s.CreateItem(ctx, "123/2", []ir.MetadataField{
		testutil.Field(t, "dc.identifier.other", "", "ACC-42"),
	})
	require.NoError(t, err)

	dir := testutil.NewItemDir(t, t.TempDir(), "x").
		Metadata("dc",
			testutil.Field(t, "dc.identifier.other", "", "ACC-42"),
			testutil.Field(t, "dc.title", "", "T"),
		)

	ia, err := Load(ctx, testutil.Session(t, s), dir.Path, LoadOptions{ItemField: "dc.identifier.other"})
	require.NoError(t, err)
	assert.Equal(t, item, ia.Item())
	assert.Equal(t, "ACC-42", ia.UndoMetadata()[0].Value)
}

func TestLoadExplicitURIFieldMatchesByValue(t *testing.T) {
	s := testutil.OpenStore(t, nil)
	ctx := context.Background()
	item, err := s.CreateItem(ctx, "123/9", []ir.MetadataField{
		testutil.Field(t, "dc.identifier.uri", "", "urn:local:9"),
	})
	require.NoError(t, err)

	dir := testutil.NewItemDir(t, t.TempDir(), "u").
		Metadata("dc", testutil.Field(t, "dc.identifier.uri", "", "urn:local:9"))

	sess := testutil.Session(t, s)

	// without -i the value carries no handle prefix and cannot resolve
	_, err = Load(ctx, sess, dir.Path, LoadOptions{})
	assert.Equal(t, ir.KindResolution, ir.KindOf(err))

	ia, err := Load(ctx, sess, dir.Path, LoadOptions{ItemField: "dc.identifier.uri"})
	require.NoError(t, err)
	assert.Equal(t, item, ia.Item())
	assert.Equal(t, "urn:local:9", ia.UndoMetadata()[0].Value)
}

func TestLoadResolutionFailures(t *testing.T) {
	s := testutil.OpenStore(t, nil)
	ctx := context.Background()
	_, err := s.CreateItem(ctx, "123/3", []ir.MetadataField{testutil.Field(t, "dc.identifier.other", "", "DUP")})
	require.NoError(t, err)
	_, err = s.CreateItem(ctx, "123/4", []ir.MetadataField{testutil.Field(t, "dc.identifier.other", "", "DUP")})
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields []ir.MetadataField
		opts   LoadOptions
		want   string
	}{
		{
			name:   "no handle uri",
			fields: []ir.MetadataField{testutil.Field(t, "dc.title", "", "T")},
			want:   "no dc.identifier.uri value",
		},
		{
			name:   "unknown handle",
			fields: []ir.MetadataField{testutil.HandleURI(t, "999/9")},
			want:   `no item with handle "999/9"`,
		},
		{
			name: "two item field values",
			fields: []ir.MetadataField{
				testutil.Field(t, "dc.identifier.other", "", "A"),
				testutil.Field(t, "dc.identifier.other", "", "B"),
			},
			opts: LoadOptions{ItemField: "dc.identifier.other"},
			want: "found 2",
		},
		{
			name:   "ambiguous item",
			fields: []ir.MetadataField{testutil.Field(t, "dc.identifier.other", "", "DUP")},
			opts:   LoadOptions{ItemField: "dc.identifier.other"},
			want:   "exactly one item",
		},
		{
			name:   "no matching item",
			fields: []ir.MetadataField{testutil.Field(t, "dc.identifier.other", "", "NONE")},
			opts:   LoadOptions{ItemField: "dc.identifier.other"},
			want:   "found 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.NewItemDir(t, t.TempDir(), "item").Metadata("dc", tt.fields...)
			_, err := Load(ctx, testutil.Session(t, s), dir.Path, tt.opts)
			require.Error(t, err)
			assert.True(t, ir.IsKind(err, ir.KindResolution), err.Error())
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadParseFailures(t *testing.T) {
	sess := testutil.Session(t, testutil.OpenStore(t, nil))
	ctx := context.Background()

	missing := testutil.NewItemDir(t, t.TempDir(), "empty")
	_, err := Load(ctx, sess, missing.Path, LoadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	malformed := testutil.NewItemDir(t, t.TempDir(), "bad").File(DublinCoreFile, "<dublin_core><dcvalue")
	_, err = Load(ctx, sess, malformed.Path, LoadOptions{})
	assert.True(t, ir.IsKind(err, ir.KindParse))

	wildcard := testutil.NewItemDir(t, t.TempDir(), "wild").File(DublinCoreFile,
		`<dublin_core><dcvalue element="title" qualifier="*">x</dcvalue></dublin_core>`)
	_, err = Load(ctx, sess, wildcard.Path, LoadOptions{})
	assert.True(t, ir.IsKind(err, ir.KindParse))
}

func TestParseMetadataDefaults(t *testing.T) {
	fields, err := parseMetadata("dublin_core.xml", []byte(`
<dublin_core>
  <dcvalue element="title" qualifier="none">  Padded  </dcvalue>
  <dcvalue element="date" qualifier="issued" language="">2020</dcvalue>
</dublin_core>`))
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, ir.MetadataField{Schema: "dc", Element: "title", Value: "Padded"}, fields[0])
	assert.Equal(t, "issued", fields[1].Qualifier)
}

func TestFieldsMatching(t *testing.T) {
	ia := &ItemArchive{metadata: []ir.MetadataField{
		testutil.Field(t, "dc.title", "", "a"),
		testutil.Field(t, "dc.title.alternative", "", "b"),
		testutil.Field(t, "dc.subject", "", "c"),
	}}

	assert.Len(t, ia.FieldsMatching(ir.FieldName{Schema: "dc", Element: "title"}), 1)
	assert.Len(t, ia.FieldsMatching(ir.FieldName{Schema: "dc", Element: "title", Qualifier: "*"}), 2)
}

func TestWriteUndo(t *testing.T) {
	ia := &ItemArchive{dirName: "item_001"}
	ia.AddUndoMetadata(testutil.HandleURI(t, "123/1"))
	ia.AddUndoMetadata(
		testutil.Field(t, "dc.title", "en", "Old & <new>"),
		testutil.Field(t, "local.note", "", "kept"),
	)
	ia.AddUndoBitstream(7)
	ia.AddUndoBitstream(9)

	undoRoot := t.TempDir()
	dir, err := ia.WriteUndo(undoRoot)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(undoRoot, "item_001"), dir)

	testutil.AssertGoldenDir(t, "undo_item", dir)
}

func TestWriteUndoMetadataOnly(t *testing.T) {
	ia := &ItemArchive{dirName: "only_md"}
	ia.AddUndoMetadata(testutil.HandleURI(t, "123/2"))

	dir, err := ia.WriteUndo(t.TempDir())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "delete_contents"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "metadata_local.xml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUndoArchiveReloads(t *testing.T) {
	s := testutil.OpenStore(t, nil)
	ctx := context.Background()
	item, err := s.CreateItem(ctx, "123/5", nil)
	require.NoError(t, err)

	ia := &ItemArchive{dirName: "round"}
	ia.AddUndoMetadata(testutil.HandleURI(t, "123/5"), testutil.Field(t, "local.note", "de", "Notiz"))
	dir, err := ia.WriteUndo(t.TempDir())
	require.NoError(t, err)

	reloaded, err := Load(ctx, testutil.Session(t, s), dir, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, item, reloaded.Item())
	assert.Equal(t, ia.UndoMetadata(), reloaded.Metadata())
}

func TestWriteMetadataSplitsSchemas(t *testing.T) {
	dir := t.TempDir()
	fields := []ir.MetadataField{
		testutil.Field(t, "dc.title", "", "Report"),
		testutil.Field(t, "local.note", "", "internal"),
		testutil.Field(t, "dc.subject", "en", "Budgets"),
	}
	require.NoError(t, WriteMetadata(dir, fields))

	assert.FileExists(t, filepath.Join(dir, DublinCoreFile))
	assert.FileExists(t, filepath.Join(dir, "metadata_local.xml"))

	got, err := readArchiveMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, []ir.MetadataField{fields[0], fields[2], fields[1]}, got)
}
