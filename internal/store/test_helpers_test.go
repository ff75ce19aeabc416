package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/itemupdate/internal/ir"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a store in a temp dir seeded with testRegistry.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"),
		WithAssetDir(filepath.Join(dir, "assets")),
		WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.LoadRegistry(context.Background(), testRegistry()); err != nil {
		t.Fatalf("LoadRegistry() failed: %v", err)
	}
	return s
}

func testRegistry() *ir.RegistrySpec {
	return &ir.RegistrySpec{
		Schemas: []ir.SchemaSpec{{
			Prefix:    "dc",
			Namespace: "http://dublincore.org/documents/dcmi-terms/",
			Fields: []ir.FieldName{
				ir.MustParseFieldName("dc.title"),
				ir.MustParseFieldName("dc.identifier.uri"),
				ir.MustParseFieldName("dc.description.provenance"),
				ir.MustParseFieldName("dc.subject"),
			},
		}},
		Formats: []ir.FormatSpec{
			{ShortDescription: "Text", MIMEType: "text/plain", Extensions: []string{"txt"}},
			{ShortDescription: "Adobe PDF", MIMEType: "application/pdf", Extensions: []string{".PDF"}},
		},
		Groups: []string{AnonymousGroup, "Staff"},
	}
}

func mustField(t *testing.T, name, lang, value string) ir.MetadataField {
	t.Helper()
	fn := ir.MustParseFieldName(name)
	f, err := ir.NewMetadataField(fn.Schema, fn.Element, fn.Qualifier, lang, value)
	if err != nil {
		t.Fatalf("NewMetadataField(%s) failed: %v", name, err)
	}
	return f
}

func beginSession(t *testing.T, s *Store) *Session {
	t.Helper()
	sess, err := s.begin(context.Background())
	if err != nil {
		t.Fatalf("begin() failed: %v", err)
	}
	t.Cleanup(func() { sess.Rollback() })
	return sess
}
