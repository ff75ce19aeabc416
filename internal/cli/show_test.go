package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
)

func TestShow_Text(t *testing.T) {
	db := initRepo(t)
	pdf := filepath.Join(t.TempDir(), "file1.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n"), 0o644))
	mustExecute(t, "--db", db, "item", "create", "123/1",
		"-m", "dc.title=Annual report", "-m", "dc.subject@en=finance", "-f", pdf)

	out := mustExecute(t, "--db", db, "show", "123/1")

	assert.Contains(t, out, "Item 123/1")
	assert.Contains(t, out, "dc.title")
	assert.Contains(t, out, "Annual report")
	assert.Contains(t, out, "finance")
	assert.Contains(t, out, "file1.pdf")
	assert.Contains(t, out, repo.BundleOriginal)
	assert.Contains(t, out, repo.ActionRead+":"+store.AnonymousGroup)
}

func TestShow_NoBitstreams(t *testing.T) {
	db := initRepo(t)
	mustExecute(t, "--db", db, "item", "create", "123/1", "-m", "dc.title=Annual report")

	out := mustExecute(t, "--db", db, "show", "123/1")
	assert.Contains(t, out, "Annual report")
	assert.NotContains(t, out, "CHECKSUM")
}

func TestShow_JSON(t *testing.T) {
	db := initRepo(t)
	mustExecute(t, "--db", db, "item", "create", "123/1", "-m", "dc.title=Annual report")

	detail := showItem(t, db, "123/1")
	assert.Equal(t, "123/1", detail.Item.Handle)
	assert.NotEmpty(t, detail.LastModified)
	require.Len(t, detail.Metadata, 1)
	assert.Equal(t, "Annual report", detail.Metadata[0].Value)
	assert.Empty(t, detail.Bundles)
}

func TestShow_UnknownHandle(t *testing.T) {
	db := initRepo(t)

	stdout, _, err := execute(t, "--db", db, "show", "999/9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [RESOLUTION]")
}
