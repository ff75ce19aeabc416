package testutil

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// AssertGolden compares data against testdata/golden/{name}.golden.
//
// To regenerate golden files, run the package tests with -update.
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// SnapshotDir renders every regular file under dir as
//
//	== relative/path ==
//	<content>
//
// in lexical path order.
func SnapshotDir(t *testing.T, dir string) []byte {
	t.Helper()
	var buf bytes.Buffer
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		buf.WriteString("== " + filepath.ToSlash(rel) + " ==\n")
		buf.Write(data)
		return nil
	})
	require.NoError(t, err)
	return buf.Bytes()
}

// AssertGoldenDir snapshots dir and compares it against a golden file.
func AssertGoldenDir(t *testing.T, name, dir string) {
	t.Helper()
	AssertGolden(t, name, SnapshotDir(t, dir))
}
