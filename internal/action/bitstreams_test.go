package action

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/itemupdate/internal/filter"
	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
)

func TestAddBitstreams(t *testing.T) {
	f := newFixture(t, "123/10")
	dir := f.itemDir(t, "item").
		File("a.pdf", "%PDF-1.4 fake").
		File("license.txt", "CC-BY").
		File("thumb.jpg", "not really a jpeg").
		Contents(
			"a.pdf\tdescription:Main article\tpermissions:-w 'Staff'",
			"license.txt",
			"thumb.jpg\tbundle:THUMBNAIL",
		)
	ia, sess := f.load(t, dir)

	env := f.env(sess)
	env.Provenance = true
	require.NoError(t, (&AddBitstreams{}).Execute(context.Background(), ia, env))

	assert.Equal(t, []string{"a.pdf"}, bitstreamNames(t, sess, f.item, repo.BundleOriginal))
	assert.Equal(t, []string{"license.txt"}, bitstreamNames(t, sess, f.item, repo.BundleLicense))
	assert.Equal(t, []string{"thumb.jpg"}, bitstreamNames(t, sess, f.item, repo.BundleThumbnail))

	ids := ia.UndoBitstreams()
	require.Len(t, ids, 3)

	pdf, err := sess.FindBitstream(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Adobe PDF", pdf.Format)
	assert.Equal(t, "Main article", pdf.Description)

	policies, err := sess.Session.(*store.Session).Policies(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, []store.Policy{{Action: repo.ActionWrite, Group: "Staff"}}, policies)

	notes := values(t, sess, f.item, "dc.description.provenance")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "by tester@example.org on 2024-01-02T03:04:05Z")
	assert.Contains(t, notes[0], "No. of bitstreams: 2.")
	assert.Contains(t, notes[0], "a.pdf: 13 bytes")
	assert.NotContains(t, notes[0], "thumb.jpg")
}

func TestAddBitstreamsReusesExistingBundle(t *testing.T) {
	f := newFixture(t, "123/11")
	_, err := f.store.AttachFile(context.Background(), f.item, repo.BundleOriginal, "old.txt", strings.NewReader("old"))
	require.NoError(t, err)

	dir := f.itemDir(t, "item").File("new.txt", "new").Contents("new.txt")
	ia, sess := f.load(t, dir)
	require.NoError(t, (&AddBitstreams{}).Execute(context.Background(), ia, f.env(sess)))

	assert.Equal(t, []string{"old.txt", "new.txt"}, bitstreamNames(t, sess, f.item, repo.BundleOriginal))
	assert.NotContains(t, sess.mutations, "CreateBundle")
}

func TestAddBitstreamsValidation(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t, "123/12")
		dir := f.itemDir(t, "item").File("a.txt", "a").Contents("a.txt", "gone.txt")
		ia, sess := f.load(t, dir)

		err := (&AddBitstreams{}).Execute(context.Background(), ia, f.env(sess))
		require.Error(t, err)
		assert.True(t, ir.IsKind(err, ir.KindValidation))
		assert.Contains(t, err.Error(), "gone.txt")
		assert.Empty(t, sess.mutations, "files are checked before anything is stored")
	})

	t.Run("duplicate name", func(t *testing.T) {
		f := newFixture(t, "123/13")
		_, err := f.store.AttachFile(context.Background(), f.item, repo.BundleOriginal, "a.txt", strings.NewReader("a"))
		require.NoError(t, err)

		dir := f.itemDir(t, "item").File("a.txt", "a2").Contents("a.txt")
		ia, sess := f.load(t, dir)

		err = (&AddBitstreams{}).Execute(context.Background(), ia, f.env(sess))
		require.Error(t, err)
		assert.True(t, ir.IsKind(err, ir.KindValidation))
		assert.Contains(t, err.Error(), "already contains")
	})

	t.Run("bad manifest line", func(t *testing.T) {
		f := newFixture(t, "123/14")
		dir := f.itemDir(t, "item").File("a.txt", "a").Contents("a.txt\tcolor:red")
		ia, sess := f.load(t, dir)

		err := (&AddBitstreams{}).Execute(context.Background(), ia, f.env(sess))
		assert.True(t, ir.IsKind(err, ir.KindParse))
	})
}

func TestAddBitstreamsNoContents(t *testing.T) {
	f := newFixture(t, "123/15")
	ia, sess := f.load(t, f.itemDir(t, "item"))

	require.NoError(t, (&AddBitstreams{}).Execute(context.Background(), ia, f.env(sess)))
	assert.Empty(t, sess.mutations)
	assert.Empty(t, ia.UndoBitstreams())
}

func TestAddBitstreamsDryRun(t *testing.T) {
	f := newFixture(t, "123/16")
	dir := f.itemDir(t, "item").File("a.txt", "a").Contents("a.txt\tpermissions:-r 'Staff'")
	ia, sess := f.load(t, dir)

	env := f.env(sess)
	env.DryRun = true
	env.Provenance = true
	require.NoError(t, (&AddBitstreams{}).Execute(context.Background(), ia, env))

	assert.Empty(t, sess.mutations)
	assert.Empty(t, ia.UndoBitstreams())
	assert.Empty(t, bitstreamNames(t, sess, f.item, ""))
}

func TestDeleteBitstreams(t *testing.T) {
	f := newFixture(t, "123/20")
	ctx := context.Background()
	keep, err := f.store.AttachFile(ctx, f.item, repo.BundleOriginal, "keep.txt", strings.NewReader("k"))
	require.NoError(t, err)
	drop, err := f.store.AttachFile(ctx, f.item, repo.BundleOriginal, "drop.txt", strings.NewReader("d"))
	require.NoError(t, err)

	other, err := f.store.CreateItem(ctx, "123/21", nil)
	require.NoError(t, err)
	foreign, err := f.store.AttachFile(ctx, other, repo.BundleOriginal, "foreign.txt", strings.NewReader("f"))
	require.NoError(t, err)

	dir := f.itemDir(t, "item").DeleteContents(
		strconv.FormatInt(drop.ID, 10),
		"not-a-number",
		"99999",
		strconv.FormatInt(foreign.ID, 10),
	)
	ia, sess := f.load(t, dir)

	env := f.env(sess)
	env.Provenance = true
	a := &DeleteBitstreams{}
	require.NoError(t, a.Execute(ctx, ia, env))

	assert.Equal(t, []string{keep.Name}, bitstreamNames(t, sess, f.item, repo.BundleOriginal))
	assert.Equal(t, []string{"foreign.txt"}, bitstreamNames(t, sess, other, repo.BundleOriginal))

	notes := values(t, sess, f.item, "dc.description.provenance")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "Bitstream deleted by tester@example.org")
	assert.Contains(t, notes[0], "drop.txt")

	assert.Empty(t, ia.UndoBitstreams())
	assert.Nil(t, a.UndoArgs())
}

func TestDeleteBitstreamsMissingManifest(t *testing.T) {
	f := newFixture(t, "123/22")
	ia, sess := f.load(t, f.itemDir(t, "item"))

	require.NoError(t, (&DeleteBitstreams{}).Execute(context.Background(), ia, f.env(sess)))
	assert.Empty(t, sess.mutations)
}

func TestDeleteBitstreamsDryRun(t *testing.T) {
	f := newFixture(t, "123/23")
	bs, err := f.store.AttachFile(context.Background(), f.item, repo.BundleOriginal, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	ia, sess := f.load(t, f.itemDir(t, "item").DeleteContents(strconv.FormatInt(bs.ID, 10)))
	env := f.env(sess)
	env.DryRun = true
	require.NoError(t, (&DeleteBitstreams{}).Execute(context.Background(), ia, env))

	assert.Empty(t, sess.mutations)
	assert.Equal(t, []string{"a.txt"}, bitstreamNames(t, sess, f.item, ""))
}

func TestDeleteBitstreamsByFilter(t *testing.T) {
	f := newFixture(t, "123/30")
	ctx := context.Background()
	for _, spec := range []struct{ bundle, name string }{
		{repo.BundleOriginal, "a.pdf"},
		{repo.BundleOriginal, "b.pdf"},
		{repo.BundleText, "a.pdf.txt"},
		{repo.BundleLicense, "license.txt"},
	} {
		_, err := f.store.AttachFile(ctx, f.item, spec.bundle, spec.name, strings.NewReader(spec.name))
		require.NoError(t, err)
	}
	ia, sess := f.load(t, f.itemDir(t, "item"))

	flt, err := filter.New("original-with-derivatives", nil)
	require.NoError(t, err)
	a := &DeleteBitstreamsByFilter{}
	a.SetFilter(flt)

	env := f.env(sess)
	env.Provenance = true
	require.NoError(t, a.Execute(ctx, ia, env))

	assert.Equal(t, []string{"license.txt"}, bitstreamNames(t, sess, f.item, ""))

	notes := values(t, sess, f.item, "dc.description.provenance")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "filter original-with-derivatives")
	assert.Contains(t, notes[0], "No. of bitstreams: 2.")
	assert.NotContains(t, notes[0], "a.pdf.txt")
}

func TestDeleteBitstreamsByFilterErrors(t *testing.T) {
	f := newFixture(t, "123/31")
	_, err := f.store.AttachFile(context.Background(), f.item, repo.BundleOriginal, "a.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	ia, sess := f.load(t, f.itemDir(t, "item"))

	err = (&DeleteBitstreamsByFilter{}).Execute(context.Background(), ia, f.env(sess))
	assert.True(t, ir.IsKind(err, ir.KindConfig))

	flt, err := filter.New("bundle", nil)
	require.NoError(t, err)
	a := &DeleteBitstreamsByFilter{}
	a.SetFilter(flt)
	err = a.Execute(context.Background(), ia, f.env(sess))
	require.Error(t, err)
	assert.Equal(t, ir.CodeMissingProperty, ir.CodeOf(err))
	assert.Empty(t, sess.mutations)
}

func TestDeleteBitstreamsByFilterDryRun(t *testing.T) {
	f := newFixture(t, "123/32")
	_, err := f.store.AttachFile(context.Background(), f.item, repo.BundleOriginal, "a.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	ia, sess := f.load(t, f.itemDir(t, "item"))

	flt, err := filter.New("filename", filter.Properties{filter.PropFilename: `.*\.pdf`})
	require.NoError(t, err)
	a := &DeleteBitstreamsByFilter{}
	a.SetFilter(flt)

	env := f.env(sess)
	env.DryRun = true
	env.Provenance = true
	require.NoError(t, a.Execute(context.Background(), ia, env))
	assert.Empty(t, sess.mutations)
	assert.Equal(t, []string{"a.pdf"}, bitstreamNames(t, sess, f.item, ""))
}
