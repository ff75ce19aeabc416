package action

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/itemupdate/internal/archive"
	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
	"github.com/roach88/itemupdate/internal/testutil"
)

type fixture struct {
	store *store.Store
	clock *testutil.DeterministicClock
	root  string
	item  repo.Item
}

func newFixture(t *testing.T, handle string, fields ...ir.MetadataField) *fixture {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	s := testutil.OpenStore(t, clock)
	item, err := s.CreateItem(context.Background(), handle, fields)
	require.NoError(t, err)
	return &fixture{store: s, clock: clock, root: t.TempDir(), item: item}
}

// itemDir creates an item directory whose dublin_core.xml identifies the
// fixture item plus any extra fields.
func (f *fixture) itemDir(t *testing.T, name string, fields ...ir.MetadataField) *testutil.ItemDir {
	t.Helper()
	all := append([]ir.MetadataField{testutil.HandleURI(t, f.item.Handle)}, fields...)
	return testutil.NewItemDir(t, f.root, name).Fields(all...)
}

// load opens the test's only session and loads dir against it.
func (f *fixture) load(t *testing.T, dir *testutil.ItemDir) (*archive.ItemArchive, *spySession) {
	t.Helper()
	sess := &spySession{Session: testutil.Session(t, f.store)}
	ia, err := archive.Load(context.Background(), sess, dir.Path, archive.LoadOptions{})
	require.NoError(t, err)
	return ia, sess
}

func (f *fixture) env(sess repo.Session) Env {
	return Env{
		Session: sess,
		Logger:  slog.New(slog.DiscardHandler),
		Now:     f.clock.Now,
		EPerson: "tester@example.org",
	}
}

// spySession records every mutating call.
type spySession struct {
	repo.Session
	mutations []string
}

func (s *spySession) record(name string) { s.mutations = append(s.mutations, name) }

func (s *spySession) AddMetadata(ctx context.Context, item repo.Item, f ir.MetadataField) error {
	s.record("AddMetadata")
	return s.Session.AddMetadata(ctx, item, f)
}

func (s *spySession) ClearMetadata(ctx context.Context, item repo.Item, field ir.FieldName) error {
	s.record("ClearMetadata")
	return s.Session.ClearMetadata(ctx, item, field)
}

func (s *spySession) CreateBundle(ctx context.Context, item repo.Item, name string) (repo.Bundle, error) {
	s.record("CreateBundle")
	return s.Session.CreateBundle(ctx, item, name)
}

func (s *spySession) CreateBitstream(ctx context.Context, b repo.Bundle, name string, r io.Reader) (repo.Bitstream, error) {
	s.record("CreateBitstream")
	return s.Session.CreateBitstream(ctx, b, name, r)
}

func (s *spySession) SetFormat(ctx context.Context, bs repo.Bitstream, f repo.Format) error {
	s.record("SetFormat")
	return s.Session.SetFormat(ctx, bs, f)
}

func (s *spySession) SetDescription(ctx context.Context, bs repo.Bitstream, d string) error {
	s.record("SetDescription")
	return s.Session.SetDescription(ctx, bs, d)
}

func (s *spySession) RemovePolicies(ctx context.Context, bs repo.Bitstream) error {
	s.record("RemovePolicies")
	return s.Session.RemovePolicies(ctx, bs)
}

func (s *spySession) AddPolicy(ctx context.Context, bs repo.Bitstream, action, group string) error {
	s.record("AddPolicy")
	return s.Session.AddPolicy(ctx, bs, action, group)
}

func (s *spySession) RemoveBitstream(ctx context.Context, b repo.Bundle, bs repo.Bitstream) error {
	s.record("RemoveBitstream")
	return s.Session.RemoveBitstream(ctx, b, bs)
}

func (s *spySession) TouchItem(ctx context.Context, item repo.Item) error {
	s.record("TouchItem")
	return s.Session.TouchItem(ctx, item)
}

func values(t *testing.T, sess repo.Session, item repo.Item, name string) []string {
	t.Helper()
	fields, err := sess.GetMetadata(context.Background(), item, ir.MustParseFieldName(name))
	require.NoError(t, err)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Value)
	}
	return out
}

func bitstreamNames(t *testing.T, sess repo.Session, item repo.Item, bundle string) []string {
	t.Helper()
	ctx := context.Background()
	bundles, err := sess.Bundles(ctx, item, bundle)
	require.NoError(t, err)
	var names []string
	for _, b := range bundles {
		bss, err := sess.Bitstreams(ctx, b)
		require.NoError(t, err)
		for _, bs := range bss {
			names = append(names, bs.Name)
		}
	}
	return names
}
