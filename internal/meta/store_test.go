package meta

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mokrunka/taskwarrior-capsules/internal/db"
)

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*MemStore)(nil)
)

func TestSQLStore_CloseWithoutOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	s := NewSQLStore(dir)
	require.NoError(t, s.Close())
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err), "Close must not create the database")
}

func TestSQLStore_LazyOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	s := NewSQLStore(dir)
	defer s.Close()

	require.False(t, s.Opened())
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err), "directory created before first access")

	doc, err := s.Get(context.Background(), "journal")
	require.NoError(t, err)
	require.True(t, doc.IsEmpty())
	require.True(t, s.Opened())

	_, err = os.Stat(filepath.Join(dir, db.FileName))
	require.NoError(t, err)
}

func TestSQLStore_RoundTrip(t *testing.T) {
	s := NewSQLStore(t.TempDir())
	defer s.Close()
	ctx := context.Background()

	ts := time.Unix(1700000000, 0)
	s.now = func() time.Time { return ts }

	doc, err := NewDocument().Set("count", 2)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "deploy", doc))

	got, err := s.Get(ctx, "deploy")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Get("count").Int())

	entries, err := s.Names(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "deploy", entries[0].Name)
	require.Equal(t, len(doc.Raw()), entries[0].Bytes)
	require.True(t, entries[0].UpdatedAt.Equal(ts))
}

func TestSQLStore_PersistsAcrossStores(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewSQLStore(dir)
	doc, err := NewDocument().Set("seen", true)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "context", doc))
	require.NoError(t, first.Close())

	second := NewSQLStore(dir)
	defer second.Close()
	got, err := second.Get(ctx, "context")
	require.NoError(t, err)
	require.True(t, got.Get("seen").Bool())
}

func TestSQLStore_OpenFailure(t *testing.T) {
	// A regular file where the directory should be.
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	s := NewSQLStore(path)
	_, err := s.Get(context.Background(), "x")
	require.Error(t, err)
	require.Error(t, s.Put(context.Background(), "x", NewDocument()))
	require.NoError(t, s.Close())
}

func TestMemStore(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	doc, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	require.True(t, doc.IsEmpty())

	a, _ := NewDocument().Set("a", 1)
	b, _ := NewDocument().Set("b", 2)
	require.NoError(t, m.Put(ctx, "a", a))
	require.NoError(t, m.Put(ctx, "b", b))
	require.NoError(t, m.Put(ctx, "a", a))

	entries, err := m.Names(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].Name, "most recently updated first")
	require.Equal(t, "b", entries[1].Name)

	got, err := m.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Get("b").Int())
}
