package session

import (
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	fs, err := vfs.New(ctx, st, vfs.Options{})
	require.NoError(t, err)

	for _, d := range []string{"/u/", "/home/alice/"} {
		_, err := fs.MakeDirs(ctx, d, true)
		require.NoError(t, err)
	}

	s, err := New(ctx, fs, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// edgesOf counts the edges that carry id.
func edgesOf(t *testing.T, s *Session, id store.ObjectID) int {
	t.Helper()
	entries, err := s.Store().GetEntries(t.Context(), []store.ObjectID{id})
	require.NoError(t, err)
	return len(entries)
}

func TestNewObjectsAppearAtCwd(t *testing.T) {
	s := newSession(t, Options{Cwd: "/u/"})
	ctx := t.Context()

	obj := &store.Object{TypeID: "car", Payload: []byte("x")}
	_, err := s.Store().Save(ctx, obj)
	require.NoError(t, err)

	e, err := s.FS().Lookup(ctx, "/u/"+string(obj.ID))
	require.NoError(t, err)
	assert.Equal(t, obj.ID, e.ID)

	// a second version does not move or duplicate the edge
	_, err = s.Store().Save(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, 1, edgesOf(t, s, obj.ID))

	// the listener firing twice for the same insert is idempotent
	ev := []store.WriteEvent{{Kind: store.WriteInsert, ObjID: obj.ID, Version: 0, SnapshotID: store.SnapshotID(obj.ID, 0)}}
	s.onWrite(ctx, ev)
	s.onWrite(ctx, ev)
	assert.Equal(t, 1, edgesOf(t, s, obj.ID))
	_, err = s.FS().Lookup(ctx, "/u/"+string(obj.ID))
	require.NoError(t, err)
}

func TestListenerKeepsUserPlacement(t *testing.T) {
	s := newSession(t, Options{Cwd: "/u/"})
	ctx := t.Context()

	obj := &store.Object{TypeID: "car"}
	_, err := s.Save(ctx, obj, "/home/alice/car")
	require.NoError(t, err)

	// a replayed insert event does not pull it back to the cwd
	s.onWrite(ctx, []store.WriteEvent{{Kind: store.WriteInsert, ObjID: obj.ID}})
	e, err := s.FS().Lookup(ctx, "/home/alice/car")
	require.NoError(t, err)
	assert.Equal(t, obj.ID, e.ID)
	assert.Equal(t, 1, edgesOf(t, s, obj.ID))
}

func TestDeletedObjectsLoseTheirEdge(t *testing.T) {
	s := newSession(t, Options{Cwd: "/u/"})
	ctx := t.Context()

	obj := &store.Object{TypeID: "car"}
	_, err := s.Save(ctx, obj, "car")
	require.NoError(t, err)
	require.Equal(t, 1, edgesOf(t, s, obj.ID))

	require.NoError(t, s.Store().Delete(ctx, obj.ID))
	assert.Equal(t, 0, edgesOf(t, s, obj.ID))
}

func TestClosedSessionStopsListening(t *testing.T) {
	s := newSession(t, Options{Cwd: "/u/"})
	ctx := t.Context()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	obj := &store.Object{TypeID: "car"}
	_, err := s.Store().Save(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, 0, edgesOf(t, s, obj.ID))
}

func TestSaveWithPath(t *testing.T) {
	s := newSession(t, Options{Cwd: "/u/"})
	ctx := t.Context()

	a := &store.Object{TypeID: "car"}
	rec, err := s.Save(ctx, a, "my_car")
	require.NoError(t, err)
	assert.Equal(t, a.ID, rec.ObjID)
	e, err := s.FS().Lookup(ctx, "/u/my_car")
	require.NoError(t, err)
	assert.Equal(t, a.ID, e.ID)

	b := &store.Object{TypeID: "car"}
	_, err = s.Save(ctx, b, "/home/alice/")
	require.NoError(t, err)
	_, err = s.FS().Lookup(ctx, "/home/alice/"+string(b.ID))
	require.NoError(t, err)

	c := &store.Object{TypeID: "car"}
	_, err = s.Save(ctx, c, "my_car")
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))
}

func TestSetCwd(t *testing.T) {
	s := newSession(t, Options{})
	ctx := t.Context()
	assert.Equal(t, "/", s.Cwd())

	require.NoError(t, s.SetCwd(ctx, "u"))
	assert.Equal(t, "/u/", s.Cwd())
	require.NoError(t, s.SetCwd(ctx, "../home/alice"))
	assert.Equal(t, "/home/alice/", s.Cwd())

	err := s.SetCwd(ctx, "/nope")
	assert.True(t, store.IsCode(err, store.ErrNotFound))
	assert.Equal(t, "/home/alice/", s.Cwd())

	_, err = s.Save(ctx, &store.Object{TypeID: "file"}, "f")
	require.NoError(t, err)
	err = s.SetCwd(ctx, "f")
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))

	require.NoError(t, s.SetCwd(ctx, "/"))
	require.NoError(t, s.SetCwd(ctx, "../.."))
	assert.Equal(t, "/", s.Cwd())
}

func TestAbsAndHome(t *testing.T) {
	s := newSession(t, Options{Cwd: "/u/", User: "alice"})

	assert.Equal(t, "/u/a", s.Abs("a"))
	assert.Equal(t, "/u/a/", s.Abs("a/"))
	assert.Equal(t, "/b", s.Abs("/b"))
	assert.Equal(t, "/", s.Abs(".."))
	assert.Equal(t, "/u/", s.Abs(""))

	assert.Equal(t, "/home/alice/", s.Home(""))
	assert.Equal(t, "/home/alice/", s.Home("alice"))
	assert.Equal(t, "/bob/", s.Home("bob"))

	anon := newSession(t, Options{Home: "/u"})
	assert.Equal(t, "/u/", anon.Home(""))
}

func TestNewRejectsBadCwd(t *testing.T) {
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	fs, err := vfs.New(ctx, st, vfs.Options{})
	require.NoError(t, err)

	_, err = New(ctx, fs, Options{Cwd: "/missing/"})
	assert.True(t, store.IsCode(err, store.ErrNotFound))
}

func TestDefaultSession(t *testing.T) {
	Reset()
	_, err := Active()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	s := newSession(t, Options{})
	Init(s)
	got, err := Active()
	require.NoError(t, err)
	assert.Same(t, s, got)

	Reset()
	_, err = Active()
	assert.ErrorIs(t, err, ErrNoActiveSession)
}
