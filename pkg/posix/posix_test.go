package posix

import (
	"io"
	"testing"

	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOS(t *testing.T, opts session.Options) *OS {
	t.Helper()
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	fs, err := vfs.New(ctx, st, vfs.Options{})
	require.NoError(t, err)
	_, err = fs.MakeDirs(ctx, "/home/alice/", true)
	require.NoError(t, err)

	sess, err := session.New(ctx, fs, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return New(sess)
}

func save(t *testing.T, o *OS, p string) store.ObjectID {
	t.Helper()
	obj := &store.Object{TypeID: "car", Payload: []byte(p)}
	_, err := o.Session().Save(t.Context(), obj, p)
	require.NoError(t, err)
	return obj.ID
}

func TestListingADeepTree(t *testing.T) {
	o := newOS(t, session.Options{})
	ctx := t.Context()

	require.NoError(t, o.Makedirs(ctx, "/u/a/", true))
	require.NoError(t, o.Makedirs(ctx, "/u/b/", true))
	require.NoError(t, o.Makedirs(ctx, "/u/a/sub/", true))
	save(t, o, "/u/a/x")
	save(t, o, "/u/a/y")
	save(t, o, "/u/a/sub/z")

	names, err := o.Listdir(ctx, "/u/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	names, err = o.Listdir(ctx, "/u/a/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub", "x", "y"}, names)

	entries, err := o.Scandir(ctx, "/u/a")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, e.Name != "sub", e.IsFile(), e.Name)
		assert.Equal(t, "/u/a/"+e.Name, e.Path)
	}

	_, err = o.Listdir(ctx, "/u/a/x")
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))
	_, err = o.Listdir(ctx, "/nope")
	assert.True(t, store.IsCode(err, store.ErrNotFound))
}

func TestMoveOverwriteConflict(t *testing.T) {
	o := newOS(t, session.Options{Cwd: "/home/alice/"})
	ctx := t.Context()

	save(t, o, "my_car")
	o2 := save(t, o, "my_car2")

	err := o.Rename(ctx, "my_car2", "my_car")
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))
	var se *store.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "my_car", se.Path)

	// forcing means removing the target first
	require.NoError(t, o.Remove(ctx, "my_car"))
	require.NoError(t, o.Rename(ctx, "my_car2", "my_car"))

	names, err := o.Listdir(ctx, ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"my_car"}, names)

	st, err := o.Stat(ctx, "my_car")
	require.NoError(t, err)
	assert.Equal(t, o2, st.Entry().ID)
}

func TestRenameIntoDirectory(t *testing.T) {
	o := newOS(t, session.Options{Cwd: "/home/alice/"})
	ctx := t.Context()
	save(t, o, "car")
	require.NoError(t, o.Mkdir(ctx, "garage"))

	require.NoError(t, o.Rename(ctx, "car", "garage/"))
	assert.True(t, o.IsFile(ctx, "garage/car"))
	assert.False(t, o.Exists(ctx, "car"))
}

func TestParentTraversalAtRoot(t *testing.T) {
	o := newOS(t, session.Options{})
	ctx := t.Context()

	require.NoError(t, o.Chdir(ctx, "/"))
	require.NoError(t, o.Chdir(ctx, "../.."))
	assert.Equal(t, "/", o.Getcwd())

	require.NoError(t, o.Chdir(ctx, "home/alice"))
	assert.Equal(t, "/home/alice/", o.Getcwd())
	require.NoError(t, o.Chdir(ctx, "../../../.."))
	assert.Equal(t, "/", o.Getcwd())
}

func TestPathHelpers(t *testing.T) {
	o := newOS(t, session.Options{Cwd: "/home/alice/", User: "alice"})

	assert.Equal(t, "/home/alice/car", o.Abspath("car"))
	assert.Equal(t, "/home/alice/x", o.Abspath("~/x"))
	assert.Equal(t, "/home/alice", o.ExpandUser("~"))
	assert.Equal(t, "/bob/x", o.ExpandUser("~bob/x"))
	assert.Equal(t, "/bob", o.ExpandUser("~bob"))
	assert.Equal(t, "rel", o.ExpandUser("rel"))
	assert.True(t, o.IsAbs("/x"))
	assert.False(t, o.IsAbs("x"))

	rel, err := o.Relpath("/home/alice/a/b", "")
	require.NoError(t, err)
	assert.Equal(t, "a/b", rel)
	rel, err = o.Relpath("/home", "/home/alice/a")
	require.NoError(t, err)
	assert.Equal(t, "../..", rel)
	_, err = o.Relpath("", "")
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))

	// abspath then relpath round-trips relative paths
	for p, want := range map[string]string{"a": "a", "a/b": "a/b", "a/b/": "a/b/", "x/../y": "y"} {
		rel, err := o.Relpath(o.Abspath(p), "")
		require.NoError(t, err)
		assert.Equal(t, want, rel, p)
	}
}

func TestRemoveAndRmdir(t *testing.T) {
	o := newOS(t, session.Options{Cwd: "/home/alice/"})
	ctx := t.Context()
	id := save(t, o, "car")

	require.NoError(t, o.Mkdir(ctx, "d"))
	err := o.Mkdir(ctx, "d")
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))
	err = o.Mkdir(ctx, "missing/d")
	assert.True(t, store.IsCode(err, store.ErrNotFound))

	err = o.Remove(ctx, "d")
	assert.True(t, store.IsCode(err, store.ErrIsADirectory))
	err = o.Rmdir(ctx, "car")
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))

	require.NoError(t, o.Remove(ctx, "car"))
	assert.False(t, o.Exists(ctx, "car"))
	_, err = o.Session().Store().Load(ctx, id)
	assert.True(t, store.IsCode(err, store.ErrNotFound), "remove tombstones the object")

	save(t, o, "d/inner")
	err = o.Rmdir(ctx, "d")
	assert.True(t, store.IsCode(err, store.ErrDirectoryNotEmpty))
}

func TestRemoveAllDeletesPayloads(t *testing.T) {
	o := newOS(t, session.Options{Cwd: "/home/alice/"})
	ctx := t.Context()
	require.NoError(t, o.Makedirs(ctx, "tree/a/b", false))
	x := save(t, o, "tree/x")
	y := save(t, o, "tree/a/b/y")

	require.NoError(t, o.RemoveAll(ctx, "tree"))
	assert.False(t, o.Exists(ctx, "tree"))
	for _, id := range []store.ObjectID{x, y} {
		_, err := o.Session().Store().Load(ctx, id)
		assert.True(t, store.IsCode(err, store.ErrNotFound))
	}

	require.NoError(t, o.RemoveAll(ctx, "tree"), "missing paths are fine")
}

func TestStat(t *testing.T) {
	o := newOS(t, session.Options{Cwd: "/home/alice/"})
	ctx := t.Context()
	save(t, o, "car")

	fi, err := o.Stat(ctx, "car")
	require.NoError(t, err)
	assert.Equal(t, "car", fi.Name())
	assert.Equal(t, int64(len("car")), fi.Size())
	assert.False(t, fi.IsDir())
	assert.Equal(t, "car", fi.Entry().TypeID())
	assert.False(t, fi.ModTime().IsZero())

	fi, err = o.Stat(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, "/", fi.Name())
	assert.True(t, fi.Mode().IsDir())
}

func TestOpen(t *testing.T) {
	o := newOS(t, session.Options{Cwd: "/home/alice/"})
	ctx := t.Context()

	_, err := o.Open(ctx, "/home/", "r")
	assert.True(t, store.IsCode(err, store.ErrIsADirectory))
	_, err = o.Open(ctx, "x", "q")
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))
	_, err = o.Open(ctx, "missing/notes.txt", "w")
	assert.True(t, store.IsCode(err, store.ErrNotFound))

	// absent paths create a file object
	f, err := o.Open(ctx, "notes.txt", "w")
	require.NoError(t, err)
	assert.Equal(t, FileTypeID, f.TypeID())
	_, err = io.WriteString(f, "hello")
	require.NoError(t, err)
	_, err = f.Read(make([]byte, 1))
	assert.Error(t, err, "write-only handle")
	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.Close(), ErrClosed)
	assert.True(t, o.IsFile(ctx, "notes.txt"))

	f, err = o.Open(ctx, "notes.txt", "a+")
	require.NoError(t, err)
	_, err = io.WriteString(f, " world")
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	require.NoError(t, f.Close())

	f, err = o.Open(ctx, "notes.txt", "r")
	require.NoError(t, err)
	data, err = io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	_, err = f.Write([]byte("!"))
	assert.Error(t, err, "read-only handle")
	require.NoError(t, f.Close())

	recs, err := o.Session().Store().Records(ctx, store.RecordQuery{IDs: []store.ObjectID{f.ID()}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Version, "create, first close, append close")

	_, err = o.Open(ctx, "notes.txt", "x")
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))

	// the new object appears once, at the requested path
	names, err := o.Listdir(ctx, ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, names)
}
