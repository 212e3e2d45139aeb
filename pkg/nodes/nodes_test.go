package nodes

import (
	"testing"

	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTree builds /u/a/{x,y,sub/z} and /u/b/.
func newTree(t *testing.T) (*vfs.FS, map[string]store.ObjectID) {
	t.Helper()
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	fs, err := vfs.New(ctx, st, vfs.Options{})
	require.NoError(t, err)
	sess, err := session.New(ctx, fs, session.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	for _, d := range []string{"/u/a/sub/", "/u/b/"} {
		_, err := fs.MakeDirs(ctx, d, true)
		require.NoError(t, err)
	}
	ids := make(map[string]store.ObjectID)
	for _, p := range []string{"/u/a/x", "/u/a/y", "/u/a/sub/z"} {
		obj := &store.Object{TypeID: "car", Payload: []byte(p)}
		_, err := sess.Save(ctx, obj, p)
		require.NoError(t, err)
		ids[p] = obj.ID
	}
	require.NoError(t, st.SetMeta(ctx, ids["/u/a/x"], store.Meta{"ref": "VD123"}))
	return fs, ids
}

func TestExpandDepth(t *testing.T) {
	fs, ids := newTree(t)
	ctx := t.Context()

	root, err := Open(ctx, fs, "/u")
	require.NoError(t, err)
	assert.Equal(t, "/u/", root.Path())
	assert.Equal(t, "u", root.Name())

	require.NoError(t, root.Expand(ctx, 0, false))
	assert.False(t, root.Expanded())
	assert.Empty(t, root.Children)

	require.NoError(t, root.Expand(ctx, 1, false))
	require.Len(t, root.Children, 2)
	a := root.Children[0].(*DirectoryNode)
	assert.Equal(t, "/u/a/", a.Path())
	assert.Same(t, root, a.Parent())
	assert.False(t, a.Expanded())

	require.NoError(t, root.Expand(ctx, -1, true))
	assert.True(t, root.ContainsPath("/u/a/sub/z"))
	assert.True(t, root.ContainsPath("/u/a/sub"))
	assert.True(t, root.ContainsID(ids["/u/a/x"]))
	assert.False(t, root.ContainsPath("/u/c"))

	objs := root.Objects()
	require.Len(t, objs, 3)
	for _, o := range objs {
		assert.NotNil(t, o.record, "populated by expand")
		assert.False(t, o.ContainsPath(o.Path()))
	}
}

func TestObjectNodeHydration(t *testing.T) {
	fs, ids := newTree(t)
	ctx := t.Context()

	e, err := fs.Lookup(ctx, "/u/a/x")
	require.NoError(t, err)
	n := FromEntry(fs, e).(*ObjectNode)
	assert.Equal(t, "x", n.Name())
	assert.Equal(t, ids["/u/a/x"], n.ID())

	rec, err := n.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, "car", rec.TypeID)
	assert.Equal(t, 0, rec.Version)

	meta, err := n.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, "VD123", meta["ref"])

	obj, err := n.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("/u/a/x"), obj.Payload)
	assert.True(t, n.Loaded())

	// objects without metadata get an empty document
	e, err = fs.Lookup(ctx, "/u/a/y")
	require.NoError(t, err)
	meta, err = NewObjectNode(fs, e).Meta(ctx)
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestCopyDetaches(t *testing.T) {
	fs, _ := newTree(t)
	ctx := t.Context()

	root, err := Open(ctx, fs, "/u/")
	require.NoError(t, err)
	require.NoError(t, root.Expand(ctx, 2, false))
	a := root.Children[0].(*DirectoryNode)

	cp := a.Copy().(*DirectoryNode)
	assert.Nil(t, cp.Parent())
	require.Len(t, cp.Children, len(a.Children))
	for i := range cp.Children {
		assert.NotSame(t, a.Children[i], cp.Children[i])
		assert.Same(t, cp, cp.Children[i].Parent())
		assert.Equal(t, a.Children[i].Path(), cp.Children[i].Path())
	}

	cp.Children = nil
	assert.NotEmpty(t, a.Children, "copy does not share children")
}

func TestResultsNode(t *testing.T) {
	fs, ids := newTree(t)
	ctx := t.Context()

	r := NewResultsNode()
	assert.Equal(t, ViewList, r.ViewMode)
	for _, p := range []string{"/u/a/x", "/u/b/"} {
		e, err := fs.Lookup(ctx, p)
		require.NoError(t, err)
		r.Append(FromEntry(fs, e))
	}
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"/u/a/x", "/u/b/"}, r.Paths())
	assert.Same(t, r, r.Children[0].Parent())
	assert.True(t, r.ContainsPath("/u/b"))
	assert.True(t, r.ContainsID(ids["/u/a/x"]))
	assert.False(t, r.ContainsID(ids["/u/a/y"]))
	assert.Len(t, r.Objects(), 1)

	cp := r.Copy().(*ResultsNode)
	assert.Equal(t, r.Paths(), cp.Paths())
	assert.Same(t, cp, cp.Children[0].Parent())
}
