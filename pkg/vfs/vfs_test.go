package vfs

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T) *FS {
	t.Helper()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	t.Cleanup(func() { _ = st.Close() })

	fs, err := New(t.Context(), st, Options{})
	require.NoError(t, err)
	return fs
}

// saveAt saves a new object of typeID and places it at path.
func saveAt(t *testing.T, fs *FS, path, typeID string) store.ObjectID {
	t.Helper()
	ctx := t.Context()
	recs, err := fs.Store().Save(ctx, &store.Object{TypeID: typeID, Payload: []byte(path)})
	require.NoError(t, err)
	id := recs[0].ObjID
	_, err = fs.Execute(ctx, SetObjPath{ObjID: id, Path: path})
	require.NoError(t, err)
	return id
}

func mkdirs(t *testing.T, fs *FS, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := fs.MakeDirs(t.Context(), p, true)
		require.NoError(t, err)
	}
}

func collect(t *testing.T, seq func(func(*Entry, error) bool)) []*Entry {
	t.Helper()
	var out []*Entry
	for e, err := range seq {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func entryNames(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	sort.Strings(out)
	return out
}

// checkTree asserts sibling uniqueness and that every non-root edge has an
// existing directory parent.
func checkTree(t *testing.T, fs *FS) {
	t.Helper()
	all, err := fs.Store().ScanEntries(t.Context(), store.ScanQuery{})
	require.NoError(t, err)

	byID := make(map[store.ObjectID]store.Entry, len(all))
	for _, e := range all {
		byID[e.ID] = e
	}

	roots := 0
	slots := make(map[string]store.ObjectID)
	for _, e := range all {
		if e.IsRoot() {
			roots++
			assert.Equal(t, RootID, e.ID)
			continue
		}
		key := string(e.Parent) + "\x00" + e.Name
		if other, dup := slots[key]; dup {
			t.Errorf("siblings %s and %s share name %q", other, e.ID, e.Name)
		}
		slots[key] = e.ID

		parent, ok := byID[e.Parent]
		if assert.True(t, ok, "dangling edge %s (%s)", e.ID, e.Name) {
			assert.True(t, parent.IsDir(), "parent of %s is not a directory", e.Name)
		}
	}
	assert.Equal(t, 1, roots)
}

func TestNewMigrates(t *testing.T) {
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})

	fs, err := New(ctx, st, Options{})
	require.NoError(t, err)

	v, err := st.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), v)

	root, err := fs.Lookup(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, RootID, root.ID)
	assert.Equal(t, "/", root.Path)

	// reopening does not insert a second root
	_, err = New(ctx, st, Options{})
	require.NoError(t, err)
	checkTree(t, fs)
}

func TestNewRejectsNewerSchema(t *testing.T) {
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	require.NoError(t, st.SetSchemaVersion(ctx, SchemaVersion()+1))

	_, err := New(ctx, st, Options{})
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))
}

func TestLegacyPlacementsMigrate(t *testing.T) {
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})

	recs, err := st.Save(ctx,
		&store.Object{TypeID: "car"},
		&store.Object{TypeID: "car"},
	)
	require.NoError(t, err)
	a, b := recs[0].ObjID, recs[1].ObjID
	require.NoError(t, st.SetMeta(ctx, a, store.Meta{LegacyDirectoryKey: "/garage/", LegacyNameKey: "mine", "ref": "VD1"}))
	require.NoError(t, st.SetMeta(ctx, b, store.Meta{LegacyDirectoryKey: "/garage/old/"}))

	fs, err := New(ctx, st, Options{})
	require.NoError(t, err)

	e, err := fs.Lookup(ctx, "/garage/mine")
	require.NoError(t, err)
	assert.Equal(t, a, e.ID)

	e, err = fs.Lookup(ctx, "/garage/old/"+string(b))
	require.NoError(t, err)
	assert.Equal(t, b, e.ID)

	metas, err := st.GetMeta(ctx, []store.ObjectID{a})
	require.NoError(t, err)
	assert.Equal(t, store.Meta{"ref": "VD1"}, metas[a])
	checkTree(t, fs)
}

func TestWalk(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/u/a/")
	x := saveAt(t, fs, "/u/a/x", "file")

	res, err := fs.Walk(ctx, "/u/a/x", WalkOptions{WithRecord: true})
	require.NoError(t, err)
	require.True(t, res.Found)
	e := res.Entry()
	assert.Equal(t, x, e.ID)
	assert.Equal(t, "/u/a/x", e.Path)
	assert.Len(t, e.PathEntries, 4)
	require.NotNil(t, e.Record)
	assert.Equal(t, "file", e.TypeID())
	assert.Equal(t, 0, e.Version())

	res, err = fs.Walk(ctx, "/u/nope/x", WalkOptions{})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Nil(t, res.Entry())
	assert.Len(t, res.Entries, 2)
	assert.True(t, store.IsCode(res.Err(), store.ErrNotFound))

	res, err = fs.Walk(ctx, "/u/a/x/deeper", WalkOptions{})
	require.NoError(t, err)
	assert.True(t, store.IsCode(res.Err(), store.ErrNotADirectory))

	_, err = fs.Walk(ctx, "u/a", WalkOptions{})
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))

	// a miss leaves the tree untouched
	before, err := fs.Store().ScanEntries(ctx, store.ScanQuery{})
	require.NoError(t, err)
	_, err = fs.Walk(ctx, "/v/w/", WalkOptions{})
	require.NoError(t, err)
	after, err := fs.Store().ScanEntries(ctx, store.ScanQuery{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLookup(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/u/")
	saveAt(t, fs, "/u/x", "file")

	e, err := fs.Lookup(ctx, "/u")
	require.NoError(t, err)
	assert.True(t, e.IsDir())
	assert.Equal(t, "/u/", e.Path)

	_, err = fs.Lookup(ctx, "/u/x/")
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))
	_, err = fs.LookupDir(ctx, "/u/x")
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))
	_, err = fs.Lookup(ctx, "/u/y")
	assert.True(t, store.IsCode(err, store.ErrNotFound))
}

func TestMakeDirs(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()

	dir, err := fs.MakeDirs(ctx, "/u/a/b/", false)
	require.NoError(t, err)
	assert.Equal(t, "b", dir.Name)
	assert.Equal(t, "/u/a/b/", dir.Path)

	_, err = fs.MakeDirs(ctx, "/u/a/b", false)
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))

	again, err := fs.MakeDirs(ctx, "/u/a/b", true)
	require.NoError(t, err)
	assert.Equal(t, dir.ID, again.ID)

	saveAt(t, fs, "/u/x", "file")
	_, err = fs.MakeDirs(ctx, "/u/x/y/", true)
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))
	_, err = fs.MakeDirs(ctx, "/u/x", true)
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))

	_, err = fs.MakeDirs(ctx, "/", true)
	require.NoError(t, err)
	checkTree(t, fs)
}

func TestMakeDirsConcurrent(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = fs.MakeDirs(ctx, "/race/a/b/", true)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	children := collect(t, fs.IterChildren(ctx, RootID, ChildQuery{}))
	assert.Equal(t, []string{"race"}, entryNames(children))
	checkTree(t, fs)
}

func TestSetObjPath(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/u/", "/v/")

	recs, err := fs.Store().Save(ctx, &store.Object{TypeID: "file"})
	require.NoError(t, err)
	id := recs[0].ObjID

	res, err := fs.Execute(ctx, SetObjPath{ObjID: id, Path: "/u/", OnlyNew: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)

	e, err := fs.Lookup(ctx, "/u/"+string(id))
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)

	// only-new never moves an existing placement
	res, err = fs.Execute(ctx, SetObjPath{ObjID: id, Path: "/v/car", OnlyNew: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Upserted)
	_, err = fs.Lookup(ctx, "/v/car")
	assert.True(t, store.IsCode(err, store.ErrNotFound))

	// a full placement does
	_, err = fs.Execute(ctx, SetObjPath{ObjID: id, Path: "/v/car"})
	require.NoError(t, err)
	e, err = fs.Lookup(ctx, "/v/car")
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)

	other := saveAt(t, fs, "/v/bike", "file")
	_, err = fs.Execute(ctx, SetObjPath{ObjID: other, Path: "/v/car"})
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))
	assert.Contains(t, err.Error(), "/v/car")

	_, err = fs.Execute(ctx, SetObjPath{ObjID: other, Path: "/missing/car"})
	assert.True(t, store.IsCode(err, store.ErrNotFound))
	_, err = fs.Execute(ctx, SetObjPath{ObjID: other, Path: "/v/car/wheel"})
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))
	_, err = fs.Execute(ctx, SetObjPath{ObjID: other, Path: "relative"})
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))
	checkTree(t, fs)
}

func TestRename(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/u/a/sub/", "/v/")
	x := saveAt(t, fs, "/u/a/x", "file")
	saveAt(t, fs, "/v/taken", "file")

	_, err := fs.Execute(ctx, Rename{SrcID: x, Dest: "/v/"})
	require.NoError(t, err)
	_, err = fs.Lookup(ctx, "/v/x")
	require.NoError(t, err)

	_, err = fs.Execute(ctx, Rename{SrcID: x, Dest: "/v/taken"})
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))

	// renaming onto itself is a no-op
	_, err = fs.Execute(ctx, Rename{SrcID: x, Dest: "/v/x"})
	require.NoError(t, err)

	a, err := fs.Lookup(ctx, "/u/a/")
	require.NoError(t, err)
	_, err = fs.Execute(ctx, Rename{SrcID: a.ID, Dest: "/u/a/sub/"})
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))

	_, err = fs.Execute(ctx, Rename{SrcID: a.ID, Dest: "/v/b"})
	require.NoError(t, err)
	_, err = fs.Lookup(ctx, "/v/b/sub/")
	require.NoError(t, err)

	_, err = fs.Execute(ctx, Rename{SrcID: RootID, Dest: "/v/root"})
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))
	_, err = fs.Execute(ctx, Rename{SrcID: store.NewObjectID(), Dest: "/v/ghost"})
	assert.True(t, store.IsCode(err, store.ErrNotFound))
	checkTree(t, fs)
}

func TestExecuteMapsFailureToInstruction(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/d/")
	a := saveAt(t, fs, "/d/a", "file")
	b := saveAt(t, fs, "/d/b", "file")

	res, err := fs.Execute(ctx,
		Rename{SrcID: a, Dest: "/d/c"},
		Rename{SrcID: b, Dest: "/d/c"},
	)
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))
	assert.Equal(t, 1, res.Modified, "the first rename has taken effect")

	_, err = fs.Lookup(ctx, "/d/c")
	require.NoError(t, err)
	_, err = fs.Lookup(ctx, "/d/b")
	require.NoError(t, err)
}

func TestIterChildren(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/d/sub/")
	car := saveAt(t, fs, "/d/car", "car")
	saveAt(t, fs, "/d/note", "file")
	gone := saveAt(t, fs, "/d/gone", "file")
	require.NoError(t, fs.Store().SetMeta(ctx, car, store.Meta{"ref": "VD123"}))

	all := collect(t, fs.IterChildren(ctx, mustDir(t, fs, "/d/"), ChildQuery{BatchSize: 2, DirPath: "/d/"}))
	assert.Equal(t, []string{"car", "gone", "note", "sub"}, entryNames(all))
	for _, e := range all {
		if e.IsDir() {
			assert.Equal(t, "/d/sub/", e.Path)
		}
	}

	// tombstoned objects are dropped once records are consulted
	require.NoError(t, fs.Store().Delete(ctx, gone))
	live := collect(t, fs.IterChildren(ctx, mustDir(t, fs, "/d/"), ChildQuery{WithRecords: true}))
	assert.Equal(t, []string{"car", "note", "sub"}, entryNames(live))

	cars := collect(t, fs.IterChildren(ctx, mustDir(t, fs, "/d/"), ChildQuery{Type: store.EntryObj, TypeID: "car", WithMeta: true}))
	require.Len(t, cars, 1)
	assert.Equal(t, car, cars[0].ID)
	assert.Equal(t, "VD123", cars[0].Meta["ref"])

	byMeta := collect(t, fs.IterChildren(ctx, mustDir(t, fs, "/d/"), ChildQuery{
		Type:       store.EntryObj,
		MetaFilter: store.Filter{"ref": store.Filter{"$regex": "^VD"}},
	}))
	assert.Equal(t, []string{"car"}, entryNames(byMeta))

	dirs := collect(t, fs.IterChildren(ctx, mustDir(t, fs, "/d/"), ChildQuery{Type: store.EntryDir}))
	assert.Equal(t, []string{"sub"}, entryNames(dirs))

	deleted := collect(t, fs.IterChildren(ctx, mustDir(t, fs, "/d/"), ChildQuery{Type: store.EntryObj, State: store.StateDeleted}))
	assert.Equal(t, []string{"gone"}, entryNames(deleted))
}

func mustDir(t *testing.T, fs *FS, path string) store.ObjectID {
	t.Helper()
	e, err := fs.LookupDir(t.Context(), path)
	require.NoError(t, err)
	return e.ID
}

func TestIterDescendentsDepth(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/u/a/", "/u/b/")
	saveAt(t, fs, "/u/a/x", "file")
	saveAt(t, fs, "/u/a/y", "file")
	mkdirs(t, fs, "/u/a/sub/")
	saveAt(t, fs, "/u/a/sub/z", "file")
	u := mustDir(t, fs, "/u/")

	tests := []struct {
		name  string
		query DescendQuery
		want  []string
	}{
		{"children only", DescendQuery{MaxDepth: 0}, []string{"a", "b"}},
		{"two levels", DescendQuery{MaxDepth: 1}, []string{"a", "b", "sub", "x", "y"}},
		{"unbounded", DescendQuery{MaxDepth: -1}, []string{"a", "b", "sub", "x", "y", "z"}},
		{"objects only", DescendQuery{ChildQuery: ChildQuery{Type: store.EntryObj}, MaxDepth: -1}, []string{"x", "y", "z"}},
		{"min depth", DescendQuery{MinDepth: 1, MaxDepth: -1}, []string{"sub", "x", "y", "z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, fs.IterDescendents(ctx, u, tt.query))
			assert.Equal(t, tt.want, entryNames(got))
		})
	}

	// pre-order with paths and depths
	all := collect(t, fs.IterDescendents(ctx, u, DescendQuery{ChildQuery: ChildQuery{DirPath: "/u/"}, MaxDepth: -1}))
	paths := make(map[string]int)
	seen := make(map[string]int)
	for i, e := range all {
		paths[e.Path] = e.Depth
		seen[e.Path] = i
	}
	assert.Equal(t, 2, paths["/u/a/sub/z"])
	assert.Equal(t, 0, paths["/u/a/"])
	assert.Less(t, seen["/u/a/"], seen["/u/a/x"])
	assert.Less(t, seen["/u/a/sub/"], seen["/u/a/sub/z"])

	// early stop
	n := 0
	for range fs.IterDescendents(ctx, u, DescendQuery{MaxDepth: -1}) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestRemove(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/d/e/f/")
	x := saveAt(t, fs, "/d/x", "file")
	z := saveAt(t, fs, "/d/e/f/z", "file")
	d := mustDir(t, fs, "/d/")

	ok, err := fs.RemoveObj(ctx, x)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = fs.RemoveObj(ctx, x)
	require.NoError(t, err)
	assert.False(t, ok)

	// directory edges are not removed as objects
	ok, err = fs.RemoveObj(ctx, d)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.RemoveDir(ctx, d, false)
	assert.True(t, store.IsCode(err, store.ErrDirectoryNotEmpty))
	_, err = fs.RemoveDir(ctx, mustDir(t, fs, "/d/e/"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/d/e")
	_, err = fs.RemoveDir(ctx, z, false)
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrNotADirectory))
	assert.Contains(t, err.Error(), "/d/e/f/z")

	removed, err := fs.RemoveDir(ctx, d, true)
	require.NoError(t, err)
	assert.Len(t, removed, 3)

	all, err := fs.Store().ScanEntries(ctx, store.ScanQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1, "only the root remains")

	// payloads are untouched
	_, err = fs.Store().Load(ctx, z)
	require.NoError(t, err)

	_, err = fs.RemoveDir(ctx, RootID, true)
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))

	mkdirs(t, fs, "/empty/")
	_, err = fs.RemoveDir(ctx, mustDir(t, fs, "/empty/"), false)
	require.NoError(t, err)
}

func TestRemoveDirLeavesNoDescendents(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/keep/", "/gone/a/b/", "/gone/c/")
	saveAt(t, fs, "/gone/a/b/o1", "file")
	saveAt(t, fs, "/gone/c/o2", "file")
	saveAt(t, fs, "/keep/o3", "file")
	gone := mustDir(t, fs, "/gone/")

	_, err := fs.RemoveDir(ctx, gone, true)
	require.NoError(t, err)

	all, err := fs.Store().ScanEntries(ctx, store.ScanQuery{})
	require.NoError(t, err)
	for _, e := range all {
		chain, err := fs.Store().Ancestors(ctx, e.ID)
		require.NoError(t, err)
		for _, a := range chain {
			assert.NotEqual(t, gone, a.ID, "%s survived below the removed directory", e.Name)
		}
	}
	checkTree(t, fs)
}

func TestPaths(t *testing.T) {
	fs := newFS(t)
	ctx := t.Context()
	mkdirs(t, fs, "/u/a/")
	x := saveAt(t, fs, "/u/a/x", "file")
	y := saveAt(t, fs, "/u/y", "file")
	a := mustDir(t, fs, "/u/a/")

	paths, err := fs.Paths(ctx, []store.ObjectID{x, y, a, store.NewObjectID()})
	require.NoError(t, err)
	assert.Equal(t, map[store.ObjectID]string{
		x: "/u/a/x",
		y: "/u/y",
		a: "/u/a/",
	}, paths)
}

// TestTreeInvariantsUnderRandomOps drives random well-formed operations and
// checks sibling uniqueness and parent existence after each one.
func TestTreeInvariantsUnderRandomOps(t *testing.T) {
	fs := newFS(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	dirs := []string{"/"}
	names := []string{"a", "b", "c"}
	var objs []store.ObjectID

	pickDir := func() string { return dirs[rng.Intn(len(dirs))] }

	for i := 0; i < 200; i++ {
		switch rng.Intn(4) {
		case 0:
			p := pickDir() + names[rng.Intn(len(names))] + "/"
			if _, err := fs.MakeDirs(ctx, p, true); err == nil {
				dirs = append(dirs, p)
			}
		case 1:
			recs, err := fs.Store().Save(ctx, &store.Object{TypeID: "file"})
			require.NoError(t, err)
			id := recs[0].ObjID
			p := pickDir() + names[rng.Intn(len(names))]
			if _, err := fs.Execute(ctx, SetObjPath{ObjID: id, Path: p}); err == nil {
				objs = append(objs, id)
			}
		case 2:
			if len(objs) > 0 {
				id := objs[rng.Intn(len(objs))]
				_, _ = fs.Execute(ctx, Rename{SrcID: id, Dest: pickDir() + names[rng.Intn(len(names))]})
			}
		case 3:
			if len(dirs) > 1 && rng.Intn(4) == 0 {
				i := 1 + rng.Intn(len(dirs)-1)
				if e, err := fs.Lookup(ctx, dirs[i]); err == nil {
					_, err := fs.RemoveDir(ctx, e.ID, true)
					require.NoError(t, err)
				}
				// forget removed directories
				var kept []string
				for _, d := range dirs {
					if _, err := fs.LookupDir(ctx, d); err == nil {
						kept = append(kept, d)
					}
				}
				dirs = kept
			}
		}
		if t.Failed() {
			break
		}
		checkTree(t, fs)
	}
	require.NotEmpty(t, dirs, fmt.Sprintf("root must survive, dirs=%v", dirs))
}
