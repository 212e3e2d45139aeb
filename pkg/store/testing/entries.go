package testing

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunEntryTests executes the edge collection tests.
func (suite *StoreTestSuite) RunEntryTests(t *testing.T) {
	t.Run("InsertAndGet", suite.testInsertAndGet)
	t.Run("UniqueSibling", suite.testUniqueSibling)
	t.Run("Walk", suite.testWalk)
	t.Run("Children", suite.testChildren)
	t.Run("DescendantsAndAncestors", suite.testDescendantsAndAncestors)
	t.Run("Upsert", suite.testUpsert)
	t.Run("UpdateAndDelete", suite.testUpdateAndDelete)
	t.Run("BulkWriteStopsAtFailure", suite.testBulkWriteStopsAtFailure)
	t.Run("Scan", suite.testScan)
}

func (suite *StoreTestSuite) testInsertAndGet(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)

	got, err := st.GetEntries(ctx, []store.ObjectID{tree["/u/a/x"].ID, "missing", tree["/u/"].ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].Name)
	assert.Equal(t, store.EntryObj, got[0].Type)
	assert.Equal(t, tree["/u/a/"].ID, got[0].Parent)
	assert.Equal(t, "u", got[1].Name)
	assert.True(t, got[1].IsDir())
}

func (suite *StoreTestSuite) testUniqueSibling(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)

	dup := dirEntry(tree["/u/"].ID, "a")
	err := st.InsertEntries(ctx, []store.Entry{dup})
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrDuplicateKey))

	var bwe *store.BulkWriteError
	require.True(t, errors.As(err, &bwe))
	assert.Equal(t, 0, bwe.Index)

	// the same name under another parent is fine
	require.NoError(t, st.InsertEntries(ctx, []store.Entry{dirEntry(tree["/u/a/"].ID, "a")}))
}

func (suite *StoreTestSuite) testWalk(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)

	chain, err := st.Walk(ctx, RootID, []string{"u", "a", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "u", "a", "x"}, names(chain))

	chain, err = st.Walk(ctx, RootID, []string{"u", "nope", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "u"}, names(chain))

	chain, err = st.Walk(ctx, RootID, nil)
	require.NoError(t, err)
	assert.Equal(t, []store.ObjectID{RootID}, ids(chain))

	chain, err = st.Walk(ctx, tree["/u/"].ID, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u", "a"}, names(chain))

	chain, err = st.Walk(ctx, "missing", []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func (suite *StoreTestSuite) testChildren(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)
	u := tree["/u/"].ID

	require.NoError(t, st.InsertEntries(ctx, []store.Entry{
		objEntry(store.NewObjectID(), u, "c"),
		dirEntry(u, "b"),
		objEntry(store.NewObjectID(), u, "d"),
	}))

	all, err := st.Children(ctx, u, store.ChildrenQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(all))

	page, err := st.Children(ctx, u, store.ChildrenQuery{AfterName: "a", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names(page))

	dirs, err := st.Children(ctx, u, store.ChildrenQuery{Type: store.EntryDir})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(dirs))

	objs, err := st.Children(ctx, u, store.ChildrenQuery{Type: store.EntryObj})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, names(objs))

	none, err := st.Children(ctx, tree["/u/a/x"].ID, store.ChildrenQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func (suite *StoreTestSuite) testDescendantsAndAncestors(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)

	desc, err := st.Descendants(ctx, RootID, -1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u", "a", "x"}, names(desc))

	desc, err = st.Descendants(ctx, RootID, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u"}, names(desc))

	desc, err = st.Descendants(ctx, RootID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u", "a"}, names(desc))

	anc, err := st.Ancestors(ctx, tree["/u/a/x"].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "u", "a", "x"}, names(anc))

	anc, err = st.Ancestors(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, anc)
}

func (suite *StoreTestSuite) testUpsert(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)
	u, a := tree["/u/"].ID, tree["/u/a/"].ID

	id := store.NewObjectID()
	res, err := st.BulkWrite(ctx, []store.EntryOp{
		store.UpsertEntryOp{Entry: objEntry(id, u, id.String()), OnlyNew: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)

	// set-on-insert leaves an existing placement alone
	res, err = st.BulkWrite(ctx, []store.EntryOp{
		store.UpsertEntryOp{Entry: objEntry(id, a, "other"), OnlyNew: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Upserted)
	got, err := st.GetEntries(ctx, []store.ObjectID{id})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, u, got[0].Parent)
	assert.Equal(t, id.String(), got[0].Name)

	// a full upsert moves it and keeps ctime
	ctime := got[0].Ctime
	later := objEntry(id, a, "renamed")
	later.Ctime = ctime.Add(time.Hour)
	res, err = st.BulkWrite(ctx, []store.EntryOp{store.UpsertEntryOp{Entry: later}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	got, err = st.GetEntries(ctx, []store.ObjectID{id})
	require.NoError(t, err)
	assert.Equal(t, a, got[0].Parent)
	assert.Equal(t, "renamed", got[0].Name)
	assert.True(t, ctime.Equal(got[0].Ctime))

	// taking an occupied slot is a duplicate key
	_, err = st.BulkWrite(ctx, []store.EntryOp{store.UpsertEntryOp{Entry: objEntry(id, a, "x")}})
	assert.True(t, store.IsCode(err, store.ErrDuplicateKey))
}

func (suite *StoreTestSuite) testUpdateAndDelete(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)
	x := tree["/u/a/x"]

	res, err := st.BulkWrite(ctx, []store.EntryOp{
		store.UpdateEntryOp{ID: x.ID, Parent: tree["/u/"].ID, Name: "moved", Utime: time.Now().UTC()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)

	chain, err := st.Walk(ctx, RootID, []string{"u", "moved"})
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, x.ID, chain[2].ID)

	// the old slot is free again
	require.NoError(t, st.InsertEntries(ctx, []store.Entry{objEntry(store.NewObjectID(), tree["/u/a/"].ID, "x")}))

	// updates of missing ids match nothing
	res, err = st.BulkWrite(ctx, []store.EntryOp{store.UpdateEntryOp{ID: "missing", Parent: RootID, Name: "z"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)

	// type-restricted delete skips directories
	res, err = st.BulkWrite(ctx, []store.EntryOp{
		store.DeleteEntriesOp{IDs: []store.ObjectID{x.ID, tree["/u/a/"].ID}, Type: store.EntryObj},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	left, err := st.GetEntries(ctx, []store.ObjectID{x.ID, tree["/u/a/"].ID})
	require.NoError(t, err)
	assert.Equal(t, []store.ObjectID{tree["/u/a/"].ID}, ids(left))
}

func (suite *StoreTestSuite) testBulkWriteStopsAtFailure(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	tree := seedTree(t, st)
	u := tree["/u/"].ID

	first := dirEntry(u, "first")
	third := dirEntry(u, "third")
	res, err := st.BulkWrite(ctx, []store.EntryOp{
		store.InsertEntryOp{Entry: first},
		store.InsertEntryOp{Entry: dirEntry(u, "a")},
		store.InsertEntryOp{Entry: third},
	})
	require.Error(t, err)
	assert.Equal(t, 1, res.Inserted)

	var bwe *store.BulkWriteError
	require.True(t, errors.As(err, &bwe))
	assert.Equal(t, 1, bwe.Index)

	got, err := st.GetEntries(ctx, []store.ObjectID{first.ID, third.ID})
	require.NoError(t, err)
	assert.Equal(t, []store.ObjectID{first.ID}, ids(got))
}

func (suite *StoreTestSuite) testScan(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	seedTree(t, st)

	var seen []store.Entry
	var after store.ObjectID
	for {
		page, err := st.ScanEntries(ctx, store.ScanQuery{AfterID: after, Limit: 3})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		seen = append(seen, page...)
		after = page[len(page)-1].ID
	}
	assert.Len(t, seen, 4)

	objs, err := st.ScanEntries(ctx, store.ScanQuery{Type: store.EntryObj})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names(objs))
}
