package testing

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordTests executes the object and record catalog tests.
func (suite *StoreTestSuite) RunRecordTests(t *testing.T) {
	t.Run("SaveAndLoad", suite.testSaveAndLoad)
	t.Run("SaveNotifiesListeners", suite.testSaveNotifiesListeners)
	t.Run("DeleteWritesTombstone", suite.testDeleteWritesTombstone)
	t.Run("RecordQuery", suite.testRecordQuery)
	t.Run("SnapshotsAndMerge", suite.testSnapshotsAndMerge)
	t.Run("Open", suite.testOpen)
}

func (suite *StoreTestSuite) testSaveAndLoad(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()

	obj := &store.Object{TypeID: "file", Payload: []byte("hello")}
	recs, err := st.Save(ctx, obj)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.False(t, obj.ID.IsZero(), "save should mint an id")
	assert.Equal(t, 0, recs[0].Version)
	assert.Equal(t, obj.ID, recs[0].ObjID)
	assert.True(t, st.IsLoaded(obj.ID))

	obj.Payload = []byte("hello again")
	recs, err = st.Save(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, 1, recs[0].Version)

	got, err := st.Load(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "file", got.TypeID)
	assert.Equal(t, []byte("hello again"), got.Payload)

	_, err = st.Load(ctx, store.NewObjectID())
	assert.True(t, store.IsCode(err, store.ErrNotFound))
}

func (suite *StoreTestSuite) testSaveNotifiesListeners(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()

	var mu sync.Mutex
	var batches [][]store.WriteEvent
	cancel := st.Subscribe(func(_ context.Context, events []store.WriteEvent) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, append([]store.WriteEvent(nil), events...))
	})

	a := &store.Object{TypeID: "file", Payload: []byte("a")}
	b := &store.Object{TypeID: "file", Payload: []byte("b")}
	_, err := st.Save(ctx, a, b)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, store.WriteInsert, batches[0][0].Kind)
	assert.Equal(t, a.ID, batches[0][0].ObjID)
	assert.Equal(t, store.SnapshotID(a.ID, 0), batches[0][0].SnapshotID)
	assert.Equal(t, b.ID, batches[0][1].ObjID)
	mu.Unlock()

	require.NoError(t, st.Delete(ctx, a.ID))
	mu.Lock()
	require.Len(t, batches, 2)
	assert.Equal(t, store.WriteDelete, batches[1][0].Kind)
	assert.True(t, batches[1][0].Deleted)
	mu.Unlock()

	cancel()
	cancel()
	_, err = st.Save(ctx, b)
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, batches, 2, "cancelled listener must not fire")
	mu.Unlock()
}

func (suite *StoreTestSuite) testDeleteWritesTombstone(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()

	obj := &store.Object{TypeID: "file", Payload: []byte("x")}
	_, err := st.Save(ctx, obj)
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, obj.ID))
	assert.False(t, st.IsLoaded(obj.ID))

	_, err = st.Load(ctx, obj.ID)
	assert.True(t, store.IsCode(err, store.ErrNotFound))

	err = st.Delete(ctx, obj.ID)
	assert.True(t, store.IsCode(err, store.ErrNotFound))

	deleted, err := st.Records(ctx, store.RecordQuery{IDs: []store.ObjectID{obj.ID}, State: store.StateDeleted})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, 1, deleted[0].Version)
	assert.True(t, deleted[0].Deleted)

	live, err := st.Records(ctx, store.RecordQuery{IDs: []store.ObjectID{obj.ID}})
	require.NoError(t, err)
	assert.Empty(t, live)
}

func (suite *StoreTestSuite) testRecordQuery(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()

	file := &store.Object{TypeID: "file", Payload: []byte("f")}
	blob := &store.Object{TypeID: "blob", Payload: []byte("b")}
	gone := &store.Object{TypeID: "file", Payload: []byte("g")}
	_, err := st.Save(ctx, file, blob, gone)
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, gone.ID))

	live, err := st.Records(ctx, store.RecordQuery{})
	require.NoError(t, err)
	assert.Len(t, live, 2)

	all, err := st.Records(ctx, store.RecordQuery{State: store.StateAll})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	files, err := st.Records(ctx, store.RecordQuery{TypeID: "file"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, file.ID, files[0].ObjID)

	filtered, err := st.Records(ctx, store.RecordQuery{
		State:  store.StateAll,
		Filter: store.Filter{"version": store.Filter{"$gte": 1}},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, gone.ID, filtered[0].ObjID)

	_, err = st.Records(ctx, store.RecordQuery{Filter: store.Filter{"version": store.Filter{"$bogus": 1}}})
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))
}

func (suite *StoreTestSuite) testSnapshotsAndMerge(t *testing.T) {
	src := newStore(t, suite)
	dst := newStore(t, suite)
	ctx := t.Context()

	obj := &store.Object{TypeID: "file", Payload: []byte("v0")}
	_, err := src.Save(ctx, obj)
	require.NoError(t, err)
	obj.Payload = []byte("v1")
	_, err = src.Save(ctx, obj)
	require.NoError(t, err)

	latest, err := src.Snapshots(ctx, []store.ObjectID{obj.ID}, false)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 1, latest[0].Version)
	assert.Equal(t, []byte("v1"), latest[0].Payload)

	history, err := src.Snapshots(ctx, []store.ObjectID{obj.ID}, true)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []byte("v0"), history[0].Payload)

	var events []store.WriteEvent
	dst.Subscribe(func(_ context.Context, evs []store.WriteEvent) { events = append(events, evs...) })

	res, err := dst.Merge(ctx, history)
	require.NoError(t, err)
	assert.Equal(t, store.MergeResult{Merged: 2}, res)
	assert.Len(t, events, 2)

	res, err = dst.Merge(ctx, history)
	require.NoError(t, err)
	assert.Equal(t, store.MergeResult{Skipped: 2}, res)

	got, err := dst.Load(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.Payload)
}

func (suite *StoreTestSuite) testOpen(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()

	obj := &store.Object{TypeID: "file", Payload: []byte("streamed")}
	_, err := st.Save(ctx, obj)
	require.NoError(t, err)

	r, err := st.Open(ctx, obj.ID)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(data))

	_, err = st.Open(ctx, store.NewObjectID())
	assert.True(t, store.IsCode(err, store.ErrNotFound))
}
