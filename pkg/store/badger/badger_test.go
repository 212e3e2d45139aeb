package badger

import (
	"context"
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	storetesting "github.com/marmos91/objfs/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerObjectStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func() store.ObjectStore {
			st, err := NewBadgerObjectStore(context.Background(), BadgerObjectStoreConfig{
				DBPath: t.TempDir(),
			})
			if err != nil {
				t.Fatalf("failed to open badger store: %v", err)
			}
			return st
		},
	}
	suite.Run(t)
}

func TestBadgerObjectStoreInMemory(t *testing.T) {
	st, err := NewBadgerObjectStore(t.Context(), BadgerObjectStoreConfig{InMemory: true})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Healthcheck(t.Context()))
	assert.Equal(t, "badger", st.String())
}

func TestBadgerObjectStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()

	st, err := NewBadgerObjectStore(ctx, BadgerObjectStoreConfig{DBPath: dir})
	require.NoError(t, err)

	root := store.Entry{ID: storetesting.RootID, Name: "/", Type: store.EntryDir}
	require.NoError(t, st.InsertEntries(ctx, []store.Entry{root}))
	obj := &store.Object{TypeID: "file", Payload: []byte("kept")}
	_, err = st.Save(ctx, obj)
	require.NoError(t, err)
	require.NoError(t, st.SetSchemaVersion(ctx, 1))
	require.NoError(t, st.Close())

	st, err = NewBadgerObjectStore(ctx, BadgerObjectStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer st.Close()

	v, err := st.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	chain, err := st.Walk(ctx, storetesting.RootID, nil)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	got, err := st.Load(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), got.Payload)
}

func TestRecordKeysSortByVersion(t *testing.T) {
	id := store.ObjectID("abc")
	assert.Less(t, string(keyRecord(id, 9)), string(keyRecord(id, 10)))
	assert.Equal(t, id, recordObjID(keyRecord(id, 42)))
}
