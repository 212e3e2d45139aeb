package testing

import (
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMetaTests executes the metadata index tests.
func (suite *StoreTestSuite) RunMetaTests(t *testing.T) {
	t.Run("SetUpdateUnset", suite.testSetUpdateUnset)
	t.Run("FindAndDistinct", suite.testFindAndDistinct)
}

func (suite *StoreTestSuite) testSetUpdateUnset(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	id := store.NewObjectID()

	require.NoError(t, st.EnsureMetaIndexes(ctx, "owner", "tags"))
	require.NoError(t, st.SetMeta(ctx, id, store.Meta{"owner": "ada", "size": 3}))
	require.NoError(t, st.UpdateMeta(ctx, id, store.Meta{"size": 4, "tags": []any{"x"}}))

	got, err := st.GetMeta(ctx, []store.ObjectID{id, store.NewObjectID()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ada", got[id]["owner"])
	size, ok := got[id].Lookup("size")
	require.True(t, ok)
	assert.EqualValues(t, 4, size)

	require.NoError(t, st.UnsetMeta(ctx, []store.ObjectID{id}, "tags", "absent"))
	got, err = st.GetMeta(ctx, []store.ObjectID{id})
	require.NoError(t, err)
	_, ok = got[id]["tags"]
	assert.False(t, ok)

	require.NoError(t, st.SetMeta(ctx, id, store.Meta{"owner": "bob"}))
	got, err = st.GetMeta(ctx, []store.ObjectID{id})
	require.NoError(t, err)
	assert.Len(t, got[id], 1)
	assert.Equal(t, "bob", got[id]["owner"])
}

func (suite *StoreTestSuite) testFindAndDistinct(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()
	a, b, c := store.NewObjectID(), store.NewObjectID(), store.NewObjectID()

	require.NoError(t, st.SetMeta(ctx, a, store.Meta{"owner": "ada", "tags": []any{"red", "blue"}}))
	require.NoError(t, st.SetMeta(ctx, b, store.Meta{"owner": "bob", "tags": []any{"red"}}))
	require.NoError(t, st.SetMeta(ctx, c, store.Meta{"owner": "ada", "info": map[string]any{"n": 2}}))

	found, err := st.FindMeta(ctx, store.Filter{"owner": "ada"}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []store.ObjectID{a, c}, found)

	found, err = st.FindMeta(ctx, store.Filter{"tags": "red"}, []store.ObjectID{a, c})
	require.NoError(t, err)
	assert.Equal(t, []store.ObjectID{a}, found)

	found, err = st.FindMeta(ctx, store.Filter{"info.n": store.Filter{"$gt": 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []store.ObjectID{c}, found)

	owners, err := st.DistinctMeta(ctx, "owner", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"ada", "bob"}, owners)

	tags, err := st.DistinctMeta(ctx, "tags", store.Filter{"owner": "ada"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"red", "blue"}, tags)
}
