// Package testing provides a reusable contract suite for content.Store
// implementations.
package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/objfs/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite runs the content store contract against NewStore.
type StoreTestSuite struct {
	NewStore func() content.Store
}

// Run executes every contract test as a subtest.
func (s *StoreTestSuite) Run(t *testing.T) {
	t.Run("WriteRead", s.testWriteRead)
	t.Run("Missing", s.testMissing)
	t.Run("Put", s.testPut)
	t.Run("Delete", s.testDelete)
	t.Run("List", s.testList)
}

func (s *StoreTestSuite) testWriteRead(t *testing.T) {
	ctx := context.Background()
	store := s.NewStore()

	require.NoError(t, store.WriteContent(ctx, "abc", []byte("hello")))

	data, err := content.ReadAll(ctx, store, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	size, err := store.GetContentSize(ctx, "abc")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	require.NoError(t, store.WriteContent(ctx, "abc", []byte("bye")))
	data, err = content.ReadAll(ctx, store, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("bye"), data)
}

func (s *StoreTestSuite) testMissing(t *testing.T) {
	ctx := context.Background()
	store := s.NewStore()

	_, err := store.ReadContent(ctx, "nope")
	assert.True(t, errors.Is(err, content.ErrContentNotFound))

	_, err = store.GetContentSize(ctx, "nope")
	assert.True(t, errors.Is(err, content.ErrContentNotFound))

	exists, err := store.ContentExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (s *StoreTestSuite) testPut(t *testing.T) {
	ctx := context.Background()
	store := s.NewStore()

	id1, err := content.Put(ctx, store, []byte("payload"))
	require.NoError(t, err)
	id2, err := content.Put(ctx, store, []byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, content.HashID([]byte("payload")), id1)
	assert.Len(t, string(id1), 64)
}

func (s *StoreTestSuite) testDelete(t *testing.T) {
	ctx := context.Background()
	store := s.NewStore()

	require.NoError(t, store.WriteContent(ctx, "gone", []byte("x")))
	require.NoError(t, store.Delete(ctx, "gone"))
	require.NoError(t, store.Delete(ctx, "gone"))

	exists, err := store.ContentExists(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (s *StoreTestSuite) testList(t *testing.T) {
	ctx := context.Background()
	store := s.NewStore()

	a := content.HashID([]byte("a"))
	b := content.HashID([]byte("b"))
	require.NoError(t, store.WriteContent(ctx, a, []byte("a")))
	require.NoError(t, store.WriteContent(ctx, b, []byte("b")))

	ids, err := store.ListAllContent(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []content.ContentID{a, b}, ids)
}
