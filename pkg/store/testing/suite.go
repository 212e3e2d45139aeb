// Package testing provides a reusable contract suite for store.ObjectStore
// implementations.
//
// Usage:
//
//	func TestMemoryObjectStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func() store.ObjectStore {
//	            return memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
//	        },
//	    }
//	    suite.Run(t)
//	}
package testing

import (
	"testing"
	"time"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/stretchr/testify/require"
)

// RootID is the id the suite uses for its root entry.
const RootID store.ObjectID = "00000000-0000-0000-0000-000000000000"

// StoreTestSuite runs the ObjectStore contract against NewStore. Each
// subtest gets a fresh store.
type StoreTestSuite struct {
	NewStore func() store.ObjectStore
}

// Run executes every contract test.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Entries", suite.RunEntryTests)
	t.Run("Records", suite.RunRecordTests)
	t.Run("Meta", suite.RunMetaTests)
	t.Run("Settings", suite.testSettings)
}

// ============================================================================
// Helpers
// ============================================================================

func newStore(t *testing.T, suite *StoreTestSuite) store.ObjectStore {
	t.Helper()
	st := suite.NewStore()
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func rootEntry() store.Entry {
	now := time.Now().UTC()
	return store.Entry{ID: RootID, Name: "/", Type: store.EntryDir, Ctime: now, Utime: now}
}

func dirEntry(parent store.ObjectID, name string) store.Entry {
	now := time.Now().UTC()
	return store.Entry{ID: store.NewObjectID(), Name: name, Parent: parent, Type: store.EntryDir, Ctime: now, Utime: now}
}

func objEntry(id, parent store.ObjectID, name string) store.Entry {
	now := time.Now().UTC()
	return store.Entry{ID: id, Name: name, Parent: parent, Type: store.EntryObj, Ctime: now, Utime: now}
}

// seedTree inserts the root plus /u/, /u/a/ and object /u/a/x, returning
// the entries by path.
func seedTree(t *testing.T, st store.ObjectStore) map[string]store.Entry {
	t.Helper()
	ctx := t.Context()

	root := rootEntry()
	u := dirEntry(root.ID, "u")
	a := dirEntry(u.ID, "a")
	x := objEntry(store.NewObjectID(), a.ID, "x")

	require.NoError(t, st.InsertEntries(ctx, []store.Entry{root, u, a, x}))
	return map[string]store.Entry{"/": root, "/u/": u, "/u/a/": a, "/u/a/x": x}
}

func ids(entries []store.Entry) []store.ObjectID {
	out := make([]store.ObjectID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func names(entries []store.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func (suite *StoreTestSuite) testSettings(t *testing.T) {
	st := newStore(t, suite)
	ctx := t.Context()

	v, err := st.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	require.NoError(t, st.SetSchemaVersion(ctx, 2))
	v, err = st.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}
