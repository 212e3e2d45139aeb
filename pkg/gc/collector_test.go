package gc

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStrayTree saves n objects at /u/ and tombstones the first strays of
// them behind the session's back.
func newStrayTree(t *testing.T, n, strays int) (*vfs.FS, []store.ObjectID) {
	t.Helper()
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	fs, err := vfs.New(ctx, st, vfs.Options{})
	require.NoError(t, err)
	_, err = fs.MakeDirs(ctx, "/u/", true)
	require.NoError(t, err)

	sess, err := session.New(ctx, fs, session.Options{Cwd: "/u/"})
	require.NoError(t, err)

	var ids []store.ObjectID
	for range n {
		obj := &store.Object{TypeID: "car"}
		_, err := st.Save(ctx, obj)
		require.NoError(t, err)
		ids = append(ids, obj.ID)
	}
	require.NoError(t, sess.Close())
	require.NoError(t, st.Delete(ctx, ids[:strays]...))
	return fs, ids
}

func edges(t *testing.T, fs *vfs.FS, ids []store.ObjectID) int {
	t.Helper()
	entries, err := fs.Store().GetEntries(t.Context(), ids)
	require.NoError(t, err)
	return len(entries)
}

func TestCollectRemovesStrayEdges(t *testing.T) {
	fs, ids := newStrayTree(t, 7, 3)

	c, err := NewCollector(fs, Config{BatchSize: 2})
	require.NoError(t, err)
	stats, err := c.RunNow(t.Context())
	require.NoError(t, err)

	assert.Equal(t, uint64(7), stats.ScannedCount)
	assert.Equal(t, uint64(3), stats.StrayCount)
	assert.Equal(t, uint64(3), stats.RemovedCount)
	assert.Zero(t, stats.FailedCount)
	assert.Equal(t, 0, edges(t, fs, ids[:3]))
	assert.Equal(t, 4, edges(t, fs, ids[3:]))
	assert.Contains(t, stats.Summary(), "stray=3")
}

func TestCollectDryRun(t *testing.T) {
	fs, ids := newStrayTree(t, 3, 2)

	c, err := NewCollector(fs, Config{DryRun: true})
	require.NoError(t, err)
	stats, err := c.RunNow(t.Context())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.StrayCount)
	assert.Zero(t, stats.RemovedCount)
	assert.Equal(t, 3, edges(t, fs, ids))
}

func TestCollectorLifecycle(t *testing.T) {
	fs, ids := newStrayTree(t, 2, 1)

	_, err := NewCollector(nil, Config{})
	assert.Error(t, err)

	disabled, err := NewCollector(fs, Config{})
	require.NoError(t, err)
	disabled.Start()
	require.NoError(t, disabled.Stop(t.Context()))

	c, err := NewCollector(fs, Config{Enabled: true, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	c.Start()
	assert.Eventually(t, func() bool {
		entries, err := fs.Store().GetEntries(t.Context(), ids[:1])
		return err == nil && len(entries) == 0
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}
