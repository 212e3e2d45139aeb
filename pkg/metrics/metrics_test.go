package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopWhenDisabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialized by another test")
	}
	assert.IsType(t, noopFSMetrics{}, NewFSMetrics())
	assert.IsType(t, noopStoreMetrics{}, NewStoreMetrics("memory"))
}

func TestCollectorsExported(t *testing.T) {
	InitRegistry()

	fm := NewFSMetrics()
	fm.RecordOperation("walk", time.Millisecond, nil)
	fm.RecordOperation("walk", time.Millisecond, errors.New("boom"))
	fm.RecordEdgeWrites(1, 2, 0, 3)
	fm.RecordListenerEvent("insert", nil)
	fm.RecordSyncBatch(4, 1)
	fm.RecordStrayEdges(2)
	assert.Same(t, fm, NewFSMetrics())

	NewStoreMetrics("badger").RecordStorageOperation("bulk_write", time.Millisecond, nil)
	NewStoreMetrics("memory").RecordStorageOperation("walk", time.Millisecond, nil)

	srv := NewServer(ServerConfig{Port: 9999})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		`objfs_fs_operations_total{operation="walk",status="error"} 1`,
		`objfs_fs_edge_writes_total{kind="deleted"} 3`,
		`objfs_rsync_records_total{outcome="merged"} 4`,
		`objfs_gc_stray_edges_total 2`,
		`objfs_store_operations_total{operation="bulk_write",status="success",store_type="badger"} 1`,
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}

func TestHealthz(t *testing.T) {
	down := errors.New("store closed")
	healthy := true
	srv := NewServer(ServerConfig{Health: func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return down
	}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store closed")
	assert.Equal(t, 9090, srv.Port())

	srv.SetHealth(func(context.Context) error { return nil })
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type recordingStoreMetrics struct {
	ops  []string
	errs int
}

func (r *recordingStoreMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	r.ops = append(r.ops, operation)
	if err != nil {
		r.errs++
	}
}

func TestInstrumentStore(t *testing.T) {
	ctx := t.Context()
	rec := &recordingStoreMetrics{}
	st := InstrumentStore(memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{}), rec)

	obj := &store.Object{TypeID: "car", Payload: []byte("x")}
	_, err := st.Save(ctx, obj)
	require.NoError(t, err)
	_, err = st.Load(ctx, obj.ID)
	require.NoError(t, err)
	_, err = st.Load(ctx, store.NewObjectID())
	require.Error(t, err)

	assert.Equal(t, []string{"save", "load", "load"}, rec.ops)
	assert.Equal(t, 1, rec.errs)

	plain := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	assert.Same(t, plain, InstrumentStore(plain, nil))
}
