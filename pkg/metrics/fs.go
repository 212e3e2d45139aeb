package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FSMetrics provides observability for virtual filesystem operations.
//
// This interface is optional. Components given nil use NewNoopFSMetrics.
type FSMetrics interface {
	// RecordOperation records a completed filesystem operation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "walk", "make_dirs", "rename")
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordEdgeWrites adds the effect of one edge bulk write.
	RecordEdgeWrites(inserted, upserted, modified, deleted int)

	// RecordListenerEvent records one store write event seen by a session
	// listener and whether acting on it failed.
	RecordListenerEvent(kind string, err error)

	// RecordSyncBatch records one rsync batch.
	RecordSyncBatch(merged, skipped int)

	// RecordStrayEdges records edges removed by the garbage collector.
	RecordStrayEdges(count int)
}

type fsMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	edgeWrites        *prometheus.CounterVec
	listenerEvents    *prometheus.CounterVec
	syncedRecords     *prometheus.CounterVec
	strayEdges        prometheus.Counter
}

var (
	fsMetricsOnce     sync.Once
	fsMetricsInstance FSMetrics
)

// NewFSMetrics returns the Prometheus-backed FSMetrics, or a no-op
// implementation when metrics are not enabled. Collectors are registered
// once; every call after the first returns the same instance.
func NewFSMetrics() FSMetrics {
	if !IsEnabled() {
		return NewNoopFSMetrics()
	}

	fsMetricsOnce.Do(func() {
		reg := GetRegistry()
		fsMetricsInstance = &fsMetrics{
			operationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "objfs_fs_operations_total",
					Help: "Total number of filesystem operations by operation and status",
				},
				[]string{"operation", "status"},
			),
			operationDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "objfs_fs_operation_duration_seconds",
					Help: "Duration of filesystem operations in seconds",
					Buckets: []float64{
						0.0001, // 100µs
						0.001,  // 1ms
						0.005,  // 5ms
						0.025,  // 25ms
						0.1,    // 100ms
						0.5,    // 500ms
						2.5,    // 2.5s
					},
				},
				[]string{"operation"},
			),
			edgeWrites: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "objfs_fs_edge_writes_total",
					Help: "Edges written to the tree by kind of write",
				},
				[]string{"kind"},
			),
			listenerEvents: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "objfs_fs_listener_events_total",
					Help: "Object write events handled by session listeners",
				},
				[]string{"kind", "status"},
			),
			syncedRecords: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "objfs_rsync_records_total",
					Help: "Records handled by rsync by outcome",
				},
				[]string{"outcome"},
			),
			strayEdges: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Name: "objfs_gc_stray_edges_total",
					Help: "Stray object edges removed by the garbage collector",
				},
			),
		}
	})
	return fsMetricsInstance
}

func (m *fsMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *fsMetrics) RecordEdgeWrites(inserted, upserted, modified, deleted int) {
	m.edgeWrites.WithLabelValues("inserted").Add(float64(inserted))
	m.edgeWrites.WithLabelValues("upserted").Add(float64(upserted))
	m.edgeWrites.WithLabelValues("modified").Add(float64(modified))
	m.edgeWrites.WithLabelValues("deleted").Add(float64(deleted))
}

func (m *fsMetrics) RecordListenerEvent(kind string, err error) {
	m.listenerEvents.WithLabelValues(kind, status(err)).Inc()
}

func (m *fsMetrics) RecordSyncBatch(merged, skipped int) {
	m.syncedRecords.WithLabelValues("merged").Add(float64(merged))
	m.syncedRecords.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *fsMetrics) RecordStrayEdges(count int) {
	m.strayEdges.Add(float64(count))
}

// NewNoopFSMetrics returns an FSMetrics that records nothing.
func NewNoopFSMetrics() FSMetrics {
	return noopFSMetrics{}
}

type noopFSMetrics struct{}

func (noopFSMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopFSMetrics) RecordEdgeWrites(inserted, upserted, modified, deleted int)          {}
func (noopFSMetrics) RecordListenerEvent(kind string, err error)                          {}
func (noopFSMetrics) RecordSyncBatch(merged, skipped int)                                 {}
func (noopFSMetrics) RecordStrayEdges(count int)                                          {}
