package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics provides observability for low-level backend operations
// (transactions, aggregations, bulk writes) of an object store.
type StoreMetrics interface {
	// RecordStorageOperation records one backend operation.
	//
	// Parameters:
	//   - operation: Storage operation (e.g., "walk", "bulk_write", "save")
	//   - duration: Time taken
	//   - err: Error if failed
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

type storeMetrics struct {
	storeType          string
	storageOpsTotal    *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
}

var (
	storeCollectorsOnce sync.Once
	storeOpsTotal       *prometheus.CounterVec
	storeOpsDuration    *prometheus.HistogramVec
)

// NewStoreMetrics creates a Prometheus-backed StoreMetrics labelled with
// storeType (e.g. "memory", "badger", "mongo"), or a no-op implementation
// when metrics are not enabled.
func NewStoreMetrics(storeType string) StoreMetrics {
	if !IsEnabled() {
		return NewNoopStoreMetrics()
	}

	storeCollectorsOnce.Do(func() {
		reg := GetRegistry()
		storeOpsTotal = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "objfs_store_operations_total",
				Help: "Total number of low-level store operations by store type, operation and status",
			},
			[]string{"store_type", "operation", "status"},
		)
		storeOpsDuration = promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "objfs_store_operation_duration_seconds",
				Help: "Duration of low-level store operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					1.0,    // 1s
				},
			},
			[]string{"store_type", "operation"},
		)
	})

	return &storeMetrics{
		storeType:          storeType,
		storageOpsTotal:    storeOpsTotal,
		storageOpsDuration: storeOpsDuration,
	}
}

func (m *storeMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsTotal.WithLabelValues(m.storeType, operation, status(err)).Inc()
	m.storageOpsDuration.WithLabelValues(m.storeType, operation).Observe(duration.Seconds())
}

// NewNoopStoreMetrics returns a StoreMetrics that records nothing.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
}
