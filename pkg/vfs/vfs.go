// Package vfs maps absolute paths to object ids over a store.ObjectStore.
//
// The tree is a collection of parent-pointing edges (store.Entry). Directory
// edges carry freshly minted ids; object edges reuse the id of the object
// they place. All reads resolve in a bounded number of round trips to the
// store, and every compound write compiles to a single ordered bulk write.
//
// Error model:
// Operations return *store.StoreError values carrying the offending path.
// Duplicate-key rejections from the unique (parent, name) index surface as
// store.ErrAlreadyExists.
package vfs

import (
	"context"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/metrics"
	"github.com/marmos91/objfs/pkg/store"
)

// DefaultBatchSize is the page size of child listings.
const DefaultBatchSize = 256

// FS is the filesystem core bound to one object store.
//
// FS holds no mutable state of its own and is safe for concurrent use.
type FS struct {
	store     store.ObjectStore
	metrics   metrics.FSMetrics
	batchSize int
}

// Options configures an FS.
type Options struct {
	// Metrics receives operation timings. Nil disables collection.
	Metrics metrics.FSMetrics

	// BatchSize is the page size used by IterChildren when the query does
	// not set one (default: DefaultBatchSize).
	BatchSize int

	// SkipMigrations opens the filesystem without checking the schema
	// version. Reads on an unmigrated store fail with ErrNotFound.
	SkipMigrations bool
}

// New binds an FS to st and applies pending schema migrations.
func New(ctx context.Context, st store.ObjectStore, opts Options) (*FS, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopFSMetrics()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	fs := &FS{
		store:     st,
		metrics:   opts.Metrics,
		batchSize: opts.BatchSize,
	}

	if !opts.SkipMigrations {
		if err := fs.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	logger.Debug("Filesystem ready on %v store", st)
	return fs, nil
}

// Store returns the backing object store.
func (fs *FS) Store() store.ObjectStore {
	return fs.store
}

// Metrics returns the metrics sink of fs.
func (fs *FS) Metrics() metrics.FSMetrics {
	return fs.metrics
}

// observe records the outcome of one operation. Use as
//
//	defer fs.observe("walk", time.Now(), &err)
func (fs *FS) observe(op string, start time.Time, err *error) {
	fs.metrics.RecordOperation(op, time.Since(start), *err)
}

// bulkWrite issues ops and records the edge write counts.
func (fs *FS) bulkWrite(ctx context.Context, ops []store.EntryOp) (store.BulkResult, error) {
	res, err := fs.store.BulkWrite(ctx, ops)
	fs.metrics.RecordEdgeWrites(res.Inserted, res.Upserted, res.Modified, res.Deleted)
	return res, err
}
