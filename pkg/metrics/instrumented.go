package metrics

import (
	"context"
	"time"

	"github.com/marmos91/objfs/pkg/store"
)

// InstrumentStore wraps st so that its backend round trips are recorded
// on m. Operations not listed below pass through untimed.
func InstrumentStore(st store.ObjectStore, m StoreMetrics) store.ObjectStore {
	if m == nil {
		return st
	}
	return &instrumentedStore{ObjectStore: st, m: m}
}

type instrumentedStore struct {
	store.ObjectStore
	m StoreMetrics
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.m.RecordStorageOperation(op, time.Since(start), err)
}

func (s *instrumentedStore) Walk(ctx context.Context, from store.ObjectID, names []string) ([]store.Entry, error) {
	start := time.Now()
	out, err := s.ObjectStore.Walk(ctx, from, names)
	s.observe("walk", start, err)
	return out, err
}

func (s *instrumentedStore) Children(ctx context.Context, parent store.ObjectID, q store.ChildrenQuery) ([]store.Entry, error) {
	start := time.Now()
	out, err := s.ObjectStore.Children(ctx, parent, q)
	s.observe("children", start, err)
	return out, err
}

func (s *instrumentedStore) Descendants(ctx context.Context, id store.ObjectID, maxDepth int) ([]store.Entry, error) {
	start := time.Now()
	out, err := s.ObjectStore.Descendants(ctx, id, maxDepth)
	s.observe("descendants", start, err)
	return out, err
}

func (s *instrumentedStore) BulkWrite(ctx context.Context, ops []store.EntryOp) (store.BulkResult, error) {
	start := time.Now()
	res, err := s.ObjectStore.BulkWrite(ctx, ops)
	s.observe("bulk_write", start, err)
	return res, err
}

func (s *instrumentedStore) Records(ctx context.Context, q store.RecordQuery) ([]store.Record, error) {
	start := time.Now()
	out, err := s.ObjectStore.Records(ctx, q)
	s.observe("records", start, err)
	return out, err
}

func (s *instrumentedStore) Snapshots(ctx context.Context, ids []store.ObjectID, history bool) ([]store.Snapshot, error) {
	start := time.Now()
	out, err := s.ObjectStore.Snapshots(ctx, ids, history)
	s.observe("snapshots", start, err)
	return out, err
}

func (s *instrumentedStore) Merge(ctx context.Context, snapshots []store.Snapshot) (store.MergeResult, error) {
	start := time.Now()
	res, err := s.ObjectStore.Merge(ctx, snapshots)
	s.observe("merge", start, err)
	return res, err
}

func (s *instrumentedStore) FindMeta(ctx context.Context, filter store.Filter, ids []store.ObjectID) ([]store.ObjectID, error) {
	start := time.Now()
	out, err := s.ObjectStore.FindMeta(ctx, filter, ids)
	s.observe("find_meta", start, err)
	return out, err
}

func (s *instrumentedStore) Save(ctx context.Context, objs ...*store.Object) ([]store.Record, error) {
	start := time.Now()
	out, err := s.ObjectStore.Save(ctx, objs...)
	s.observe("save", start, err)
	return out, err
}

func (s *instrumentedStore) Load(ctx context.Context, id store.ObjectID) (*store.Object, error) {
	start := time.Now()
	obj, err := s.ObjectStore.Load(ctx, id)
	s.observe("load", start, err)
	return obj, err
}

func (s *instrumentedStore) Delete(ctx context.Context, ids ...store.ObjectID) error {
	start := time.Now()
	err := s.ObjectStore.Delete(ctx, ids...)
	s.observe("delete", start, err)
	return err
}
