package vfs

import (
	"context"
	"iter"

	"github.com/marmos91/objfs/pkg/store"
)

// ChildQuery selects and enriches the children of a directory.
//
// Directory children are yielded as they are. Object children are
// cross-referenced against the record catalog whenever TypeID, State,
// RecordFilter, MetaFilter or WithRecords is set; objects whose record does
// not satisfy the query (or has vanished) are skipped.
type ChildQuery struct {
	// Type restricts the kind of children; EntryAny yields both.
	Type store.EntryType

	// TypeID restricts objects to one type.
	TypeID string

	// State selects objects by lifecycle; empty means live.
	State store.State

	// RecordFilter is evaluated against each object's latest record.
	RecordFilter store.Filter

	// MetaFilter is evaluated against each object's metadata.
	MetaFilter store.Filter

	// WithRecords attaches the latest record to object children.
	WithRecords bool

	// WithMeta attaches the metadata document to object children.
	WithMeta bool

	// DirPath is the absolute path of the listed directory. When set,
	// yielded entries carry their own absolute path.
	DirPath string

	// BatchSize is the page size (default: the FS batch size).
	BatchSize int
}

func (q *ChildQuery) crossReference() bool {
	return q.WithRecords || q.TypeID != "" || q.State != "" || len(q.RecordFilter) > 0 || len(q.MetaFilter) > 0
}

// IterChildren yields the children of dirID ordered by name, fetched in
// pages. Iteration stops at the first error, which is yielded once.
func (fs *FS) IterChildren(ctx context.Context, dirID store.ObjectID, q ChildQuery) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		batch := q.BatchSize
		if batch <= 0 {
			batch = fs.batchSize
		}

		after := ""
		for {
			page, err := fs.store.Children(ctx, dirID, store.ChildrenQuery{
				AfterName: after,
				Limit:     batch,
				Type:      q.Type,
			})
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			after = page[len(page)-1].Name

			entries, err := fs.enrich(ctx, page, &q)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < batch {
				return
			}
		}
	}
}

// enrich applies the record and metadata cross-reference to one page.
func (fs *FS) enrich(ctx context.Context, page []store.Entry, q *ChildQuery) ([]*Entry, error) {
	var objIDs []store.ObjectID
	for i := range page {
		if page[i].IsObj() {
			objIDs = append(objIDs, page[i].ID)
		}
	}

	var (
		records map[store.ObjectID]*store.Record
		metaOK  map[store.ObjectID]bool
		metas   map[store.ObjectID]store.Meta
	)

	if q.crossReference() && len(objIDs) > 0 {
		recs, err := fs.store.Records(ctx, store.RecordQuery{
			IDs:    objIDs,
			TypeID: q.TypeID,
			State:  q.State,
			Filter: q.RecordFilter,
		})
		if err != nil {
			return nil, err
		}
		records = make(map[store.ObjectID]*store.Record, len(recs))
		for i := range recs {
			records[recs[i].ObjID] = &recs[i]
		}

		if len(q.MetaFilter) > 0 {
			ids, err := fs.store.FindMeta(ctx, q.MetaFilter, objIDs)
			if err != nil {
				return nil, err
			}
			metaOK = make(map[store.ObjectID]bool, len(ids))
			for _, id := range ids {
				metaOK[id] = true
			}
		}
	}
	if q.WithMeta && len(objIDs) > 0 {
		var err error
		if metas, err = fs.store.GetMeta(ctx, objIDs); err != nil {
			return nil, err
		}
	}

	out := make([]*Entry, 0, len(page))
	for i := range page {
		e := &Entry{Entry: page[i], Path: childPath(q.DirPath, &page[i])}
		if e.IsObj() {
			if records != nil {
				rec, ok := records[e.ID]
				if !ok {
					continue
				}
				if metaOK != nil && !metaOK[e.ID] {
					continue
				}
				if q.WithRecords {
					e.Record = rec
				}
			}
			if metas != nil {
				e.Meta = metas[e.ID]
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// DescendQuery selects entries below a directory.
type DescendQuery struct {
	ChildQuery

	// MinDepth skips entries shallower than it.
	MinDepth int

	// MaxDepth bounds the traversal: entries deeper than MaxDepth are not
	// yielded and directories at MaxDepth are not entered. Negative means
	// unbounded.
	MaxDepth int
}

// IterDescendents walks the subtree of dirID in pre-order: each matching
// child is yielded before the directory is entered. Immediate children are
// at depth 0.
func (fs *FS) IterDescendents(ctx context.Context, dirID store.ObjectID, q DescendQuery) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		fs.descend(ctx, dirID, q.DirPath, 0, &q, yield)
	}
}

// descend returns false once the consumer stopped or an error was yielded.
func (fs *FS) descend(ctx context.Context, dirID store.ObjectID, dirPath string, depth int, q *DescendQuery, yield func(*Entry, error) bool) bool {
	if q.MaxDepth >= 0 && depth > q.MaxDepth {
		return true
	}

	// directories are always listed so the traversal can enter them
	cq := q.ChildQuery
	cq.Type = store.EntryAny
	cq.DirPath = dirPath

	for e, err := range fs.IterChildren(ctx, dirID, cq) {
		if err != nil {
			yield(nil, err)
			return false
		}
		e.Depth = depth

		if depth >= q.MinDepth && (q.Type == store.EntryAny || q.Type == e.Type) {
			if !yield(e, nil) {
				return false
			}
		}
		if e.IsDir() && (q.MaxDepth < 0 || depth < q.MaxDepth) {
			if !fs.descend(ctx, e.ID, e.Path, depth+1, q, yield) {
				return false
			}
		}
	}
	return true
}
