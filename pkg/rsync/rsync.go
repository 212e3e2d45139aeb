// Package rsync replicates objects between two stores: their version
// history, their metadata and their place in the tree.
//
// Objects are selected by path in the source filesystem, streamed in
// batches and merged into the destination, which keeps the versions it
// already has. Each object is then placed in the destination tree at its
// path relative to the source path, below the destination path.
package rsync

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/internal/ratelimiter"
	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// DefaultBatchSize is the number of objects merged per round trip.
const DefaultBatchSize = 256

// MetaMode selects how source metadata reaches the destination.
type MetaMode string

const (
	// MetaNone carries no metadata; only the placement is synced.
	MetaNone MetaMode = "none"

	// MetaUpdate merges source fields into the destination document.
	MetaUpdate MetaMode = "update"

	// MetaOverwrite replaces the destination document.
	MetaOverwrite MetaMode = "overwrite"
)

// ParseMetaMode validates a mode name. The empty string maps to MetaNone.
func ParseMetaMode(s string) (MetaMode, error) {
	switch MetaMode(s) {
	case "", MetaNone:
		return MetaNone, nil
	case MetaUpdate, MetaOverwrite:
		return MetaMode(s), nil
	default:
		return "", store.NewInvalidArgumentError(s, "unknown metadata mode")
	}
}

// Endpoint is one side of a sync: a filesystem and an absolute path in it.
type Endpoint struct {
	FS   *vfs.FS
	Path string
}

// Options tunes Sync.
type Options struct {
	// History transfers every version instead of the latest only.
	History bool

	// Meta selects the metadata mode (default: MetaNone).
	Meta MetaMode

	// BatchSize is the number of objects per batch (default: 256).
	BatchSize int

	// RateLimit caps the objects merged per second; zero is unlimited.
	RateLimit uint

	// Progress is called after every batch.
	Progress func(Progress)

	limiter *ratelimiter.RateLimiter
}

// Progress reports one completed batch.
type Progress struct {
	// Batch is the merge result of the batch.
	Batch store.MergeResult

	// Total accumulates every batch so far.
	Total store.MergeResult

	// Done is the number of objects processed so far.
	Done int

	// Count is the number of objects selected.
	Count int
}

// Result summarizes a sync.
type Result struct {
	store.MergeResult

	// Objects is the number of objects selected in the source.
	Objects int

	// Placed is the number of objects placed in the destination tree.
	Placed int
}

func (r *Result) add(o *Result) {
	r.MergeResult.Add(o.MergeResult)
	r.Objects += o.Objects
	r.Placed += o.Placed
}

// source is one selected object and its source path.
type source struct {
	id   store.ObjectID
	path string
}

// Sync copies the objects at or below src.Path into dst.
//
// A source directory syncs every object below it to the same relative
// path below dst.Path. A source object lands below dst.Path when it is a
// directory (or written as one) and at dst.Path otherwise.
func Sync(ctx context.Context, src, dst Endpoint, opts Options) (res *Result, err error) {
	start := time.Now()
	defer func() { dst.FS.Metrics().RecordOperation("rsync", time.Since(start), err) }()

	if opts.Meta, err = ParseMetaMode(string(opts.Meta)); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.limiter == nil && opts.RateLimit > 0 {
		opts.limiter = ratelimiter.New(opts.RateLimit, max(opts.RateLimit, uint(opts.BatchSize)))
	}

	srcEntry, err := src.FS.Lookup(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	base, objs, err := collect(ctx, src.FS, srcEntry)
	if err != nil {
		return nil, store.WithPath(err, src.Path)
	}

	target, err := resolveTarget(ctx, dst, srcEntry)
	if err != nil {
		return nil, err
	}

	res = &Result{Objects: len(objs)}
	logger.Debug("rsync: %d objects from %s to %s", len(objs), src.Path, dst.Path)

	p := &placer{fs: dst.FS, cache: vfs.NewEntriesCache(dst.FS), dirs: make(map[string]bool)}
	for i := 0; i < len(objs); i += opts.BatchSize {
		batch := objs[i:min(i+opts.BatchSize, len(objs))]
		if err := opts.limiter.WaitN(ctx, len(batch)); err != nil {
			return res, err
		}
		merged, placed, err := syncBatch(ctx, src, dst, batch, base, target, p, opts)
		if err != nil {
			return res, err
		}
		res.Add(merged)
		res.Placed += placed

		dst.FS.Metrics().RecordSyncBatch(merged.Merged, merged.Skipped)
		if opts.Progress != nil {
			opts.Progress(Progress{
				Batch: merged,
				Total: res.MergeResult,
				Done:  i + len(batch),
				Count: len(objs),
			})
		}
	}
	return res, nil
}

// collect lists the objects selected by e and the directory their relative
// paths start from.
func collect(ctx context.Context, fs *vfs.FS, e *vfs.Entry) (string, []source, error) {
	if e.IsObj() {
		return fspath.Dir(e.Path), []source{{id: e.ID, path: e.Path}}, nil
	}

	base := fspath.ToDir(e.Path)
	q := vfs.DescendQuery{
		ChildQuery: vfs.ChildQuery{Type: store.EntryObj, DirPath: base},
		MaxDepth:   -1,
	}
	var out []source
	for d, err := range fs.IterDescendents(ctx, e.ID, q) {
		if err != nil {
			return "", nil, err
		}
		out = append(out, source{id: d.ID, path: d.Path})
	}
	return base, out, nil
}

// target is where objects land: below dir, or at exact for a single
// object synced to a non-directory path.
type target struct {
	dir   string
	exact string
}

func resolveTarget(ctx context.Context, dst Endpoint, srcEntry *vfs.Entry) (target, error) {
	if !fspath.IsAbs(dst.Path) {
		return target{}, store.NewInvalidArgumentError(dst.Path, "destination path must be absolute")
	}
	if srcEntry.IsDir() || fspath.IsDirPath(dst.Path) {
		return target{dir: fspath.ToDir(fspath.Normalize(dst.Path))}, nil
	}

	e, err := dst.FS.Lookup(ctx, dst.Path)
	switch {
	case err == nil && e.IsDir():
		return target{dir: fspath.ToDir(e.Path)}, nil
	case err == nil || store.IsCode(err, store.ErrNotFound):
		return target{exact: fspath.Normalize(dst.Path)}, nil
	default:
		return target{}, err
	}
}

func (t target) pathFor(base string, s source) string {
	if t.exact != "" {
		return t.exact
	}
	if !fspath.IsUnder(s.path, base) {
		return s.path
	}
	rel, err := fspath.Rel(s.path, base)
	if err != nil {
		return s.path
	}
	return fspath.Join(t.dir, rel)
}

func syncBatch(ctx context.Context, src, dst Endpoint, batch []source, base string, t target, p *placer, opts Options) (store.MergeResult, int, error) {
	ids := make([]store.ObjectID, len(batch))
	for i, s := range batch {
		ids[i] = s.id
	}

	snaps, err := src.FS.Store().Snapshots(ctx, ids, opts.History)
	if err != nil {
		return store.MergeResult{}, 0, err
	}
	merged, err := dst.FS.Store().Merge(ctx, snaps)
	if err != nil {
		return merged, 0, store.WithPath(err, dst.Path)
	}

	// only objects whose latest version is live get a place
	latest := make(map[store.ObjectID]*store.Snapshot, len(snaps))
	for i := range snaps {
		latest[snaps[i].ObjID] = &snaps[i]
	}

	var instrs []vfs.Instruction
	for _, s := range batch {
		snap, ok := latest[s.id]
		if !ok || snap.Deleted {
			continue
		}
		dest := t.pathFor(base, s)
		if err := p.ensureDir(ctx, fspath.Dir(dest)); err != nil {
			return merged, 0, err
		}
		instrs = append(instrs, vfs.SetObjPath{ObjID: s.id, Path: dest})
	}
	if len(instrs) > 0 {
		if _, err := dst.FS.Execute(ctx, instrs...); err != nil {
			return merged, 0, err
		}
	}

	if err := syncMeta(ctx, src.FS.Store(), dst.FS.Store(), ids, opts.Meta); err != nil {
		return merged, len(instrs), err
	}
	return merged, len(instrs), nil
}

func syncMeta(ctx context.Context, src, dst store.ObjectStore, ids []store.ObjectID, mode MetaMode) error {
	if mode == MetaNone {
		return nil
	}
	metas, err := src.GetMeta(ctx, ids)
	if err != nil {
		return fmt.Errorf("read source metadata: %w", err)
	}
	for _, id := range ids {
		meta := metas[id]
		switch mode {
		case MetaOverwrite:
			err = dst.SetMeta(ctx, id, meta)
		case MetaUpdate:
			if len(meta) == 0 {
				continue
			}
			err = dst.UpdateMeta(ctx, id, meta)
		}
		if err != nil {
			return fmt.Errorf("write metadata of %s: %w", id, err)
		}
	}
	return nil
}

// placer creates destination directories once per sync.
type placer struct {
	fs    *vfs.FS
	cache *vfs.EntriesCache
	dirs  map[string]bool
}

func (p *placer) ensureDir(ctx context.Context, dir string) error {
	if p.dirs[dir] {
		return nil
	}
	if _, err := p.cache.Dir(ctx, dir); err != nil {
		if !store.IsCode(err, store.ErrNotFound) {
			return err
		}
		if _, err := p.fs.MakeDirs(ctx, dir, true); err != nil {
			return err
		}
	}
	p.dirs[dir] = true
	return nil
}
