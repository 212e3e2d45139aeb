package vfs

import (
	"context"
	"time"

	"github.com/marmos91/objfs/pkg/store"
)

// RemoveObj deletes the edge of an object. It reports false when id has no
// object edge; directory edges are never touched.
func (fs *FS) RemoveObj(ctx context.Context, id store.ObjectID) (bool, error) {
	n, err := fs.RemoveObjs(ctx, []store.ObjectID{id})
	return n > 0, err
}

// RemoveObjs deletes the object edges of ids in one write and returns how
// many existed.
func (fs *FS) RemoveObjs(ctx context.Context, ids []store.ObjectID) (n int, err error) {
	defer fs.observe("remove_objs", time.Now(), &err)

	if len(ids) == 0 {
		return 0, nil
	}
	res, err := fs.bulkWrite(ctx, []store.EntryOp{store.DeleteEntriesOp{IDs: ids, Type: store.EntryObj}})
	return res.Deleted, err
}

// RemoveDir deletes the directory id. Without recursive it fails with
// ErrDirectoryNotEmpty when the directory has children; with it, every
// descendent edge goes in the same write. Payloads of removed object edges
// are left in the store; the removed descendents are returned so callers can
// act on them.
func (fs *FS) RemoveDir(ctx context.Context, id store.ObjectID, recursive bool) (removed []store.Entry, err error) {
	defer fs.observe("remove_dir", time.Now(), &err)

	if id == RootID {
		return nil, store.NewInvalidArgumentError("/", "cannot remove the root")
	}

	dir, err := fs.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fs.entryError(ctx, store.ErrNotADirectory, dir)
	}

	depth := -1
	if !recursive {
		depth = 0
	}
	desc, err := fs.store.Descendants(ctx, id, depth)
	if err != nil {
		return nil, err
	}
	if !recursive && len(desc) > 0 {
		return nil, fs.entryError(ctx, store.ErrDirectoryNotEmpty, dir)
	}

	ids := make([]store.ObjectID, 0, len(desc)+1)
	for _, e := range desc {
		ids = append(ids, e.ID)
	}
	ids = append(ids, id)

	if _, err := fs.bulkWrite(ctx, []store.EntryOp{store.DeleteEntriesOp{IDs: ids}}); err != nil {
		return nil, err
	}
	return desc, nil
}

// entryError reports code on the absolute path of e, or on its name when
// the path cannot be resolved.
func (fs *FS) entryError(ctx context.Context, code store.ErrorCode, e *Entry) error {
	p := e.Name
	if paths, err := fs.Paths(ctx, []store.ObjectID{e.ID}); err == nil {
		if full, ok := paths[e.ID]; ok {
			p = full
		}
	}
	return store.NewError(code, p)
}
