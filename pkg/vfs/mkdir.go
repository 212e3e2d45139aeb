package vfs

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/store"
)

// makeDirsAttempts bounds the re-walks after losing a creation race. Each
// lost race means one more level exists, so deep paths get one attempt per
// level on top of it.
const makeDirsAttempts = 3

// MakeDirs creates the directory at path and every missing parent in one
// insert batch, and returns the directory.
//
// If the whole path exists it succeeds only with existOK. An object on the
// way yields ErrNotADirectory; an object at path yields ErrAlreadyExists.
// When a concurrent writer creates one of the same directories the unique
// sibling index rejects the batch and the walk is retried.
func (fs *FS) MakeDirs(ctx context.Context, path string, existOK bool) (dir *Entry, err error) {
	defer fs.observe("make_dirs", time.Now(), &err)

	var lastErr error
	limit := makeDirsAttempts
	for attempt := 0; attempt < limit; attempt++ {
		res, err := fs.Walk(ctx, path, WalkOptions{})
		if err != nil {
			return nil, err
		}
		limit = max(limit, len(res.Segments)+1)

		if res.Found {
			last := res.Entry()
			if last.IsObj() || !existOK {
				return nil, store.NewAlreadyExistsError(path)
			}
			return last, nil
		}
		if res.Last().IsObj() {
			return nil, store.NewError(store.ErrNotADirectory, path)
		}

		now := time.Now().UTC()
		parent := res.Last().ID
		missing := res.Segments[len(res.Entries)-1:]
		created := make([]store.Entry, 0, len(missing))
		for _, name := range missing {
			e := store.Entry{
				ID:     store.NewObjectID(),
				Name:   name,
				Parent: parent,
				Type:   store.EntryDir,
				Ctime:  now,
				Utime:  now,
			}
			created = append(created, e)
			parent = e.ID
		}

		err = fs.store.InsertEntries(ctx, created)
		if err == nil {
			fs.metrics.RecordEdgeWrites(len(created), 0, 0, 0)
			chain := append(res.Entries, created...)
			return &Entry{
				Entry:       created[len(created)-1],
				Path:        chainPath(chain),
				PathEntries: chain,
			}, nil
		}

		var bwe *store.BulkWriteError
		if errors.As(err, &bwe) {
			fs.metrics.RecordEdgeWrites(bwe.Index, 0, 0, 0)
		}
		if !store.IsCode(err, store.ErrDuplicateKey) {
			return nil, store.WithPath(err, path)
		}
		logger.Debug("MakeDirs %s: lost creation race (attempt %d)", path, attempt+1)
		lastErr = err
	}

	return nil, &store.StoreError{Code: store.ErrAlreadyExists, Message: "concurrent creation", Path: path, Err: lastErr}
}
