// Package find searches the subtrees of the virtual filesystem by depth,
// metadata, object type and lifecycle state.
package find

import (
	"context"
	"time"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/nodes"
	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// Options selects the entries returned by Find.
type Options struct {
	// Starts are the directories to search, resolved against the session's
	// working directory. Empty means the working directory.
	Starts []string

	// Meta filters objects by their metadata document.
	Meta store.Filter

	// State selects objects by lifecycle; empty means live.
	State store.State

	// TypeID restricts objects to one type.
	TypeID string

	// MinDepth skips entries shallower than it. Immediate children of a
	// start directory are at depth 0.
	MinDepth int

	// MaxDepth skips entries deeper than it. Negative means unbounded.
	MaxDepth int

	// IncludeDirs adds matching directories to the results. Directories
	// are only filtered by depth.
	IncludeDirs bool

	// WithMeta attaches metadata to the returned object nodes.
	WithMeta bool
}

// DefaultOptions returns options searching the whole working directory.
func DefaultOptions() Options {
	return Options{MaxDepth: -1}
}

// Find walks every start directory and returns the matching entries as a
// results node, in pre-order per start. Entries reachable from more than
// one start are returned once.
func Find(ctx context.Context, sess *session.Session, opts Options) (*nodes.ResultsNode, error) {
	fs := sess.FS()
	start := time.Now()
	var err error
	defer func() { fs.Metrics().RecordOperation("find", time.Since(start), err) }()

	if err = opts.Meta.Validate(); err != nil {
		return nil, err
	}
	if opts.State != "" {
		if opts.State, err = store.ParseState(string(opts.State)); err != nil {
			return nil, err
		}
	}
	if opts.MinDepth < 0 {
		err = store.NewInvalidArgumentError("", "negative min depth")
		return nil, err
	}

	starts := opts.Starts
	if len(starts) == 0 {
		starts = []string{sess.Cwd()}
	}

	results := nodes.NewResultsNode()
	seen := make(map[store.ObjectID]bool)

	for _, s := range starts {
		abs := fspath.ToDir(sess.Abs(s))
		var dir *vfs.Entry
		if dir, err = fs.LookupDir(ctx, abs); err != nil {
			err = store.WithPath(err, s)
			return nil, err
		}

		q := vfs.DescendQuery{
			ChildQuery: vfs.ChildQuery{
				TypeID:     opts.TypeID,
				State:      opts.State,
				MetaFilter: opts.Meta,
				WithMeta:   opts.WithMeta,
				DirPath:    abs,
			},
			MinDepth: opts.MinDepth,
			MaxDepth: opts.MaxDepth,
		}
		// without a filter, objects still need a record to be listed
		q.WithRecords = true

		for e, iterErr := range fs.IterDescendents(ctx, dir.ID, q) {
			if iterErr != nil {
				err = store.WithPath(iterErr, s)
				return nil, err
			}
			if seen[e.ID] || (e.IsDir() && !opts.IncludeDirs) {
				continue
			}
			seen[e.ID] = true
			results.Append(nodes.FromEntry(fs, e))
		}
	}
	return results, nil
}
