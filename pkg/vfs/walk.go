package vfs

import (
	"context"
	"time"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
)

// WalkOptions tunes Walk.
type WalkOptions struct {
	// WithRecord attaches the latest record when the final entry is an
	// object.
	WithRecord bool
}

// WalkResult is the outcome of resolving one absolute path.
type WalkResult struct {
	// Path is the normalized path that was walked.
	Path string

	// Segments are the names below the root.
	Segments []string

	// Entries is the resolved chain, starting with the root. It is shorter
	// than len(Segments)+1 when the walk stopped at a missing name.
	Entries []store.Entry

	// Found reports whether every segment resolved.
	Found bool

	record *store.Record
}

// Entry returns the final resolved entry, or nil when the walk missed.
func (r *WalkResult) Entry() *Entry {
	if !r.Found {
		return nil
	}
	last := r.Entries[len(r.Entries)-1]
	return &Entry{
		Entry:       last,
		Record:      r.record,
		Path:        chainPath(r.Entries),
		PathEntries: r.Entries,
	}
}

// Last returns the deepest entry that resolved.
func (r *WalkResult) Last() store.Entry {
	return r.Entries[len(r.Entries)-1]
}

// Err explains a miss: ErrNotADirectory when the walk ran into an object
// with names left to resolve, ErrNotFound otherwise. It is nil on a hit.
func (r *WalkResult) Err() error {
	if r.Found {
		return nil
	}
	if len(r.Entries) > 0 && r.Last().IsObj() {
		return store.NewError(store.ErrNotADirectory, r.Path)
	}
	return store.NewNotFoundError(r.Path)
}

// Walk resolves an absolute path in one store round trip. A miss is not an
// error: it is reported by WalkResult.Found and has no side effects.
func (fs *FS) Walk(ctx context.Context, path string, opts WalkOptions) (res *WalkResult, err error) {
	defer fs.observe("walk", time.Now(), &err)

	segs, err := fspath.Segments(path)
	if err != nil {
		return nil, err
	}

	chain, err := fs.store.Walk(ctx, RootID, segs)
	if err != nil {
		return nil, store.WithPath(err, path)
	}
	if len(chain) == 0 {
		return nil, store.Errorf(store.ErrNotFound, path, "filesystem root is missing")
	}

	res = &WalkResult{
		Path:     fspath.Normalize(path),
		Segments: segs,
		Entries:  chain,
		Found:    len(chain) == len(segs)+1,
	}

	if res.Found && opts.WithRecord && res.Last().IsObj() {
		recs, err := fs.store.Records(ctx, store.RecordQuery{
			IDs:   []store.ObjectID{res.Last().ID},
			State: store.StateAll,
		})
		if err != nil {
			return nil, store.WithPath(err, path)
		}
		if len(recs) > 0 {
			res.record = &recs[0]
		}
	}
	return res, nil
}

// Lookup returns the entry at path. A path with a trailing separator only
// resolves to directories.
func (fs *FS) Lookup(ctx context.Context, path string) (*Entry, error) {
	res, err := fs.Walk(ctx, path, WalkOptions{WithRecord: true})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	e := res.Entry()
	if fspath.IsDirPath(path) && e.IsObj() {
		return nil, store.NewError(store.ErrNotADirectory, path)
	}
	return e, nil
}

// LookupDir returns the directory at path.
func (fs *FS) LookupDir(ctx context.Context, path string) (*Entry, error) {
	e, err := fs.Lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	if !e.IsDir() {
		return nil, store.NewError(store.ErrNotADirectory, path)
	}
	return e, nil
}

// GetEntry returns the edge with the given id.
func (fs *FS) GetEntry(ctx context.Context, id store.ObjectID) (*Entry, error) {
	entries, err := fs.store.GetEntries(ctx, []store.ObjectID{id})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, store.NewNotFoundError(string(id))
	}
	return &Entry{Entry: entries[0]}, nil
}

// Paths resolves the absolute path of each id. Ids without an edge, or
// whose chain does not reach the root, are absent from the result.
func (fs *FS) Paths(ctx context.Context, ids []store.ObjectID) (paths map[store.ObjectID]string, err error) {
	defer fs.observe("paths", time.Now(), &err)

	cache := NewEntriesCache(fs)
	if err := cache.Fill(ctx, ids); err != nil {
		return nil, err
	}

	paths = make(map[store.ObjectID]string, len(ids))
	for _, id := range ids {
		if p, ok := cache.Path(id); ok {
			paths[id] = p
		}
	}
	return paths, nil
}

// ============================================================================
// EntriesCache
// ============================================================================

// EntriesCache memoizes edges and directory lookups for the duration of one
// operation. It is not safe for concurrent use and must not outlive the
// operation that created it: it does not observe writes.
type EntriesCache struct {
	fs    *FS
	byID  map[store.ObjectID]store.Entry
	dirs  map[string]store.Entry
	paths map[store.ObjectID]string
}

// NewEntriesCache returns an empty cache reading through fs.
func NewEntriesCache(fs *FS) *EntriesCache {
	return &EntriesCache{
		fs:    fs,
		byID:  make(map[store.ObjectID]store.Entry),
		dirs:  make(map[string]store.Entry),
		paths: make(map[store.ObjectID]string),
	}
}

// Put records e.
func (c *EntriesCache) Put(e store.Entry) {
	c.byID[e.ID] = e
}

// Get returns the cached edge of id.
func (c *EntriesCache) Get(id store.ObjectID) (store.Entry, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Entry returns the edge of id, fetching it on a miss.
func (c *EntriesCache) Entry(ctx context.Context, id store.ObjectID) (store.Entry, error) {
	if e, ok := c.byID[id]; ok {
		return e, nil
	}
	if err := c.Fill(ctx, []store.ObjectID{id}); err != nil {
		return store.Entry{}, err
	}
	e, ok := c.byID[id]
	if !ok {
		return store.Entry{}, store.NewNotFoundError(string(id))
	}
	return e, nil
}

// Fill fetches ids and all their ancestors, one round trip per tree level.
func (c *EntriesCache) Fill(ctx context.Context, ids []store.ObjectID) error {
	frontier := c.missing(ids)
	for len(frontier) > 0 {
		entries, err := c.fs.store.GetEntries(ctx, frontier)
		if err != nil {
			return err
		}
		parents := make([]store.ObjectID, 0, len(entries))
		for _, e := range entries {
			c.byID[e.ID] = e
			if !e.Parent.IsZero() {
				parents = append(parents, e.Parent)
			}
		}
		frontier = c.missing(parents)
	}
	return nil
}

func (c *EntriesCache) missing(ids []store.ObjectID) []store.ObjectID {
	seen := make(map[store.ObjectID]bool, len(ids))
	var out []store.ObjectID
	for _, id := range ids {
		if _, ok := c.byID[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Path renders the absolute path of a cached id. It reports false when the
// chain is not fully cached or does not end at the root.
func (c *EntriesCache) Path(id store.ObjectID) (string, bool) {
	if p, ok := c.paths[id]; ok {
		return p, true
	}

	var chain []store.Entry
	seen := make(map[store.ObjectID]bool)
	for cur := id; ; {
		e, ok := c.byID[cur]
		if !ok || seen[cur] {
			return "", false
		}
		seen[cur] = true
		chain = append(chain, e)
		if e.Parent.IsZero() {
			break
		}
		cur = e.Parent
	}
	if chain[len(chain)-1].ID != RootID {
		return "", false
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	p := chainPath(chain)
	c.paths[id] = p
	return p, true
}

// Dir resolves the directory at an absolute path, walking on a miss.
func (c *EntriesCache) Dir(ctx context.Context, path string) (store.Entry, error) {
	key := fspath.ToDir(fspath.Normalize(path))
	if e, ok := c.dirs[key]; ok {
		return e, nil
	}

	res, err := c.fs.Walk(ctx, key, WalkOptions{})
	if err != nil {
		return store.Entry{}, err
	}
	if err := res.Err(); err != nil {
		return store.Entry{}, err
	}

	// every prefix of a successful walk is a directory
	for i, e := range res.Entries {
		c.byID[e.ID] = e
		if e.IsDir() {
			c.dirs[fspath.FromSegments(res.Segments[:i], true)] = e
		}
	}
	last := res.Last()
	if !last.IsDir() {
		return store.Entry{}, store.NewError(store.ErrNotADirectory, path)
	}
	return last, nil
}
