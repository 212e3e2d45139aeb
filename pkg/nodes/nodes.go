// Package nodes provides in-memory views over the filesystem tree, as
// produced by listing and find.
//
// Nodes snapshot the store at the time they were expanded and are never
// kept in sync with later writes. Records and metadata of object nodes are
// fetched on first use and then cached on the node.
package nodes

import (
	"context"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// Node is a view over one entry, or over an aggregate of entries.
type Node interface {
	// Path is the absolute path of the node. Directories carry a trailing
	// separator; results nodes have none.
	Path() string

	// Name is the last path segment.
	Name() string

	// Parent returns the node this one was expanded from, if any.
	Parent() Node

	// ContainsPath reports whether a node at path p sits below this one.
	ContainsPath(p string) bool

	// ContainsID reports whether a node with id sits below this one.
	ContainsID(id store.ObjectID) bool

	// Copy returns a detached deep copy.
	Copy() Node

	setParent(Node)
}

// FromEntry wraps a vfs entry in the node matching its type. Records and
// metadata already attached to e are kept.
func FromEntry(fs *vfs.FS, e *vfs.Entry) Node {
	if e.IsDir() {
		return NewDirectoryNode(fs, e)
	}
	return NewObjectNode(fs, e)
}

// ============================================================================
// ObjectNode
// ============================================================================

// ObjectNode is the view of an object entry.
type ObjectNode struct {
	fs     *vfs.FS
	parent Node

	// EntryID is the id of the edge, which is also the object id.
	EntryID store.ObjectID

	// AbsPath is the absolute path of the entry.
	AbsPath string

	// Depth is the depth the entry was found at during a traversal.
	Depth int

	record     *store.Record
	meta       store.Meta
	metaLoaded bool
}

// NewObjectNode returns the node of an object entry.
func NewObjectNode(fs *vfs.FS, e *vfs.Entry) *ObjectNode {
	n := &ObjectNode{
		fs:      fs,
		EntryID: e.ID,
		AbsPath: e.Path,
		Depth:   e.Depth,
		record:  e.Record,
	}
	if e.Meta != nil {
		n.meta, n.metaLoaded = e.Meta, true
	}
	return n
}

func (n *ObjectNode) Path() string       { return n.AbsPath }
func (n *ObjectNode) Parent() Node       { return n.parent }
func (n *ObjectNode) setParent(p Node)   { n.parent = p }
func (n *ObjectNode) Name() string       { return fspath.Base(n.AbsPath) }
func (n *ObjectNode) ID() store.ObjectID { return n.EntryID }

// ContainsPath is always false: objects contain nothing.
func (n *ObjectNode) ContainsPath(string) bool { return false }

// ContainsID is always false: objects contain nothing.
func (n *ObjectNode) ContainsID(store.ObjectID) bool { return false }

// Copy returns a detached copy sharing the cached record and metadata.
func (n *ObjectNode) Copy() Node {
	c := *n
	c.parent = nil
	c.meta = n.meta.Clone()
	return &c
}

// Record returns the latest record of the object, fetching it once. A
// vanished object yields ErrNotFound.
func (n *ObjectNode) Record(ctx context.Context) (*store.Record, error) {
	if n.record != nil {
		return n.record, nil
	}
	recs, err := n.fs.Store().Records(ctx, store.RecordQuery{
		IDs:   []store.ObjectID{n.EntryID},
		State: store.StateAll,
	})
	if err != nil {
		return nil, store.WithPath(err, n.AbsPath)
	}
	if len(recs) == 0 {
		return nil, store.NewNotFoundError(n.AbsPath)
	}
	n.record = &recs[0]
	return n.record, nil
}

// Meta returns the metadata of the object, fetching it once. Objects
// without metadata yield an empty document.
func (n *ObjectNode) Meta(ctx context.Context) (store.Meta, error) {
	if n.metaLoaded {
		return n.meta, nil
	}
	metas, err := n.fs.Store().GetMeta(ctx, []store.ObjectID{n.EntryID})
	if err != nil {
		return nil, store.WithPath(err, n.AbsPath)
	}
	n.meta = metas[n.EntryID]
	if n.meta == nil {
		n.meta = store.Meta{}
	}
	n.metaLoaded = true
	return n.meta, nil
}

// Load returns the live object. The payload is not cached on the node.
func (n *ObjectNode) Load(ctx context.Context) (*store.Object, error) {
	obj, err := n.fs.Store().Load(ctx, n.EntryID)
	if err != nil {
		return nil, store.WithPath(err, n.AbsPath)
	}
	return obj, nil
}

// Loaded reports whether the live object is resident in the store's cache.
func (n *ObjectNode) Loaded() bool {
	return n.fs.Store().IsLoaded(n.EntryID)
}

// ============================================================================
// DirectoryNode
// ============================================================================

// DirectoryNode is the view of a directory. Its children are filled by
// Expand.
type DirectoryNode struct {
	fs     *vfs.FS
	parent Node

	// EntryID is the id of the directory edge.
	EntryID store.ObjectID

	// AbsPath is the absolute path, with a trailing separator.
	AbsPath string

	// Depth is the depth the entry was found at during a traversal.
	Depth int

	// Children holds the nodes found by the last Expand.
	Children []Node

	expanded bool
}

// NewDirectoryNode returns the unexpanded node of a directory entry.
func NewDirectoryNode(fs *vfs.FS, e *vfs.Entry) *DirectoryNode {
	p := e.Path
	if p == "" && e.ID == vfs.RootID {
		p = fspath.Root
	}
	return &DirectoryNode{
		fs:      fs,
		EntryID: e.ID,
		AbsPath: fspath.ToDir(p),
		Depth:   e.Depth,
	}
}

// Open returns the unexpanded node of the directory at an absolute path.
func Open(ctx context.Context, fs *vfs.FS, path string) (*DirectoryNode, error) {
	e, err := fs.LookupDir(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewDirectoryNode(fs, e), nil
}

func (n *DirectoryNode) Path() string       { return n.AbsPath }
func (n *DirectoryNode) Parent() Node       { return n.parent }
func (n *DirectoryNode) setParent(p Node)   { n.parent = p }
func (n *DirectoryNode) ID() store.ObjectID { return n.EntryID }

func (n *DirectoryNode) Name() string {
	if n.EntryID == vfs.RootID {
		return fspath.Root
	}
	return fspath.Base(n.AbsPath)
}

// Expanded reports whether Expand has filled the children.
func (n *DirectoryNode) Expanded() bool { return n.expanded }

// Expand lists the children of the directory and expands directory
// children with depth-1. Depth 0 is a no-op; a negative depth expands the
// whole subtree. With populateObjects the records of all object children
// of one directory are fetched in a single round trip.
func (n *DirectoryNode) Expand(ctx context.Context, depth int, populateObjects bool) error {
	if depth == 0 {
		return nil
	}

	var (
		children []Node
		objs     []*ObjectNode
	)
	q := vfs.ChildQuery{DirPath: n.AbsPath}
	for e, err := range n.fs.IterChildren(ctx, n.EntryID, q) {
		if err != nil {
			return store.WithPath(err, n.AbsPath)
		}
		e.Depth = n.Depth + 1
		child := FromEntry(n.fs, e)
		child.setParent(n)
		children = append(children, child)
		if o, ok := child.(*ObjectNode); ok {
			objs = append(objs, o)
		}
	}
	n.Children = children
	n.expanded = true

	if populateObjects && len(objs) > 0 {
		if err := populate(ctx, n.fs, objs); err != nil {
			return store.WithPath(err, n.AbsPath)
		}
	}

	for _, c := range children {
		if d, ok := c.(*DirectoryNode); ok {
			if err := d.Expand(ctx, depth-1, populateObjects); err != nil {
				return err
			}
		}
	}
	return nil
}

// populate attaches records to object nodes with one catalog query.
func populate(ctx context.Context, fs *vfs.FS, objs []*ObjectNode) error {
	ids := make([]store.ObjectID, len(objs))
	for i, o := range objs {
		ids[i] = o.EntryID
	}
	recs, err := fs.Store().Records(ctx, store.RecordQuery{IDs: ids, State: store.StateAll})
	if err != nil {
		return err
	}
	byID := make(map[store.ObjectID]*store.Record, len(recs))
	for i := range recs {
		byID[recs[i].ObjID] = &recs[i]
	}
	for _, o := range objs {
		if r, ok := byID[o.EntryID]; ok {
			o.record = r
		}
	}
	return nil
}

// ContainsPath reports whether p names a node in the expanded subtree.
func (n *DirectoryNode) ContainsPath(p string) bool {
	return containsPath(n.Children, p)
}

// ContainsID reports whether id names a node in the expanded subtree.
func (n *DirectoryNode) ContainsID(id store.ObjectID) bool {
	return containsID(n.Children, id)
}

// Copy returns a detached copy with deep-copied children.
func (n *DirectoryNode) Copy() Node {
	c := *n
	c.parent = nil
	c.Children = copyChildren(&c, n.Children)
	return &c
}

// Objects returns the object nodes of the expanded subtree in pre-order.
func (n *DirectoryNode) Objects() []*ObjectNode {
	return objects(n.Children, nil)
}

// ============================================================================
// ResultsNode
// ============================================================================

// ViewMode selects how a results node is rendered.
type ViewMode string

const (
	// ViewList renders one row per node.
	ViewList ViewMode = "list"

	// ViewTree renders nodes indented under their directories.
	ViewTree ViewMode = "tree"
)

// ResultsNode aggregates nodes that need not share a parent, such as the
// matches of a search.
type ResultsNode struct {
	parent Node

	// Children are the aggregated nodes.
	Children []Node

	// ViewMode is the rendering hint.
	ViewMode ViewMode

	// Show lists the record or metadata fields to render per row.
	Show []string
}

// NewResultsNode returns an empty list-mode results node.
func NewResultsNode() *ResultsNode {
	return &ResultsNode{ViewMode: ViewList}
}

func (r *ResultsNode) Path() string     { return "" }
func (r *ResultsNode) Name() string     { return "" }
func (r *ResultsNode) Parent() Node     { return r.parent }
func (r *ResultsNode) setParent(p Node) { r.parent = p }

// Append adds nodes, attaching them to r.
func (r *ResultsNode) Append(nodes ...Node) {
	for _, n := range nodes {
		n.setParent(r)
		r.Children = append(r.Children, n)
	}
}

// Len returns the number of aggregated nodes.
func (r *ResultsNode) Len() int { return len(r.Children) }

// Paths returns the paths of the aggregated nodes in order.
func (r *ResultsNode) Paths() []string {
	out := make([]string, len(r.Children))
	for i, c := range r.Children {
		out[i] = c.Path()
	}
	return out
}

// Objects returns the object nodes among the results, including those in
// expanded directory results.
func (r *ResultsNode) Objects() []*ObjectNode {
	return objects(r.Children, nil)
}

func (r *ResultsNode) ContainsPath(p string) bool {
	return containsPath(r.Children, p)
}

func (r *ResultsNode) ContainsID(id store.ObjectID) bool {
	return containsID(r.Children, id)
}

// Copy returns a detached copy with deep-copied children.
func (r *ResultsNode) Copy() Node {
	c := &ResultsNode{ViewMode: r.ViewMode, Show: append([]string(nil), r.Show...)}
	c.Children = copyChildren(c, r.Children)
	return c
}

// ============================================================================
// Helpers
// ============================================================================

type identified interface {
	ID() store.ObjectID
}

func containsPath(children []Node, p string) bool {
	p = fspath.Normalize(p)
	for _, c := range children {
		if c.Path() == p || (fspath.IsDirPath(c.Path()) && c.Path() == fspath.ToDir(p)) {
			return true
		}
		if c.ContainsPath(p) {
			return true
		}
	}
	return false
}

func containsID(children []Node, id store.ObjectID) bool {
	for _, c := range children {
		if n, ok := c.(identified); ok && n.ID() == id {
			return true
		}
		if c.ContainsID(id) {
			return true
		}
	}
	return false
}

func copyChildren(parent Node, children []Node) []Node {
	if children == nil {
		return nil
	}
	out := make([]Node, len(children))
	for i, c := range children {
		cc := c.Copy()
		cc.setParent(parent)
		out[i] = cc
	}
	return out
}

func objects(children []Node, out []*ObjectNode) []*ObjectNode {
	for _, c := range children {
		switch n := c.(type) {
		case *ObjectNode:
			out = append(out, n)
		case *DirectoryNode:
			out = objects(n.Children, out)
		case *ResultsNode:
			out = objects(n.Children, out)
		}
	}
	return out
}
