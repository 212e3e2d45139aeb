package vfs

import (
	"time"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
)

// RootID is the reserved id of the root directory.
const RootID store.ObjectID = "00000000-0000-0000-0000-000000000000"

// RootEntry returns the root edge as inserted by the schema migration.
func RootEntry(now time.Time) store.Entry {
	return store.Entry{
		ID:    RootID,
		Name:  fspath.Root,
		Type:  store.EntryDir,
		Ctime: now,
		Utime: now,
	}
}

// Entry is an edge enriched with the fields derived at read time.
type Entry struct {
	store.Entry

	// Record is the latest record of an object entry, when requested.
	Record *store.Record

	// Meta is the metadata document of an object entry, when requested.
	Meta store.Meta

	// Depth is the distance below the directory a traversal started from;
	// immediate children are at depth 0.
	Depth int

	// Path is the absolute path of the entry. Directories carry a trailing
	// separator. Empty when the traversal was not given a base path.
	Path string

	// PathEntries is the chain from the root to the entry, set by Walk.
	PathEntries []store.Entry
}

// Stime returns the snapshot time of the record, or the edge utime for
// directories and entries without a record.
func (e *Entry) Stime() time.Time {
	if e.Record != nil {
		return e.Record.SnapshotTime
	}
	return e.Utime
}

// Version returns the record version, or -1 without a record.
func (e *Entry) Version() int {
	if e.Record != nil {
		return e.Record.Version
	}
	return -1
}

// TypeID returns the record type id, or "" without a record.
func (e *Entry) TypeID() string {
	if e.Record != nil {
		return e.Record.TypeID
	}
	return ""
}

// childPath joins a directory path and a child name, marking directories.
func childPath(dir string, e *store.Entry) string {
	if dir == "" {
		return ""
	}
	p := fspath.ToDir(dir) + e.Name
	if e.IsDir() {
		p += fspath.Separator
	}
	return p
}

// chainPath renders a root-first chain of edges as an absolute path.
func chainPath(chain []store.Entry) string {
	if len(chain) == 0 {
		return ""
	}
	names := make([]string, 0, len(chain)-1)
	for _, e := range chain[1:] {
		names = append(names, e.Name)
	}
	return fspath.FromSegments(names, chain[len(chain)-1].IsDir())
}
