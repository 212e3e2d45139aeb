package store

import "time"

// EntryOp is one single-document write in an ordered entry bulk write.
//
// The set of operations is closed: InsertEntryOp, UpsertEntryOp,
// UpdateEntryOp and DeleteEntriesOp.
type EntryOp interface {
	entryOp()
}

// InsertEntryOp inserts a new edge. It fails with ErrDuplicateKey when the id
// or the (parent, name) pair is taken.
type InsertEntryOp struct {
	Entry Entry
}

// UpsertEntryOp places an object entry keyed by its id.
//
// With OnlyNew the whole entry is written on insert and an existing entry is
// left untouched ($setOnInsert). Without it, an existing entry gets Parent,
// Name and Utime replaced ($set) while Type and Ctime are only written on
// insert.
type UpsertEntryOp struct {
	Entry   Entry
	OnlyNew bool
}

// UpdateEntryOp moves an existing entry. A missing id matches nothing and is
// not an error.
type UpdateEntryOp struct {
	ID     ObjectID
	Parent ObjectID
	Name   string
	Utime  time.Time
}

// DeleteEntriesOp deletes the listed entries, restricted to Type unless it is
// EntryAny.
type DeleteEntriesOp struct {
	IDs  []ObjectID
	Type EntryType
}

func (InsertEntryOp) entryOp()   {}
func (UpsertEntryOp) entryOp()   {}
func (UpdateEntryOp) entryOp()   {}
func (DeleteEntriesOp) entryOp() {}

// BulkResult counts the effect of an entry bulk write.
type BulkResult struct {
	Inserted int
	Upserted int
	Matched  int
	Modified int
	Deleted  int
}

// Add accumulates o into r.
func (r *BulkResult) Add(o BulkResult) {
	r.Inserted += o.Inserted
	r.Upserted += o.Upserted
	r.Matched += o.Matched
	r.Modified += o.Modified
	r.Deleted += o.Deleted
}
