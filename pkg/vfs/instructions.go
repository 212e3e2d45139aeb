package vfs

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
)

// Instruction is a high-level write on the tree. It compiles to one or more
// single-document edge operations and translates the store's errors on
// those operations into filesystem errors.
//
// The set of instructions is closed: SetObjPath and Rename.
type Instruction interface {
	compile(ctx context.Context, cache *EntriesCache, now time.Time) ([]store.EntryOp, error)
	translate(err error) error
}

// SetObjPath places the object ObjID at Path.
//
// A Path ending with a separator names a directory; the object is placed in
// it under its id. With OnlyNew an existing placement is left untouched,
// which makes repeated placement of new objects idempotent. Without it the
// object is moved to Path.
type SetObjPath struct {
	ObjID   store.ObjectID
	Path    string
	OnlyNew bool
}

// Target returns the path the object ends up at.
func (s SetObjPath) Target() string {
	if fspath.IsDirPath(s.Path) {
		return s.Path + string(s.ObjID)
	}
	return s.Path
}

func (s SetObjPath) compile(ctx context.Context, cache *EntriesCache, now time.Time) ([]store.EntryOp, error) {
	target := s.Target()
	if !fspath.IsAbs(target) {
		return nil, store.NewInvalidArgumentError(target, "path is not absolute")
	}
	if s.ObjID == RootID {
		return nil, store.NewInvalidArgumentError(target, "cannot place the root")
	}

	dir, name := fspath.Split(fspath.Normalize(target))
	if err := fspath.ValidName(name); err != nil {
		return nil, store.WithPath(err, target)
	}
	parent, err := cache.Dir(ctx, dir)
	if err != nil {
		return nil, store.WithPath(err, target)
	}

	return []store.EntryOp{store.UpsertEntryOp{
		Entry: store.Entry{
			ID:     s.ObjID,
			Name:   name,
			Parent: parent.ID,
			Type:   store.EntryObj,
			Ctime:  now,
			Utime:  now,
		},
		OnlyNew: s.OnlyNew,
	}}, nil
}

func (s SetObjPath) translate(err error) error {
	if store.IsCode(err, store.ErrDuplicateKey) {
		return &store.StoreError{Code: store.ErrAlreadyExists, Message: store.ErrAlreadyExists.String(), Path: s.Target(), Err: err}
	}
	return store.WithPath(err, s.Target())
}

// Rename moves the entry SrcID to Dest. A Dest ending with a separator
// names a directory; the entry keeps its name inside it.
type Rename struct {
	SrcID store.ObjectID
	Dest  string
}

func (r Rename) compile(ctx context.Context, cache *EntriesCache, now time.Time) ([]store.EntryOp, error) {
	if !fspath.IsAbs(r.Dest) {
		return nil, store.NewInvalidArgumentError(r.Dest, "path is not absolute")
	}
	if r.SrcID == RootID {
		return nil, store.NewInvalidArgumentError(r.Dest, "cannot move the root")
	}

	src, err := cache.Entry(ctx, r.SrcID)
	if err != nil {
		return nil, err
	}

	dest := r.Dest
	if fspath.IsDirPath(dest) {
		dest += src.Name
	}
	dir, name := fspath.Split(fspath.Normalize(dest))
	if err := fspath.ValidName(name); err != nil {
		return nil, store.WithPath(err, dest)
	}
	parent, err := cache.Dir(ctx, dir)
	if err != nil {
		return nil, store.WithPath(err, dest)
	}

	if src.IsDir() {
		chain, err := cache.fs.store.Ancestors(ctx, parent.ID)
		if err != nil {
			return nil, store.WithPath(err, dest)
		}
		for _, a := range chain {
			if a.ID == src.ID {
				return nil, store.NewInvalidArgumentError(dest, "cannot move a directory into itself")
			}
		}
	}

	return []store.EntryOp{store.UpdateEntryOp{
		ID:     src.ID,
		Parent: parent.ID,
		Name:   name,
		Utime:  now,
	}}, nil
}

func (r Rename) translate(err error) error {
	if store.IsCode(err, store.ErrDuplicateKey) {
		return &store.StoreError{Code: store.ErrAlreadyExists, Message: store.ErrAlreadyExists.String(), Path: r.Dest, Err: err}
	}
	return store.WithPath(err, r.Dest)
}

// Execute compiles instrs with one shared EntriesCache and issues all their
// operations as a single ordered bulk write.
//
// The batch is not atomic: when an operation fails the earlier ones have
// taken effect. The failure is translated by the instruction that produced
// the failing operation.
func (fs *FS) Execute(ctx context.Context, instrs ...Instruction) (res store.BulkResult, err error) {
	defer fs.observe("execute", time.Now(), &err)

	if len(instrs) == 0 {
		return res, nil
	}

	cache := NewEntriesCache(fs)
	now := time.Now().UTC()

	var (
		ops   []store.EntryOp
		owner []int
	)
	for i, in := range instrs {
		compiled, err := in.compile(ctx, cache, now)
		if err != nil {
			return res, err
		}
		for range compiled {
			owner = append(owner, i)
		}
		ops = append(ops, compiled...)
	}

	res, err = fs.bulkWrite(ctx, ops)
	if err == nil {
		return res, nil
	}

	var bwe *store.BulkWriteError
	if errors.As(err, &bwe) && bwe.Index >= 0 && bwe.Index < len(owner) {
		return res, instrs[owner[bwe.Index]].translate(bwe.Err)
	}
	return res, err
}
