package badger

import (
	"bytes"
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/objfs/pkg/codec"
	"github.com/marmos91/objfs/pkg/store"
)

// EnsureEntryIndexes is a no-op: the children prefix is the unique index.
func (s *BadgerObjectStore) EnsureEntryIndexes(ctx context.Context) error {
	return ctx.Err()
}

// InsertEntries inserts entries in order, stopping at the first duplicate.
func (s *BadgerObjectStore) InsertEntries(ctx context.Context, entries []store.Entry) error {
	ops := make([]store.EntryOp, len(entries))
	for i, e := range entries {
		ops[i] = store.InsertEntryOp{Entry: e}
	}
	_, err := s.BulkWrite(ctx, ops)
	return err
}

// GetEntries returns the existing entries among ids.
func (s *BadgerObjectStore) GetEntries(ctx context.Context, ids []store.ObjectID) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]store.Entry, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			e, ok, err := getEntry(txn, id)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "get entries")
	}
	return out, nil
}

// Walk resolves names hop by hop inside one read transaction.
func (s *BadgerObjectStore) Walk(ctx context.Context, from store.ObjectID, names []string) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chain []store.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		cur, ok, err := getEntry(txn, from)
		if err != nil || !ok {
			return err
		}
		chain = make([]store.Entry, 0, len(names)+1)
		chain = append(chain, cur)
		for _, name := range names {
			childID, ok, err := getChildID(txn, cur.ID, name)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			cur, ok, err = getEntry(txn, childID)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			chain = append(chain, cur)
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "walk")
	}
	return chain, nil
}

// Children range-scans the children index of parent.
func (s *BadgerObjectStore) Children(ctx context.Context, parent store.ObjectID, q store.ChildrenQuery) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []store.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := keyChildPrefix(parent)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		start := prefix
		if q.AfterName != "" {
			start = keyChild(parent, q.AfterName)
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			name := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			if q.AfterName != "" && name <= q.AfterName {
				continue
			}
			childID, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			e, ok, err := getEntry(txn, store.ObjectID(childID))
			if err != nil {
				return err
			}
			if !ok || (q.Type != store.EntryAny && e.Type != q.Type) {
				continue
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "list children")
	}
	return out, nil
}

// ScanEntries pages over the entry keys, which sort by id.
func (s *BadgerObjectStore) ScanEntries(ctx context.Context, q store.ScanQuery) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []store.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixEntry)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		start := prefix
		if !q.AfterID.IsZero() {
			start = keyEntry(q.AfterID)
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			var e store.Entry
			if err := it.Item().Value(func(val []byte) error { return decodeEntry(val, &e) }); err != nil {
				return err
			}
			if e.ID <= q.AfterID {
				continue
			}
			if q.Type != store.EntryAny && e.Type != q.Type {
				continue
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "scan entries")
	}
	return out, nil
}

// Descendants walks the children index breadth first in one snapshot.
func (s *BadgerObjectStore) Descendants(ctx context.Context, id store.ObjectID, maxDepth int) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []store.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		frontier := []store.ObjectID{id}
		seen := map[store.ObjectID]bool{id: true}
		for depth := 0; len(frontier) > 0 && (maxDepth < 0 || depth <= maxDepth); depth++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			var next []store.ObjectID
			for _, parent := range frontier {
				children, err := childEntries(txn, parent)
				if err != nil {
					return err
				}
				for _, child := range children {
					if seen[child.ID] {
						continue
					}
					seen[child.ID] = true
					out = append(out, child)
					if child.IsDir() {
						next = append(next, child.ID)
					}
				}
			}
			frontier = next
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "descendants")
	}
	return out, nil
}

// Ancestors follows parent pointers up from id in one snapshot.
func (s *BadgerObjectStore) Ancestors(ctx context.Context, id store.ObjectID) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chain []store.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		seen := make(map[store.ObjectID]bool)
		cur, ok, err := getEntry(txn, id)
		for ok && err == nil && !seen[cur.ID] {
			seen[cur.ID] = true
			chain = append(chain, cur)
			if cur.IsRoot() {
				break
			}
			cur, ok, err = getEntry(txn, cur.Parent)
		}
		return err
	})
	if err != nil {
		return nil, store.WrapBackend(err, "ancestors")
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ============================================================================
// Bulk writes
// ============================================================================

// BulkWrite applies ops in order inside one transaction. When the batch
// outgrows a transaction it is committed and continued in a fresh one. On
// failure the operations before the failing one are committed.
func (s *BadgerObjectStore) BulkWrite(ctx context.Context, ops []store.EntryOp) (store.BulkResult, error) {
	var res store.BulkResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s.entryMu.Lock()
	defer s.entryMu.Unlock()

	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for i := 0; i < len(ops); i++ {
		if err := ctx.Err(); err != nil {
			if cerr := txn.Commit(); cerr != nil {
				return store.BulkResult{}, store.WrapBackend(cerr, "commit entries")
			}
			return res, &store.BulkWriteError{Index: i, Err: err}
		}

		r, err := applyOp(txn, ops[i])
		if errors.Is(err, badger.ErrTxnTooBig) {
			if cerr := txn.Commit(); cerr != nil {
				return store.BulkResult{}, store.WrapBackend(cerr, "commit entries")
			}
			txn = s.db.NewTransaction(true)
			r, err = applyOp(txn, ops[i])
		}
		res.Add(r)
		if err != nil {
			if cerr := txn.Commit(); cerr != nil {
				return store.BulkResult{}, store.WrapBackend(cerr, "commit entries")
			}
			return res, &store.BulkWriteError{Index: i, Err: store.WrapBackend(err, "apply entry op")}
		}
	}

	if err := txn.Commit(); err != nil {
		return store.BulkResult{}, store.WrapBackend(err, "commit entries")
	}
	return res, nil
}

// applyOp validates before it writes so a rejected op leaves txn unchanged.
func applyOp(txn *badger.Txn, op store.EntryOp) (store.BulkResult, error) {
	var res store.BulkResult

	switch op := op.(type) {
	case store.InsertEntryOp:
		e := op.Entry
		_, exists, err := getEntry(txn, e.ID)
		if err != nil {
			return res, err
		}
		if exists {
			return res, store.Errorf(store.ErrDuplicateKey, "", "duplicate key (_id=%s)", e.ID)
		}
		if err := checkSlot(txn, e.Parent, e.Name, e.ID); err != nil {
			return res, err
		}
		if err := putEntry(txn, e); err != nil {
			return res, err
		}
		res.Inserted++

	case store.UpsertEntryOp:
		e := op.Entry
		existing, exists, err := getEntry(txn, e.ID)
		if err != nil {
			return res, err
		}
		if exists && existing.Type != e.Type {
			return res, store.Errorf(store.ErrDuplicateKey, "", "duplicate key (_id=%s)", e.ID)
		}
		if exists && op.OnlyNew {
			res.Matched++
			return res, nil
		}
		if err := checkSlot(txn, e.Parent, e.Name, e.ID); err != nil {
			return res, err
		}
		if !exists {
			if err := putEntry(txn, e); err != nil {
				return res, err
			}
			res.Upserted++
			return res, nil
		}
		res.Matched++
		if existing.Parent != e.Parent || existing.Name != e.Name {
			res.Modified++
		}
		if err := moveEntry(txn, existing, e.Parent, e.Name, e.Utime); err != nil {
			return res, err
		}

	case store.UpdateEntryOp:
		existing, exists, err := getEntry(txn, op.ID)
		if err != nil || !exists {
			return res, err
		}
		if err := checkSlot(txn, op.Parent, op.Name, op.ID); err != nil {
			return res, err
		}
		res.Matched++
		if existing.Parent != op.Parent || existing.Name != op.Name {
			res.Modified++
		}
		if err := moveEntry(txn, existing, op.Parent, op.Name, op.Utime); err != nil {
			return res, err
		}

	case store.DeleteEntriesOp:
		for _, id := range op.IDs {
			e, exists, err := getEntry(txn, id)
			if err != nil {
				return res, err
			}
			if !exists || (op.Type != store.EntryAny && e.Type != op.Type) {
				continue
			}
			if err := removeSlot(txn, e); err != nil {
				return res, err
			}
			if err := txn.Delete(keyEntry(id)); err != nil {
				return res, err
			}
			res.Deleted++
		}
	}

	return res, nil
}

func moveEntry(txn *badger.Txn, e store.Entry, parent store.ObjectID, name string, utime time.Time) error {
	if err := removeSlot(txn, e); err != nil {
		return err
	}
	e.Parent, e.Name, e.Utime = parent, name, utime
	return putEntry(txn, e)
}

// ============================================================================
// Transaction helpers
// ============================================================================

func getEntry(txn *badger.Txn, id store.ObjectID) (store.Entry, bool, error) {
	var e store.Entry
	item, err := txn.Get(keyEntry(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	err = item.Value(func(val []byte) error { return decodeEntry(val, &e) })
	return e, err == nil, err
}

func decodeEntry(val []byte, e *store.Entry) error {
	return codec.Unmarshal(val, e)
}

func getChildID(txn *badger.Txn, parent store.ObjectID, name string) (store.ObjectID, bool, error) {
	item, err := txn.Get(keyChild(parent, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", false, err
	}
	return store.ObjectID(val), true, nil
}

func childEntries(txn *badger.Txn, parent store.ObjectID) ([]store.Entry, error) {
	prefix := keyChildPrefix(parent)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()

	var ids []store.ObjectID
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		ids = append(ids, store.ObjectID(val))
	}

	out := make([]store.Entry, 0, len(ids))
	for _, id := range ids {
		e, ok, err := getEntry(txn, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// checkSlot enforces the unique (parent, name) index.
func checkSlot(txn *badger.Txn, parent store.ObjectID, name string, id store.ObjectID) error {
	holder, taken, err := getChildID(txn, parent, name)
	if err != nil {
		return err
	}
	if taken && holder != id {
		return store.NewDuplicateKeyError(parent, name)
	}
	return nil
}

func putEntry(txn *badger.Txn, e store.Entry) error {
	if err := setDoc(txn, keyEntry(e.ID), e); err != nil {
		return err
	}
	return txn.Set(keyChild(e.Parent, e.Name), []byte(e.ID))
}

func removeSlot(txn *badger.Txn, e store.Entry) error {
	holder, taken, err := getChildID(txn, e.Parent, e.Name)
	if err != nil || !taken || holder != e.ID {
		return err
	}
	return txn.Delete(keyChild(e.Parent, e.Name))
}
