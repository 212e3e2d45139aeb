package memory

import (
	"context"
	"sort"

	"github.com/marmos91/objfs/pkg/store"
)

// EnsureEntryIndexes is a no-op: the children map is the unique index.
func (s *MemoryObjectStore) EnsureEntryIndexes(ctx context.Context) error {
	return ctx.Err()
}

// InsertEntries inserts entries in order, stopping at the first duplicate.
func (s *MemoryObjectStore) InsertEntries(ctx context.Context, entries []store.Entry) error {
	ops := make([]store.EntryOp, len(entries))
	for i, e := range entries {
		ops[i] = store.InsertEntryOp{Entry: e}
	}
	_, err := s.BulkWrite(ctx, ops)
	return err
}

// GetEntries returns the existing entries among ids.
func (s *MemoryObjectStore) GetEntries(ctx context.Context, ids []store.ObjectID) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Walk resolves names hop by hop under one read lock.
func (s *MemoryObjectStore) Walk(ctx context.Context, from store.ObjectID, names []string) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.entries[from]
	if !ok {
		return nil, nil
	}
	chain := make([]store.Entry, 0, len(names)+1)
	chain = append(chain, cur)
	for _, name := range names {
		childID, ok := s.children[cur.ID][name]
		if !ok {
			break
		}
		cur = s.entries[childID]
		chain = append(chain, cur)
	}
	return chain, nil
}

// Children lists children of parent ordered by name.
func (s *MemoryObjectStore) Children(ctx context.Context, parent store.ObjectID, q store.ChildrenQuery) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := s.children[parent]
	names := make([]string, 0, len(slots))
	for name := range slots {
		if name > q.AfterName {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []store.Entry
	for _, name := range names {
		e := s.entries[slots[name]]
		if q.Type != store.EntryAny && e.Type != q.Type {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// ScanEntries pages over all entries ordered by id.
func (s *MemoryObjectStore) ScanEntries(ctx context.Context, q store.ScanQuery) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]store.ObjectID, 0, len(s.entries))
	for id, e := range s.entries {
		if id > q.AfterID && (q.Type == store.EntryAny || e.Type == q.Type) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}

	out := make([]store.Entry, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id]
	}
	return out, nil
}

// Descendants walks the children maps breadth first.
func (s *MemoryObjectStore) Descendants(ctx context.Context, id store.ObjectID, maxDepth int) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Entry
	frontier := []store.ObjectID{id}
	seen := map[store.ObjectID]bool{id: true}
	for depth := 0; len(frontier) > 0 && (maxDepth < 0 || depth <= maxDepth); depth++ {
		var next []store.ObjectID
		for _, parent := range frontier {
			for _, childID := range s.children[parent] {
				if seen[childID] {
					continue
				}
				seen[childID] = true
				child := s.entries[childID]
				out = append(out, child)
				if child.IsDir() {
					next = append(next, childID)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// Ancestors follows parent pointers up from id.
func (s *MemoryObjectStore) Ancestors(ctx context.Context, id store.ObjectID) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []store.Entry
	seen := make(map[store.ObjectID]bool)
	cur, ok := s.entries[id]
	for ok && !seen[cur.ID] {
		seen[cur.ID] = true
		chain = append(chain, cur)
		if cur.IsRoot() {
			break
		}
		cur, ok = s.entries[cur.Parent]
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// BulkWrite applies ops in order under one write lock.
func (s *MemoryObjectStore) BulkWrite(ctx context.Context, ops []store.EntryOp) (store.BulkResult, error) {
	var res store.BulkResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, &store.BulkWriteError{Index: i, Err: err}
		}
		r, err := s.applyLocked(op)
		res.Add(r)
		if err != nil {
			return res, &store.BulkWriteError{Index: i, Err: err}
		}
	}
	return res, nil
}

func (s *MemoryObjectStore) applyLocked(op store.EntryOp) (store.BulkResult, error) {
	var res store.BulkResult

	switch op := op.(type) {
	case store.InsertEntryOp:
		e := op.Entry
		if _, exists := s.entries[e.ID]; exists {
			return res, store.Errorf(store.ErrDuplicateKey, "", "duplicate key (_id=%s)", e.ID)
		}
		if err := s.checkSlotLocked(e.Parent, e.Name, e.ID); err != nil {
			return res, err
		}
		s.putLocked(e)
		res.Inserted++

	case store.UpsertEntryOp:
		e := op.Entry
		existing, exists := s.entries[e.ID]
		if exists && existing.Type != e.Type {
			return res, store.Errorf(store.ErrDuplicateKey, "", "duplicate key (_id=%s)", e.ID)
		}
		if exists && op.OnlyNew {
			res.Matched++
			return res, nil
		}
		if err := s.checkSlotLocked(e.Parent, e.Name, e.ID); err != nil {
			return res, err
		}
		if exists {
			res.Matched++
			if existing.Parent != e.Parent || existing.Name != e.Name {
				res.Modified++
			}
			s.removeSlotLocked(existing)
			existing.Parent, existing.Name, existing.Utime = e.Parent, e.Name, e.Utime
			s.putLocked(existing)
			return res, nil
		}
		s.putLocked(e)
		res.Upserted++

	case store.UpdateEntryOp:
		existing, exists := s.entries[op.ID]
		if !exists {
			return res, nil
		}
		if err := s.checkSlotLocked(op.Parent, op.Name, op.ID); err != nil {
			return res, err
		}
		res.Matched++
		if existing.Parent != op.Parent || existing.Name != op.Name {
			res.Modified++
		}
		s.removeSlotLocked(existing)
		existing.Parent, existing.Name, existing.Utime = op.Parent, op.Name, op.Utime
		s.putLocked(existing)

	case store.DeleteEntriesOp:
		for _, id := range op.IDs {
			e, exists := s.entries[id]
			if !exists || (op.Type != store.EntryAny && e.Type != op.Type) {
				continue
			}
			s.removeSlotLocked(e)
			delete(s.entries, id)
			res.Deleted++
		}
	}

	return res, nil
}

// checkSlotLocked enforces the unique (parent, name) index.
func (s *MemoryObjectStore) checkSlotLocked(parent store.ObjectID, name string, id store.ObjectID) error {
	if holder, taken := s.children[parent][name]; taken && holder != id {
		return store.NewDuplicateKeyError(parent, name)
	}
	return nil
}

func (s *MemoryObjectStore) putLocked(e store.Entry) {
	s.entries[e.ID] = e
	slots, ok := s.children[e.Parent]
	if !ok {
		slots = make(map[string]store.ObjectID)
		s.children[e.Parent] = slots
	}
	slots[e.Name] = e.ID
}

func (s *MemoryObjectStore) removeSlotLocked(e store.Entry) {
	slots := s.children[e.Parent]
	if slots[e.Name] == e.ID {
		delete(slots, e.Name)
	}
	if len(slots) == 0 {
		delete(s.children, e.Parent)
	}
}
