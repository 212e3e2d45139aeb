package memory

import (
	"context"
	"sort"

	"github.com/marmos91/objfs/pkg/store"
)

// EnsureMetaIndexes records the indexed keys. Lookups scan regardless.
func (s *MemoryObjectStore) EnsureMetaIndexes(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.metaIndexes[k] = struct{}{}
	}
	return nil
}

// SetMeta replaces the metadata of id.
func (s *MemoryObjectStore) SetMeta(ctx context.Context, id store.ObjectID, meta store.Meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta == nil {
		delete(s.meta, id)
		return nil
	}
	s.meta[id] = meta.Clone()
	return nil
}

// UpdateMeta merges meta into the metadata of id.
func (s *MemoryObjectStore) UpdateMeta(ctx context.Context, id store.ObjectID, meta store.Meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.meta[id].Clone()
	if cur == nil {
		cur = make(store.Meta, len(meta))
	}
	for k, v := range meta {
		cur[k] = v
	}
	s.meta[id] = cur
	return nil
}

// UnsetMeta removes keys from the metadata of ids.
func (s *MemoryObjectStore) UnsetMeta(ctx context.Context, ids []store.ObjectID, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		cur, ok := s.meta[id]
		if !ok {
			continue
		}
		cur = cur.Clone()
		for _, k := range keys {
			delete(cur, k)
		}
		s.meta[id] = cur
	}
	return nil
}

// GetMeta returns copies of the metadata of ids.
func (s *MemoryObjectStore) GetMeta(ctx context.Context, ids []store.ObjectID) (map[store.ObjectID]store.Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[store.ObjectID]store.Meta, len(ids))
	for _, id := range ids {
		if m, ok := s.meta[id]; ok {
			out[id] = m.Clone()
		}
	}
	return out, nil
}

// FindMeta returns the ids whose metadata matches filter.
func (s *MemoryObjectStore) FindMeta(ctx context.Context, filter store.Filter, ids []store.ObjectID) ([]store.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := ids
	if candidates == nil {
		candidates = make([]store.ObjectID, 0, len(s.meta))
		for id := range s.meta {
			candidates = append(candidates, id)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	}

	var out []store.ObjectID
	for _, id := range candidates {
		m, ok := s.meta[id]
		if !ok {
			m = store.Meta{}
		}
		match, err := store.Match(m, filter)
		if err != nil {
			return nil, store.NewInvalidArgumentError("", err.Error())
		}
		if match {
			out = append(out, id)
		}
	}
	return out, nil
}

// DistinctMeta returns the distinct values of key among matching documents.
func (s *MemoryObjectStore) DistinctMeta(ctx context.Context, key string, filter store.Filter) ([]any, error) {
	ids, err := s.FindMeta(ctx, filter, nil)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := make([]store.Meta, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, s.meta[id])
	}
	s.mu.RUnlock()

	return store.Distinct(docs, key), nil
}
