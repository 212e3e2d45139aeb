package badger

import (
	"bytes"
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/objfs/pkg/codec"
	"github.com/marmos91/objfs/pkg/store"
)

// EnsureMetaIndexes records the indexed keys. Lookups scan regardless.
func (s *BadgerObjectStore) EnsureMetaIndexes(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Set(keyMetaIndex(k), nil); err != nil {
				return err
			}
		}
		return nil
	})
	return store.WrapBackend(err, "ensure meta indexes")
}

// SetMeta replaces the metadata of id. A nil meta removes it.
func (s *BadgerObjectStore) SetMeta(ctx context.Context, id store.ObjectID, meta store.Meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if meta == nil {
			return txn.Delete(keyMeta(id))
		}
		return setDoc(txn, keyMeta(id), meta)
	})
	return store.WrapBackend(err, "set meta")
}

// UpdateMeta merges meta into the metadata of id.
func (s *BadgerObjectStore) UpdateMeta(ctx context.Context, id store.ObjectID, meta store.Meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.updateMeta(id, func(cur store.Meta) store.Meta {
		if cur == nil {
			cur = make(store.Meta, len(meta))
		}
		for k, v := range meta {
			cur[k] = v
		}
		return cur
	})
	return store.WrapBackend(err, "update meta")
}

// UnsetMeta removes keys from the metadata of ids.
func (s *BadgerObjectStore) UnsetMeta(ctx context.Context, ids []store.ObjectID, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		err := s.updateMeta(id, func(cur store.Meta) store.Meta {
			if cur == nil {
				return nil
			}
			for _, k := range keys {
				delete(cur, k)
			}
			return cur
		})
		if err != nil {
			return store.WrapBackend(err, "unset meta")
		}
	}
	return nil
}

// updateMeta applies fn to the stored document of id. A nil result leaves
// the key untouched.
func (s *BadgerObjectStore) updateMeta(id store.ObjectID, fn func(store.Meta) store.Meta) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var cur store.Meta
		if _, err := getDoc(txn, keyMeta(id), &cur); err != nil {
			return err
		}
		next := fn(cur)
		if next == nil {
			return nil
		}
		return setDoc(txn, keyMeta(id), next)
	})
}

// GetMeta returns the metadata of ids that have any.
func (s *BadgerObjectStore) GetMeta(ctx context.Context, ids []store.ObjectID) (map[store.ObjectID]store.Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[store.ObjectID]store.Meta, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var m store.Meta
			ok, err := getDoc(txn, keyMeta(id), &m)
			if err != nil {
				return err
			}
			if ok {
				out[id] = m
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "get meta")
	}
	return out, nil
}

// FindMeta returns the ids whose metadata matches filter.
func (s *BadgerObjectStore) FindMeta(ctx context.Context, filter store.Filter, ids []store.ObjectID) ([]store.ObjectID, error) {
	docs, order, err := s.metaDocs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []store.ObjectID
	for _, id := range order {
		m := docs[id]
		if m == nil {
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
func (s *BadgerObjectStore) DistinctMeta(ctx context.Context, key string, filter store.Filter) ([]any, error) {
	docs, order, err := s.metaDocs(ctx, nil)
	if err != nil {
		return nil, err
	}

	matched := make([]store.Meta, 0, len(order))
	for _, id := range order {
		ok, err := store.Match(docs[id], filter)
		if err != nil {
			return nil, store.NewInvalidArgumentError("", err.Error())
		}
		if ok {
			matched = append(matched, docs[id])
		}
	}
	return store.Distinct(matched, key), nil
}

// metaDocs loads the documents of ids, or every document when ids is nil.
// order lists the candidate ids in the order they should be reported.
func (s *BadgerObjectStore) metaDocs(ctx context.Context, ids []store.ObjectID) (map[store.ObjectID]store.Meta, []store.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if ids != nil {
		docs, err := s.GetMeta(ctx, ids)
		return docs, ids, err
	}

	docs := make(map[store.ObjectID]store.Meta)
	var order []store.ObjectID
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixMeta)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			id := store.ObjectID(bytes.TrimPrefix(it.Item().Key(), prefix))
			var m store.Meta
			if err := it.Item().Value(func(val []byte) error { return codec.Unmarshal(val, &m) }); err != nil {
				return err
			}
			docs[id] = m
			order = append(order, id)
		}
		return nil
	})
	if err != nil {
		return nil, nil, store.WrapBackend(err, "scan meta")
	}
	return docs, order, nil
}
