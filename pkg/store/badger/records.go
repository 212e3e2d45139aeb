package badger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/objfs/pkg/codec"
	"github.com/marmos91/objfs/pkg/content"
	"github.com/marmos91/objfs/pkg/store"
)

// Records returns the latest record of each selected object.
func (s *BadgerObjectStore) Records(ctx context.Context, q store.RecordQuery) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}

	state := q.State
	if state == "" {
		state = store.StateLive
	}

	var latest []store.Record
	err := s.db.View(func(txn *badger.Txn) error {
		if q.IDs != nil {
			for _, id := range q.IDs {
				h, err := history(txn, id)
				if err != nil {
					return err
				}
				if len(h) > 0 {
					latest = append(latest, h[len(h)-1])
				}
			}
			return nil
		}

		var err error
		latest, err = latestRecords(txn)
		return err
	})
	if err != nil {
		return nil, store.WrapBackend(err, "list records")
	}

	var out []store.Record
	for i := range latest {
		r := &latest[i]
		if !state.Accepts(r) {
			continue
		}
		if q.TypeID != "" && r.TypeID != q.TypeID {
			continue
		}
		if len(q.Filter) > 0 {
			ok, err := store.Match(r.Doc(), q.Filter)
			if err != nil {
				return nil, store.NewInvalidArgumentError("", err.Error())
			}
			if !ok {
				continue
			}
		}
		out = append(out, *r)
	}
	return out, nil
}

// Snapshots returns records with their payloads.
func (s *BadgerObjectStore) Snapshots(ctx context.Context, ids []store.ObjectID, withHistory bool) ([]store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var recs []store.Record
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			h, err := history(txn, id)
			if err != nil {
				return err
			}
			if len(h) == 0 {
				continue
			}
			if withHistory {
				recs = append(recs, h...)
			} else {
				recs = append(recs, h[len(h)-1])
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "read snapshots")
	}

	out := make([]store.Snapshot, 0, len(recs))
	for _, r := range recs {
		snap := store.Snapshot{Record: r}
		if r.ContentID != "" {
			data, err := content.ReadAll(ctx, s.content, content.ContentID(r.ContentID))
			if err != nil {
				return nil, store.WrapBackend(err, "read payload")
			}
			snap.Payload = data
		}
		out = append(out, snap)
	}
	return out, nil
}

// Merge inserts snapshots whose version is not present yet.
func (s *BadgerObjectStore) Merge(ctx context.Context, snapshots []store.Snapshot) (store.MergeResult, error) {
	var res store.MergeResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var fresh []store.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		for _, snap := range snapshots {
			_, err := txn.Get(keyRecord(snap.ObjID, snap.Version))
			switch {
			case err == nil:
				res.Skipped++
			case err == badger.ErrKeyNotFound:
				fresh = append(fresh, snap)
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, store.WrapBackend(err, "merge")
	}

	events := make([]store.WriteEvent, 0, len(fresh))
	for i := range fresh {
		if fresh[i].Payload != nil || fresh[i].ContentID != "" {
			cid, err := content.Put(ctx, s.content, fresh[i].Payload)
			if err != nil {
				return res, store.WrapBackend(err, "write payload")
			}
			fresh[i].ContentID = string(cid)
		}
		events = append(events, store.EventFor(&fresh[i].Record))
	}

	s.listeners.Notify(ctx, events)

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, snap := range fresh {
			if err := setDoc(txn, keyRecord(snap.ObjID, snap.Version), snap.Record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, store.WrapBackend(err, "commit merge")
	}
	for _, snap := range fresh {
		s.live.Evict(snap.ObjID)
	}
	res.Merged = len(fresh)
	return res, nil
}

// Save writes a new version of each object.
func (s *BadgerObjectStore) Save(ctx context.Context, objs ...*store.Object) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	recs := make([]store.Record, len(objs))

	err := s.db.View(func(txn *badger.Txn) error {
		pending := make(map[store.ObjectID]store.Record)
		for i, obj := range objs {
			if obj.ID.IsZero() {
				obj.ID = store.NewObjectID()
			}
			rec := store.Record{
				ObjID:        obj.ID,
				TypeID:       obj.TypeID,
				CreationTime: now,
				SnapshotTime: now,
			}
			if prev, ok := pending[obj.ID]; ok {
				rec.Version = prev.Version + 1
				rec.CreationTime = prev.CreationTime
			} else {
				h, err := history(txn, obj.ID)
				if err != nil {
					return err
				}
				if len(h) > 0 {
					rec.Version = h[len(h)-1].Version + 1
					rec.CreationTime = h[0].CreationTime
				}
			}
			pending[obj.ID] = rec
			recs[i] = rec
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "read history")
	}

	for i, obj := range objs {
		cid, err := content.Put(ctx, s.content, obj.Payload)
		if err != nil {
			return nil, store.WrapBackend(err, "write payload")
		}
		recs[i].ContentID = string(cid)
	}

	events := make([]store.WriteEvent, len(recs))
	for i := range recs {
		events[i] = store.EventFor(&recs[i])
	}
	s.listeners.Notify(ctx, events)

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			if err := setDoc(txn, keyRecord(rec.ObjID, rec.Version), rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapBackend(err, "commit records")
	}

	for _, obj := range objs {
		s.live.Put(obj)
	}
	return recs, nil
}

// Load returns the latest live version of id.
func (s *BadgerObjectStore) Load(ctx context.Context, id store.ObjectID) (*store.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	latest, err := s.latestLive(id)
	if err != nil {
		return nil, err
	}

	if obj, ok := s.live.Get(id); ok {
		return obj, nil
	}

	obj := &store.Object{ID: id, TypeID: latest.TypeID}
	if latest.ContentID != "" {
		data, err := content.ReadAll(ctx, s.content, content.ContentID(latest.ContentID))
		if err != nil {
			return nil, store.WrapBackend(err, "read payload")
		}
		obj.Payload = data
	}
	s.live.Put(obj)
	return obj, nil
}

func (s *BadgerObjectStore) latestLive(id store.ObjectID) (store.Record, error) {
	var h []store.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		h, err = history(txn, id)
		return err
	})
	if err != nil {
		return store.Record{}, store.WrapBackend(err, "read history")
	}
	if len(h) == 0 || h[len(h)-1].Deleted {
		return store.Record{}, store.NewNotFoundError(string(id))
	}
	return h[len(h)-1], nil
}

// Delete writes a tombstone for each id.
func (s *BadgerObjectStore) Delete(ctx context.Context, ids ...store.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	tombs := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		latest, err := s.latestLive(id)
		if err != nil {
			return err
		}
		tombs = append(tombs, store.Record{
			ObjID:        id,
			Version:      latest.Version + 1,
			TypeID:       latest.TypeID,
			CreationTime: latest.CreationTime,
			SnapshotTime: now,
			Deleted:      true,
		})
	}

	events := make([]store.WriteEvent, len(tombs))
	for i := range tombs {
		events[i] = store.EventFor(&tombs[i])
	}
	s.listeners.Notify(ctx, events)

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, t := range tombs {
			if err := setDoc(txn, keyRecord(t.ObjID, t.Version), t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.WrapBackend(err, "commit tombstones")
	}
	for _, t := range tombs {
		s.live.Evict(t.ObjID)
	}
	return nil
}

// Open returns a reader over the latest payload.
func (s *BadgerObjectStore) Open(ctx context.Context, id store.ObjectID) (io.ReadCloser, error) {
	latest, err := s.latestLive(id)
	if err != nil {
		return nil, err
	}
	if latest.ContentID == "" {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	r, err := s.content.ReadContent(ctx, content.ContentID(latest.ContentID))
	if err != nil {
		return nil, store.WrapBackend(err, fmt.Sprintf("open %s", id))
	}
	return r, nil
}

// IsLoaded reports whether id is in the live cache.
func (s *BadgerObjectStore) IsLoaded(id store.ObjectID) bool {
	return s.live.Has(id)
}

// history returns the records of id in version order.
func history(txn *badger.Txn, id store.ObjectID) ([]store.Record, error) {
	prefix := keyRecordPrefix(id)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 16})
	defer it.Close()

	var out []store.Record
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		var r store.Record
		if err := it.Item().Value(func(val []byte) error { return codec.Unmarshal(val, &r) }); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// latestRecords scans the whole catalog keeping the last record of each id.
func latestRecords(txn *badger.Txn) ([]store.Record, error) {
	prefix := []byte(prefixRecord)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()

	var out []store.Record
	var curID store.ObjectID
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		var r store.Record
		if err := it.Item().Value(func(val []byte) error { return codec.Unmarshal(val, &r) }); err != nil {
			return nil, err
		}
		id := recordObjID(it.Item().Key())
		if id == curID && len(out) > 0 {
			out[len(out)-1] = r
			continue
		}
		curID = id
		out = append(out, r)
	}
	return out, nil
}
