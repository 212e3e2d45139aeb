package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/marmos91/objfs/pkg/content"
	"github.com/marmos91/objfs/pkg/store"
)

// Records returns the latest record of each selected object.
func (s *MemoryObjectStore) Records(ctx context.Context, q store.RecordQuery) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := q.IDs
	if ids == nil {
		ids = make([]store.ObjectID, 0, len(s.records))
		for id := range s.records {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	state := q.State
	if state == "" {
		state = store.StateLive
	}

	var out []store.Record
	for _, id := range ids {
		history := s.records[id]
		if len(history) == 0 {
			continue
		}
		latest := history[len(history)-1]
		if !state.Accepts(&latest) {
			continue
		}
		if q.TypeID != "" && latest.TypeID != q.TypeID {
			continue
		}
		if len(q.Filter) > 0 {
			ok, err := store.Match(latest.Doc(), q.Filter)
			if err != nil {
				return nil, store.NewInvalidArgumentError("", err.Error())
			}
			if !ok {
				continue
			}
		}
		out = append(out, latest)
	}
	return out, nil
}

// Snapshots returns records with their payloads.
func (s *MemoryObjectStore) Snapshots(ctx context.Context, ids []store.ObjectID, history bool) ([]store.Snapshot, error) {
	s.mu.RLock()
	var recs []store.Record
	for _, id := range ids {
		h := s.records[id]
		if len(h) == 0 {
			continue
		}
		if history {
			recs = append(recs, h...)
		} else {
			recs = append(recs, h[len(h)-1])
		}
	}
	s.mu.RUnlock()

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
func (s *MemoryObjectStore) Merge(ctx context.Context, snapshots []store.Snapshot) (store.MergeResult, error) {
	var res store.MergeResult

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	var fresh []store.Snapshot
	for _, snap := range snapshots {
		if s.hasVersionLocked(snap.ObjID, snap.Version) {
			res.Skipped++
			continue
		}
		fresh = append(fresh, snap)
	}
	s.mu.RUnlock()

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

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range fresh {
		s.insertRecordLocked(snap.Record)
		s.live.Evict(snap.ObjID)
		res.Merged++
	}
	return res, nil
}

func (s *MemoryObjectStore) hasVersionLocked(id store.ObjectID, version int) bool {
	for _, r := range s.records[id] {
		if r.Version == version {
			return true
		}
	}
	return false
}

// insertRecordLocked keeps each history sorted by version.
func (s *MemoryObjectStore) insertRecordLocked(r store.Record) {
	h := append(s.records[r.ObjID], r)
	sort.SliceStable(h, func(i, j int) bool { return h[i].Version < h[j].Version })
	s.records[r.ObjID] = h
}

// Save writes a new version of each object.
func (s *MemoryObjectStore) Save(ctx context.Context, objs ...*store.Object) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	recs := make([]store.Record, len(objs))

	s.mu.RLock()
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
		} else if h := s.records[obj.ID]; len(h) > 0 {
			rec.Version = h[len(h)-1].Version + 1
			rec.CreationTime = h[0].CreationTime
		}
		pending[obj.ID] = rec
		recs[i] = rec
	}
	s.mu.RUnlock()

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

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range recs {
		s.insertRecordLocked(rec)
		s.live.Put(objs[i])
	}
	return recs, nil
}

// Load returns the latest live version of id.
func (s *MemoryObjectStore) Load(ctx context.Context, id store.ObjectID) (*store.Object, error) {
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

func (s *MemoryObjectStore) latestLive(id store.ObjectID) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.records[id]
	if len(h) == 0 || h[len(h)-1].Deleted {
		return store.Record{}, store.NewNotFoundError(string(id))
	}
	return h[len(h)-1], nil
}

// Delete writes a tombstone for each id.
func (s *MemoryObjectStore) Delete(ctx context.Context, ids ...store.ObjectID) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tombs {
		s.insertRecordLocked(t)
		s.live.Evict(t.ObjID)
	}
	return nil
}

// Open returns a reader over the latest payload.
func (s *MemoryObjectStore) Open(ctx context.Context, id store.ObjectID) (io.ReadCloser, error) {
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
func (s *MemoryObjectStore) IsLoaded(id store.ObjectID) bool {
	return s.live.Has(id)
}
