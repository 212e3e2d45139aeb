package mongo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/objfs/pkg/content"
	"github.com/marmos91/objfs/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// recordDoc is one version of an object. The _id is the snapshot id, so a
// version can only be written once.
type recordDoc struct {
	ID           string    `bson:"_id"`
	ObjID        string    `bson:"obj_id"`
	Version      int       `bson:"version"`
	TypeID       string    `bson:"type_id"`
	CreationTime time.Time `bson:"creation_time"`
	SnapshotTime time.Time `bson:"snapshot_time"`
	Deleted      bool      `bson:"deleted"`
	ContentID    string    `bson:"content_id,omitempty"`
}

func toRecordDoc(r store.Record) recordDoc {
	return recordDoc{
		ID:           store.SnapshotID(r.ObjID, r.Version),
		ObjID:        string(r.ObjID),
		Version:      r.Version,
		TypeID:       r.TypeID,
		CreationTime: r.CreationTime,
		SnapshotTime: r.SnapshotTime,
		Deleted:      r.Deleted,
		ContentID:    r.ContentID,
	}
}

func (d *recordDoc) record() store.Record {
	return store.Record{
		ObjID:        store.ObjectID(d.ObjID),
		Version:      d.Version,
		TypeID:       d.TypeID,
		CreationTime: d.CreationTime.UTC(),
		SnapshotTime: d.SnapshotTime.UTC(),
		Deleted:      d.Deleted,
		ContentID:    d.ContentID,
	}
}

// Records groups the catalog by object, keeps the highest version and
// applies the state, type and user filters to it, in one aggregation.
func (s *MongoObjectStore) Records(ctx context.Context, q store.RecordQuery) ([]store.Record, error) {
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}

	pre := bson.M{}
	if q.IDs != nil {
		pre["obj_id"] = bson.M{"$in": idStrings(q.IDs)}
	}

	post := bson.A{}
	switch q.State {
	case store.StateAll:
	case store.StateDeleted:
		post = append(post, bson.M{"deleted": true})
	default:
		post = append(post, bson.M{"deleted": bson.M{"$ne": true}})
	}
	if q.TypeID != "" {
		post = append(post, bson.M{"type_id": q.TypeID})
	}
	if len(q.Filter) > 0 {
		post = append(post, bson.M(q.Filter))
	}
	postMatch := bson.M{}
	if len(post) > 0 {
		postMatch = bson.M{"$and": post}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: pre}},
		{{Key: "$sort", Value: bson.D{{Key: "obj_id", Value: 1}, {Key: "version", Value: -1}}}},
		{{Key: "$group", Value: bson.M{"_id": "$obj_id", "doc": bson.M{"$first": "$$ROOT"}}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
		{{Key: "$match", Value: postMatch}},
		{{Key: "$sort", Value: bson.D{{Key: "obj_id", Value: 1}}}},
	}

	cur, err := s.records.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err, "list records")
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "list records")
	}
	out := make([]store.Record, len(docs))
	for i := range docs {
		out[i] = docs[i].record()
	}
	return out, nil
}

// history returns the records of ids ordered by object and version.
func (s *MongoObjectStore) history(ctx context.Context, ids []store.ObjectID) (map[store.ObjectID][]store.Record, error) {
	out := make(map[store.ObjectID][]store.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.records.Find(ctx,
		bson.M{"obj_id": bson.M{"$in": idStrings(ids)}},
		options.Find().SetSort(bson.D{{Key: "obj_id", Value: 1}, {Key: "version", Value: 1}}),
	)
	if err != nil {
		return nil, translate(err, "read history")
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "read history")
	}
	for i := range docs {
		r := docs[i].record()
		out[r.ObjID] = append(out[r.ObjID], r)
	}
	return out, nil
}

// Snapshots returns records with their payloads.
func (s *MongoObjectStore) Snapshots(ctx context.Context, ids []store.ObjectID, withHistory bool) ([]store.Snapshot, error) {
	hist, err := s.history(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []store.Snapshot
	for _, id := range ids {
		h := hist[id]
		if len(h) == 0 {
			continue
		}
		if !withHistory {
			h = h[len(h)-1:]
		}
		for _, r := range h {
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
	}
	return out, nil
}

// Merge inserts snapshots whose snapshot id is not in the catalog yet.
func (s *MongoObjectStore) Merge(ctx context.Context, snapshots []store.Snapshot) (store.MergeResult, error) {
	var res store.MergeResult
	if len(snapshots) == 0 {
		return res, nil
	}
	if err := s.lockWrites(ctx); err != nil {
		return res, err
	}
	defer s.unlockWrites()

	sids := make(bson.A, len(snapshots))
	for i, snap := range snapshots {
		sids[i] = store.SnapshotID(snap.ObjID, snap.Version)
	}
	cur, err := s.records.Find(ctx, bson.M{"_id": bson.M{"$in": sids}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return res, translate(err, "merge")
	}
	var present []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &present); err != nil {
		return res, translate(err, "merge")
	}
	have := make(map[string]bool, len(present))
	for _, p := range present {
		have[p.ID] = true
	}

	var fresh []store.Snapshot
	for _, snap := range snapshots {
		if have[store.SnapshotID(snap.ObjID, snap.Version)] {
			res.Skipped++
			continue
		}
		fresh = append(fresh, snap)
	}
	if len(fresh) == 0 {
		return res, nil
	}

	events := make([]store.WriteEvent, 0, len(fresh))
	docs := make([]any, 0, len(fresh))
	for i := range fresh {
		if fresh[i].Payload != nil || fresh[i].ContentID != "" {
			cid, err := content.Put(ctx, s.content, fresh[i].Payload)
			if err != nil {
				return res, store.WrapBackend(err, "write payload")
			}
			fresh[i].ContentID = string(cid)
		}
		events = append(events, store.EventFor(&fresh[i].Record))
		docs = append(docs, toRecordDoc(fresh[i].Record))
	}

	s.listeners.Notify(ctx, events)

	if _, err := s.records.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return res, translate(err, "commit merge")
	}
	for _, snap := range fresh {
		s.live.Evict(snap.ObjID)
	}
	res.Merged = len(fresh)
	return res, nil
}

// Save writes a new version of each object.
func (s *MongoObjectStore) Save(ctx context.Context, objs ...*store.Object) ([]store.Record, error) {
	if len(objs) == 0 {
		return nil, ctx.Err()
	}
	if err := s.lockWrites(ctx); err != nil {
		return nil, err
	}
	defer s.unlockWrites()

	ids := make([]store.ObjectID, 0, len(objs))
	for _, obj := range objs {
		if obj.ID.IsZero() {
			obj.ID = store.NewObjectID()
		}
		ids = append(ids, obj.ID)
	}
	hist, err := s.history(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recs := make([]store.Record, len(objs))
	pending := make(map[store.ObjectID]store.Record)
	for i, obj := range objs {
		rec := store.Record{ObjID: obj.ID, TypeID: obj.TypeID, CreationTime: now, SnapshotTime: now}
		if prev, ok := pending[obj.ID]; ok {
			rec.Version = prev.Version + 1
			rec.CreationTime = prev.CreationTime
		} else if h := hist[obj.ID]; len(h) > 0 {
			rec.Version = h[len(h)-1].Version + 1
			rec.CreationTime = h[0].CreationTime
		}
		cid, err := content.Put(ctx, s.content, obj.Payload)
		if err != nil {
			return nil, store.WrapBackend(err, "write payload")
		}
		rec.ContentID = string(cid)
		pending[obj.ID] = rec
		recs[i] = rec
	}

	events := make([]store.WriteEvent, len(recs))
	docs := make([]any, len(recs))
	for i := range recs {
		events[i] = store.EventFor(&recs[i])
		docs[i] = toRecordDoc(recs[i])
	}
	s.listeners.Notify(ctx, events)

	if _, err := s.records.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return nil, translate(err, "commit records")
	}
	for _, obj := range objs {
		s.live.Put(obj)
	}
	return recs, nil
}

func (s *MongoObjectStore) latestLive(ctx context.Context, id store.ObjectID) (store.Record, error) {
	var doc recordDoc
	err := s.records.FindOne(ctx,
		bson.M{"obj_id": string(id)},
		options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return store.Record{}, store.NewNotFoundError(string(id))
	}
	if err != nil {
		return store.Record{}, translate(err, "read record")
	}
	if doc.Deleted {
		return store.Record{}, store.NewNotFoundError(string(id))
	}
	return doc.record(), nil
}

// Load returns the latest live version of id.
func (s *MongoObjectStore) Load(ctx context.Context, id store.ObjectID) (*store.Object, error) {
	latest, err := s.latestLive(ctx, id)
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

// Delete writes a tombstone for each id.
func (s *MongoObjectStore) Delete(ctx context.Context, ids ...store.ObjectID) error {
	if len(ids) == 0 {
		return ctx.Err()
	}
	if err := s.lockWrites(ctx); err != nil {
		return err
	}
	defer s.unlockWrites()

	now := time.Now().UTC()
	tombs := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		latest, err := s.latestLive(ctx, id)
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
	docs := make([]any, len(tombs))
	for i := range tombs {
		events[i] = store.EventFor(&tombs[i])
		docs[i] = toRecordDoc(tombs[i])
	}
	s.listeners.Notify(ctx, events)

	if _, err := s.records.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return translate(err, "commit tombstones")
	}
	for _, t := range tombs {
		s.live.Evict(t.ObjID)
	}
	return nil
}

// Open returns a reader over the latest payload.
func (s *MongoObjectStore) Open(ctx context.Context, id store.ObjectID) (io.ReadCloser, error) {
	latest, err := s.latestLive(ctx, id)
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
func (s *MongoObjectStore) IsLoaded(id store.ObjectID) bool {
	return s.live.Has(id)
}
