package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/objfs/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// entryDoc is the pyos_fs document of one edge. The root stores a null
// parent.
type entryDoc struct {
	ID     string    `bson:"_id"`
	Name   string    `bson:"name"`
	Parent *string   `bson:"parent"`
	Type   string    `bson:"type"`
	Ctime  time.Time `bson:"ctime"`
	Utime  time.Time `bson:"utime"`
	Depth  int64     `bson:"depth,omitempty"`
}

func toDoc(e store.Entry) entryDoc {
	doc := entryDoc{
		ID:    string(e.ID),
		Name:  e.Name,
		Type:  e.Type.String(),
		Ctime: e.Ctime,
		Utime: e.Utime,
	}
	if !e.Parent.IsZero() {
		p := string(e.Parent)
		doc.Parent = &p
	}
	return doc
}

func (d *entryDoc) entry() store.Entry {
	t, _ := store.ParseEntryType(d.Type)
	e := store.Entry{
		ID:    store.ObjectID(d.ID),
		Name:  d.Name,
		Type:  t,
		Ctime: d.Ctime.UTC(),
		Utime: d.Utime.UTC(),
	}
	if d.Parent != nil {
		e.Parent = store.ObjectID(*d.Parent)
	}
	return e
}

func parentValue(p store.ObjectID) any {
	if p.IsZero() {
		return nil
	}
	return string(p)
}

// EnsureEntryIndexes creates the parent index and the unique (parent, name)
// index.
func (s *MongoObjectStore) EnsureEntryIndexes(ctx context.Context) error {
	_, err := s.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "parent", Value: 1}}},
		{
			Keys:    bson.D{{Key: "parent", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return translate(err, "create entry indexes")
}

// InsertEntries inserts entries with one ordered bulk write.
func (s *MongoObjectStore) InsertEntries(ctx context.Context, entries []store.Entry) error {
	ops := make([]store.EntryOp, len(entries))
	for i, e := range entries {
		ops[i] = store.InsertEntryOp{Entry: e}
	}
	_, err := s.BulkWrite(ctx, ops)
	return err
}

// GetEntries returns the existing entries among ids in the order of ids.
func (s *MongoObjectStore) GetEntries(ctx context.Context, ids []store.ObjectID) ([]store.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.entries.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, translate(err, "get entries")
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "get entries")
	}

	byID := make(map[store.ObjectID]store.Entry, len(docs))
	for i := range docs {
		e := docs[i].entry()
		byID[e.ID] = e
	}
	out := make([]store.Entry, 0, len(docs))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Walk resolves names in one aggregation: $graphLookup follows parent edges
// from the start entry, restricted to the names on the path, and the chain
// is then picked hop by hop.
func (s *MongoObjectStore) Walk(ctx context.Context, from store.ObjectID, names []string) ([]store.Entry, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": string(from)}}},
	}
	if len(names) > 0 {
		nameSet := make(bson.A, len(names))
		for i, n := range names {
			nameSet[i] = n
		}
		pipeline = append(pipeline, bson.D{{Key: "$graphLookup", Value: bson.M{
			"from":                    EntriesCollection,
			"startWith":               "$_id",
			"connectFromField":        "_id",
			"connectToField":          "parent",
			"as":                      "chain",
			"maxDepth":                len(names) - 1,
			"depthField":              "depth",
			"restrictSearchWithMatch": bson.M{"name": bson.M{"$in": nameSet}},
		}}})
	}

	cur, err := s.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err, "walk")
	}
	var results []struct {
		Self  entryDoc   `bson:",inline"`
		Chain []entryDoc `bson:"chain"`
	}
	if err := cur.All(ctx, &results); err != nil {
		return nil, translate(err, "walk")
	}
	if len(results) == 0 {
		return nil, nil
	}

	start := results[0].Self.entry()
	byDepth := make(map[int64][]store.Entry)
	for i := range results[0].Chain {
		d := results[0].Chain[i]
		byDepth[d.Depth] = append(byDepth[d.Depth], d.entry())
	}

	chain := []store.Entry{start}
	cur0 := start
	for i, name := range names {
		next, ok := pickChild(byDepth[int64(i)], cur0.ID, name)
		if !ok {
			break
		}
		chain = append(chain, next)
		cur0 = next
	}
	return chain, nil
}

func pickChild(candidates []store.Entry, parent store.ObjectID, name string) (store.Entry, bool) {
	for _, c := range candidates {
		if c.Parent == parent && c.Name == name {
			return c, true
		}
	}
	return store.Entry{}, false
}

// Children lists children of parent ordered by name.
func (s *MongoObjectStore) Children(ctx context.Context, parent store.ObjectID, q store.ChildrenQuery) ([]store.Entry, error) {
	filter := bson.M{"parent": parentValue(parent)}
	if q.AfterName != "" {
		filter["name"] = bson.M{"$gt": q.AfterName}
	}
	if q.Type != store.EntryAny {
		filter["type"] = q.Type.String()
	}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return s.findEntries(ctx, filter, opts, "list children")
}

// ScanEntries pages over all entries ordered by id.
func (s *MongoObjectStore) ScanEntries(ctx context.Context, q store.ScanQuery) ([]store.Entry, error) {
	filter := bson.M{}
	if !q.AfterID.IsZero() {
		filter["_id"] = bson.M{"$gt": string(q.AfterID)}
	}
	if q.Type != store.EntryAny {
		filter["type"] = q.Type.String()
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return s.findEntries(ctx, filter, opts, "scan entries")
}

func (s *MongoObjectStore) findEntries(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder, op string) ([]store.Entry, error) {
	cur, err := s.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, op)
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, op)
	}
	out := make([]store.Entry, len(docs))
	for i := range docs {
		out[i] = docs[i].entry()
	}
	return out, nil
}

// Descendants runs one $graphLookup over the parent edges below id.
func (s *MongoObjectStore) Descendants(ctx context.Context, id store.ObjectID, maxDepth int) ([]store.Entry, error) {
	lookup := bson.M{
		"from":             EntriesCollection,
		"startWith":        "$_id",
		"connectFromField": "_id",
		"connectToField":   "parent",
		"as":               "desc",
		"depthField":       "depth",
	}
	if maxDepth >= 0 {
		lookup["maxDepth"] = maxDepth
	}
	return s.graph(ctx, id, lookup, "desc", "descendants")
}

// Ancestors runs one $graphLookup up the parent pointers of id.
func (s *MongoObjectStore) Ancestors(ctx context.Context, id store.ObjectID) ([]store.Entry, error) {
	up, err := s.graph(ctx, id, bson.M{
		"from":             EntriesCollection,
		"startWith":        "$parent",
		"connectFromField": "parent",
		"connectToField":   "_id",
		"as":               "up",
		"depthField":       "depth",
	}, "up", "ancestors")
	if err != nil || up == nil {
		return up, err
	}

	self, err := s.GetEntries(ctx, []store.ObjectID{id})
	if err != nil {
		return nil, err
	}
	// graph returns the nearest parent first
	chain := make([]store.Entry, 0, len(up)+1)
	for i := len(up) - 1; i >= 0; i-- {
		chain = append(chain, up[i])
	}
	return append(chain, self...), nil
}

// graph runs a $graphLookup from id and returns the looked-up entries by
// ascending depth. A missing id yields nil.
func (s *MongoObjectStore) graph(ctx context.Context, id store.ObjectID, lookup bson.M, as, op string) ([]store.Entry, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": string(id)}}},
		{{Key: "$graphLookup", Value: lookup}},
		{{Key: "$project", Value: bson.M{as: 1}}},
	}
	cur, err := s.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err, op)
	}
	var results []bson.Raw
	if err := cur.All(ctx, &results); err != nil {
		return nil, translate(err, op)
	}
	if len(results) == 0 {
		return nil, nil
	}

	var doc struct {
		Desc []entryDoc `bson:"desc"`
		Up   []entryDoc `bson:"up"`
	}
	if err := bson.Unmarshal(results[0], &doc); err != nil {
		return nil, translate(err, op)
	}
	docs := doc.Desc
	if as == "up" {
		docs = doc.Up
	}

	out := make([]store.Entry, len(docs))
	depths := make([]int64, len(docs))
	for i := range docs {
		out[i] = docs[i].entry()
		depths[i] = docs[i].Depth
	}
	sortByDepth(out, depths)
	if out == nil {
		out = []store.Entry{}
	}
	return out, nil
}

// sortByDepth orders entries by ascending depth with an insertion sort;
// graph results are small.
func sortByDepth(entries []store.Entry, depths []int64) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && depths[j] < depths[j-1]; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
			depths[j], depths[j-1] = depths[j-1], depths[j]
		}
	}
}

// ============================================================================
// Bulk writes
// ============================================================================

// BulkWrite compiles ops to write models and issues one ordered bulk write.
func (s *MongoObjectStore) BulkWrite(ctx context.Context, ops []store.EntryOp) (store.BulkResult, error) {
	var res store.BulkResult
	if len(ops) == 0 {
		return res, ctx.Err()
	}

	models := make([]mongo.WriteModel, len(ops))
	for i, op := range ops {
		models[i] = writeModel(op)
	}

	r, err := s.entries.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if r != nil {
		res = store.BulkResult{
			Inserted: int(r.InsertedCount),
			Upserted: int(r.UpsertedCount),
			Matched:  int(r.MatchedCount),
			Modified: int(r.ModifiedCount),
			Deleted:  int(r.DeletedCount),
		}
	}
	if err == nil {
		return res, nil
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		we := bwe.WriteErrors[0]
		cause := translate(we, "apply entry op")
		if we.Code == 11000 || we.Code == 11001 {
			cause = &store.StoreError{Code: store.ErrDuplicateKey, Message: we.Message, Err: we}
		}
		return res, &store.BulkWriteError{Index: we.Index, Err: cause}
	}
	return res, &store.BulkWriteError{Index: 0, Err: translate(err, "bulk write entries")}
}

func writeModel(op store.EntryOp) mongo.WriteModel {
	switch op := op.(type) {
	case store.InsertEntryOp:
		return mongo.NewInsertOneModel().SetDocument(toDoc(op.Entry))

	case store.UpsertEntryOp:
		e := op.Entry
		filter := bson.M{"_id": string(e.ID), "type": e.Type.String()}
		var update bson.M
		if op.OnlyNew {
			update = bson.M{"$setOnInsert": bson.M{
				"name":   e.Name,
				"parent": parentValue(e.Parent),
				"ctime":  e.Ctime,
				"utime":  e.Utime,
			}}
		} else {
			update = bson.M{
				"$set":         bson.M{"name": e.Name, "parent": parentValue(e.Parent), "utime": e.Utime},
				"$setOnInsert": bson.M{"ctime": e.Ctime},
			}
		}
		return mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true)

	case store.UpdateEntryOp:
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": string(op.ID)}).
			SetUpdate(bson.M{"$set": bson.M{"name": op.Name, "parent": parentValue(op.Parent), "utime": op.Utime}})

	case store.DeleteEntriesOp:
		filter := bson.M{"_id": bson.M{"$in": idStrings(op.IDs)}}
		if op.Type != store.EntryAny {
			filter["type"] = op.Type.String()
		}
		return mongo.NewDeleteManyModel().SetFilter(filter)
	}
	panic("unknown entry op")
}
