package mongo

import (
	"context"

	"github.com/marmos91/objfs/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureMetaIndexes creates an ascending index per key.
func (s *MongoObjectStore) EnsureMetaIndexes(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, len(keys))
	for i, k := range keys {
		models[i] = mongo.IndexModel{Keys: bson.D{{Key: k, Value: 1}}}
	}
	_, err := s.meta.Indexes().CreateMany(ctx, models)
	return translate(err, "create meta indexes")
}

// SetMeta replaces the metadata document of id. A nil meta deletes it.
func (s *MongoObjectStore) SetMeta(ctx context.Context, id store.ObjectID, meta store.Meta) error {
	if meta == nil {
		_, err := s.meta.DeleteOne(ctx, bson.M{"_id": string(id)})
		return translate(err, "delete meta")
	}
	doc := bson.M{}
	for k, v := range meta {
		doc[k] = v
	}
	doc["_id"] = string(id)
	_, err := s.meta.ReplaceOne(ctx, bson.M{"_id": string(id)}, doc, options.Replace().SetUpsert(true))
	return translate(err, "set meta")
}

// UpdateMeta $sets each field of meta on the document of id.
func (s *MongoObjectStore) UpdateMeta(ctx context.Context, id store.ObjectID, meta store.Meta) error {
	if len(meta) == 0 {
		return nil
	}
	set := bson.M{}
	for k, v := range meta {
		set[k] = v
	}
	_, err := s.meta.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": set}, options.UpdateOne().SetUpsert(true))
	return translate(err, "update meta")
}

// UnsetMeta $unsets keys on the documents of ids.
func (s *MongoObjectStore) UnsetMeta(ctx context.Context, ids []store.ObjectID, keys ...string) error {
	if len(ids) == 0 || len(keys) == 0 {
		return nil
	}
	unset := bson.M{}
	for _, k := range keys {
		unset[k] = ""
	}
	_, err := s.meta.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}}, bson.M{"$unset": unset})
	return translate(err, "unset meta")
}

// GetMeta returns the metadata of ids that have any, without the _id key.
func (s *MongoObjectStore) GetMeta(ctx context.Context, ids []store.ObjectID) (map[store.ObjectID]store.Meta, error) {
	out := make(map[store.ObjectID]store.Meta, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.meta.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, translate(err, "get meta")
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "get meta")
	}
	for _, d := range docs {
		id, _ := d["_id"].(string)
		delete(d, "_id")
		out[store.ObjectID(id)] = store.Meta(plain(d).(map[string]any))
	}
	return out, nil
}

// FindMeta returns the ids whose metadata matches filter. Restricting ids
// that have no document match as if their document were empty, so the
// filter is evaluated locally for them.
func (s *MongoObjectStore) FindMeta(ctx context.Context, filter store.Filter, ids []store.ObjectID) ([]store.ObjectID, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	query := bson.M{}
	if len(filter) > 0 {
		query = bson.M(filter)
	}
	if ids != nil {
		query = bson.M{"$and": bson.A{bson.M{"_id": bson.M{"$in": idStrings(ids)}}, query}}
	}

	cur, err := s.meta.Find(ctx, query,
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translate(err, "find meta")
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "find meta")
	}

	matched := make(map[store.ObjectID]bool, len(docs))
	for _, d := range docs {
		matched[store.ObjectID(d.ID)] = true
	}
	if ids == nil {
		out := make([]store.ObjectID, 0, len(docs))
		for _, d := range docs {
			out = append(out, store.ObjectID(d.ID))
		}
		return out, nil
	}

	// ids without a document are matched against an empty one
	present, err := s.GetMeta(ctx, ids)
	if err != nil {
		return nil, err
	}
	emptyMatches, err := store.Match(map[string]any{}, filter)
	if err != nil {
		return nil, store.NewInvalidArgumentError("", err.Error())
	}

	var out []store.ObjectID
	for _, id := range ids {
		_, has := present[id]
		if matched[id] || (!has && emptyMatches) {
			out = append(out, id)
		}
	}
	return out, nil
}

// DistinctMeta runs the server-side distinct command.
func (s *MongoObjectStore) DistinctMeta(ctx context.Context, key string, filter store.Filter) ([]any, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	query := bson.M{}
	if len(filter) > 0 {
		query = bson.M(filter)
	}
	res := s.meta.Distinct(ctx, key, query)
	if err := res.Err(); err != nil {
		return nil, translate(err, "distinct meta")
	}
	var values bson.A
	if err := res.Decode(&values); err != nil {
		return nil, translate(err, "distinct meta")
	}
	return plain(values).([]any), nil
}
