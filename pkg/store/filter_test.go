package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := map[string]any{
		"ref":   "VD123",
		"sold":  true,
		"count": uint64(3),
		"tags":  []any{"red", "fast"},
		"owner": map[string]any{"name": "alice", "age": int64(41)},
		"at":    now,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", nil, true},
		{"literal", Filter{"ref": "VD123"}, true},
		{"literal miss", Filter{"ref": "VD124"}, false},
		{"numeric kinds", Filter{"count": 3}, true},
		{"dotted", Filter{"owner.name": "alice"}, true},
		{"array membership", Filter{"tags": "fast"}, true},
		{"ne", Filter{"ref": Filter{"$ne": "x"}}, true},
		{"in", Filter{"ref": map[string]any{"$in": []any{"a", "VD123"}}}, true},
		{"nin", Filter{"ref": map[string]any{"$nin": []string{"VD123"}}}, false},
		{"exists", Filter{"missing": map[string]any{"$exists": false}}, true},
		{"exists true", Filter{"sold": map[string]any{"$exists": true}}, true},
		{"regex", Filter{"ref": map[string]any{"$regex": "^vd", "$options": "i"}}, true},
		{"range", Filter{"owner.age": map[string]any{"$gte": 40, "$lt": 42}}, true},
		{"range miss", Filter{"owner.age": map[string]any{"$gt": 41}}, false},
		{"time", Filter{"at": map[string]any{"$lte": now}}, true},
		{"not", Filter{"ref": map[string]any{"$not": map[string]any{"$regex": "^X"}}}, true},
		{"or", Filter{"$or": []any{Filter{"ref": "no"}, Filter{"sold": true}}}, true},
		{"and", Filter{"$and": []any{Filter{"ref": "VD123"}, Filter{"sold": false}}}, false},
		{"nor", Filter{"$nor": []any{Filter{"ref": "no"}}}, true},
		{"missing equals nil", Filter{"missing": nil}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(doc, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchErrors(t *testing.T) {
	_, err := Match(map[string]any{}, Filter{"a": map[string]any{"$bogus": 1}})
	assert.Error(t, err)

	_, err = Match(map[string]any{}, Filter{"$or": "nope"})
	assert.Error(t, err)
}

func TestAnd(t *testing.T) {
	assert.Nil(t, And(nil, Filter{}))
	f := Filter{"a": 1}
	assert.Equal(t, f, And(nil, f))

	combined := And(Filter{"a": 1}, Filter{"b": 2})
	ok, err := Match(map[string]any{"a": 1, "b": 2}, combined)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreErrorIs(t *testing.T) {
	err := WithPath(NewNotFoundError("x"), "/u/x")
	assert.True(t, IsCode(err, ErrNotFound))
	assert.Equal(t, "/u/x: no such file or directory", err.Error())

	wrapped := &BulkWriteError{Index: 2, Err: NewDuplicateKeyError("p", "n")}
	assert.True(t, IsCode(wrapped, ErrDuplicateKey))
	assert.Equal(t, ErrBackend, CodeOf(assert.AnError))
}
