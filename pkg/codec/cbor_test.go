package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic(t *testing.T) {
	a := map[string]any{"b": 1, "a": "x", "c": []any{1, 2}}
	b := map[string]any{"c": []any{1, 2}, "a": "x", "b": 1}

	ea, err := Marshal(a)
	require.NoError(t, err)
	eb, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, ea, eb)
}

func TestNestedMapsDecodeWithStringKeys(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	data, err := Marshal(map[string]any{"owner": map[string]any{"name": "alice"}, "at": when})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, Unmarshal(data, &out))

	owner, ok := out["owner"].(map[string]any)
	require.True(t, ok, "nested map should decode as map[string]any, got %T", out["owner"])
	assert.Equal(t, "alice", owner["name"])

	at, ok := out["at"].(time.Time)
	require.True(t, ok, "tagged time should decode as time.Time, got %T", out["at"])
	assert.True(t, when.Equal(at))
}
