package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetWriter(&buf)
	SetFormat("json")
	SetLevel("warn")
	t.Cleanup(func() {
		SetLevel("info")
		SetFormat("text")
		_ = SetOutput("stderr")
	})

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "shown 2", rec["message"])
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	SetLevel("debug")
	SetLevel("verbose")
	assert.Equal(t, LevelDebug, GetLevel())
	SetLevel("info")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetWriter(&buf)
	SetFormat("json")
	t.Cleanup(func() {
		SetFormat("text")
		_ = SetOutput("stderr")
	})

	l := With("session")
	l.Info().Str("path", "/u/").Msg("cwd changed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "session", rec["component"])
	assert.Equal(t, "/u/", rec["path"])
}
