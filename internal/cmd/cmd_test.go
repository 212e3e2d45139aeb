package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newConfig writes a config with a persistent local store and one remote.
func newConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	storeYAML := func(name string) string {
		return fmt.Sprintf(`type: badger
    badger:
      db_path: %s
    content:
      type: filesystem
      filesystem:
        path: %s`, filepath.Join(dir, name, "db"), filepath.Join(dir, name, "content"))
	}

	cfg := fmt.Sprintf(`logging:
  level: ERROR
store:
  %s
session:
  cwd: /
  user: alice
remotes:
  - name: backup
    store:
      %s
`, strings.ReplaceAll(storeYAML("local"), "\n    ", "\n  "), strings.ReplaceAll(storeYAML("backup"), "\n    ", "\n      "))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

// execute runs one command line and returns its stdout.
func execute(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func mustExecute(t *testing.T, cfgPath, stdin string, args ...string) string {
	t.Helper()
	out, err := execute(t, cfgPath, stdin, args...)
	require.NoError(t, err, "objfs %s", strings.Join(args, " "))
	return out
}

func lines(s string) []string {
	return strings.Fields(s)
}

func TestPutCatLs(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "mkdir", "-p", "/docs/drafts")
	id := strings.TrimSpace(mustExecute(t, cfg, "hello objfs", "put", "/docs/notes.txt"))
	assert.NotEmpty(t, id)

	assert.Equal(t, "hello objfs", mustExecute(t, cfg, "", "cat", "/docs/notes.txt"))
	assert.Equal(t, []string{"drafts/", "notes.txt"}, lines(mustExecute(t, cfg, "", "ls", "/docs")))

	// A second put writes a new version of the same object.
	again := strings.TrimSpace(mustExecute(t, cfg, "v2", "put", "/docs/notes.txt"))
	assert.Equal(t, id, again)
	assert.Equal(t, "v2", mustExecute(t, cfg, "", "cat", "/docs/notes.txt"))

	long := mustExecute(t, cfg, "", "ls", "-l", "/docs")
	assert.Contains(t, long, id)
	assert.Contains(t, long, "2 B")
}

func TestPutWithTypeID(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "mkdir", "/reports")
	id := strings.TrimSpace(mustExecute(t, cfg, "q3", "put", "--type-id", "report", "/reports/"))

	assert.Equal(t, []string{id}, lines(mustExecute(t, cfg, "", "ls", "/reports")))
	assert.Equal(t, []string{"/reports/" + id}, lines(mustExecute(t, cfg, "", "find", "--type-id", "report")))
	assert.Empty(t, lines(mustExecute(t, cfg, "", "find", "--type-id", "file")))
}

func TestCwdFlag(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "--cwd", "/work", "mkdir", "sub")
	mustExecute(t, cfg, "data", "--cwd", "/work", "put", "sub/a")

	assert.Equal(t, []string{"sub/"}, lines(mustExecute(t, cfg, "", "ls", "/work")))
	assert.Equal(t, "data", mustExecute(t, cfg, "", "cat", "/work/sub/a"))
}

func TestMvAndRm(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "mkdir", "-p", "/a", "/b")
	mustExecute(t, cfg, "x", "put", "/a/x")

	mustExecute(t, cfg, "", "mv", "/a/x", "/b")
	assert.Empty(t, lines(mustExecute(t, cfg, "", "ls", "/a")))
	assert.Equal(t, []string{"x"}, lines(mustExecute(t, cfg, "", "ls", "/b")))

	// An object already at the destination is only replaced with --force.
	mustExecute(t, cfg, "new", "put", "/a/x")
	_, err := execute(t, cfg, "", "mv", "/a/x", "/b")
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists), "got %v", err)
	assert.Equal(t, "x", mustExecute(t, cfg, "", "cat", "/b/x"))

	mustExecute(t, cfg, "", "mv", "-f", "/a/x", "/b/x")
	assert.Empty(t, lines(mustExecute(t, cfg, "", "ls", "/a")))
	assert.Equal(t, "new", mustExecute(t, cfg, "", "cat", "/b/x"))

	_, err = execute(t, cfg, "", "rm", "/b")
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrIsADirectory), "got %v", err)

	_, err = execute(t, cfg, "", "rm", "-d", "/b")
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrDirectoryNotEmpty), "got %v", err)

	mustExecute(t, cfg, "", "rm", "-d", "/a")
	mustExecute(t, cfg, "", "rm", "-r", "/b")
	assert.Empty(t, lines(mustExecute(t, cfg, "", "ls", "/")))
}

func TestErrorsNameCommandAndPath(t *testing.T) {
	cfg := newConfig(t)

	_, err := execute(t, cfg, "", "cat", "/missing")
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrNotFound))
	assert.Equal(t, "cat: /missing: no such file or directory", err.Error())

	mustExecute(t, cfg, "", "mkdir", "/d")
	_, err = execute(t, cfg, "", "mkdir", "/d")
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrAlreadyExists))
	assert.True(t, strings.HasPrefix(err.Error(), "mkdir: "))

	_, err = execute(t, cfg, "", "rsync", "--meta", "bogus", "/d", "backup:/")
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument))
}

func TestMetaAndFind(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "mkdir", "-p", "/runs/2024")
	mustExecute(t, cfg, "1", "put", "/runs/r1")
	mustExecute(t, cfg, "2", "put", "/runs/2024/r2")

	mustExecute(t, cfg, "", "meta", "set", "/runs/r1", `{"status": "done", "score": 7}`)
	mustExecute(t, cfg, "", "meta", "set", "/runs/2024/r2", `{"status": "running"}`)
	mustExecute(t, cfg, "", "meta", "update", "/runs/2024/r2", `{"score": 3}`)

	assert.JSONEq(t, `{"status": "running", "score": 3}`, mustExecute(t, cfg, "", "meta", "get", "/runs/2024/r2"))

	assert.Equal(t, []string{"/runs/r1"},
		lines(mustExecute(t, cfg, "", "find", "/runs", "--meta", `{"status": "done"}`)))
	assert.Equal(t, []string{"/runs/2024/r2", "/runs/r1"},
		lines(mustExecute(t, cfg, "", "find", "/runs", "--meta", `{"score": {"$gt": 1}}`)))
	assert.Equal(t, []string{"/runs/r1"},
		lines(mustExecute(t, cfg, "", "find", "/runs", "--maxdepth", "0")))

	mustExecute(t, cfg, "", "meta", "unset", "/runs/r1", "score")
	assert.JSONEq(t, `{"status": "done"}`, mustExecute(t, cfg, "", "meta", "get", "/runs/r1"))

	_, err := execute(t, cfg, "", "meta", "set", "/runs/r1", `[1, 2]`)
	assert.True(t, store.IsCode(err, store.ErrInvalidArgument), "got %v", err)

	_, err = execute(t, cfg, "", "meta", "get", "/runs")
	assert.True(t, store.IsCode(err, store.ErrIsADirectory), "got %v", err)
}

func TestGlob(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "mkdir", "-p", "/src/pkg")
	mustExecute(t, cfg, "", "put", "/src/main.go")
	mustExecute(t, cfg, "", "put", "/src/pkg/util.go")
	mustExecute(t, cfg, "", "put", "/src/README")

	assert.ElementsMatch(t, []string{"/src/main.go"}, lines(mustExecute(t, cfg, "", "glob", "/src/*.go")))
	assert.ElementsMatch(t, []string{"/src/main.go", "/src/pkg/util.go"},
		lines(mustExecute(t, cfg, "", "glob", "/src/**/*.go")))
}

func TestRsyncToRemote(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "mkdir", "-p", "/project/data")
	mustExecute(t, cfg, "a", "put", "/project/data/a")
	mustExecute(t, cfg, "b", "put", "/project/b")
	mustExecute(t, cfg, "", "meta", "set", "/project/b", `{"kind": "config"}`)

	out := mustExecute(t, cfg, "", "rsync", "--meta", "overwrite", "/project", "backup:/")
	assert.Contains(t, out, "objects=2")
	assert.Contains(t, out, "merged=2")

	// Running again merges nothing new.
	out = mustExecute(t, cfg, "", "rsync", "/project", "backup:/")
	assert.Contains(t, out, "merged=0")
	assert.Contains(t, out, "skipped=2")

	_, err := execute(t, cfg, "", "rsync", "/project", "nowhere:/")
	assert.True(t, store.IsCode(err, store.ErrNotFound), "got %v", err)
}

func TestGC(t *testing.T) {
	cfg := newConfig(t)

	mustExecute(t, cfg, "", "put", "/x")
	out := mustExecute(t, cfg, "", "gc", "--dry-run")
	assert.Contains(t, out, "scanned=1")
	assert.Contains(t, out, "stray=0")
}

func TestInitAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objfs.yaml")
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "init"})
	require.NoError(t, root.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), path)
	assert.FileExists(t, path)

	_, err := execute(t, path, "", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	mustExecute(t, path, "", "init", "--force")

	assert.Contains(t, mustExecute(t, path, "", "version"), "objfs version")
}
