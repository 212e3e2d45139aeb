package glob

import (
	"strings"
	"testing"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTree seeds /t/ with the classic glob fixture and makes it the cwd.
func newTree(t *testing.T, extra ...string) *session.Session {
	t.Helper()
	ctx := t.Context()
	st := memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{})
	fs, err := vfs.New(ctx, st, vfs.Options{})
	require.NoError(t, err)
	_, err = fs.MakeDirs(ctx, "/t/", true)
	require.NoError(t, err)

	sess, err := session.New(ctx, fs, session.Options{Cwd: "/t/"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	paths := append([]string{"EF", "ZZZ", "a/D", "a/bcd/EF", "a/bcd/efg/ha", "aaa/zzzF", "aab/F"}, extra...)
	for _, p := range paths {
		abs := sess.Abs(p)
		if p[len(p)-1] == '/' {
			_, err := fs.MakeDirs(ctx, abs, true)
			require.NoError(t, err)
			continue
		}
		_, err := fs.MakeDirs(ctx, fspath.Dir(abs), true)
		require.NoError(t, err)
		_, err = sess.Save(ctx, &store.Object{TypeID: "file"}, abs)
		require.NoError(t, err)
	}
	return sess
}

func glob(t *testing.T, sess *session.Session, pattern string, recursive bool) []string {
	t.Helper()
	got, err := Glob(t.Context(), sess, pattern, recursive)
	require.NoError(t, err)
	return got
}

func TestGlobScenarios(t *testing.T) {
	sess := newTree(t)

	assert.ElementsMatch(t, []string{
		"EF", "ZZZ",
		"a/", "a/D", "a/bcd/", "a/bcd/EF", "a/bcd/efg/", "a/bcd/efg/ha",
		"aaa/", "aaa/zzzF",
		"aab/", "aab/F",
	}, glob(t, sess, "**", true))

	assert.ElementsMatch(t, []string{"a/bcd/EF", "EF"}, glob(t, sess, "**/EF", true))
	assert.Equal(t, []string{"a/", "aaa/", "aab/"}, glob(t, sess, "a*", false))
}

func TestGlobPatterns(t *testing.T) {
	sess := newTree(t)

	tests := []struct {
		pattern   string
		recursive bool
		want      []string
	}{
		{"?", false, []string{"a/"}},
		{"*F", false, []string{"EF"}},
		{"a/*", false, []string{"a/D", "a/bcd/"}},
		{"*/F", false, []string{"aab/F"}},
		{"*/", false, []string{"a/", "aaa/", "aab/"}},
		{"[!a]*", false, []string{"EF", "ZZZ"}},
		{"[AEZ]?", false, []string{"EF"}},
		{"a/bcd/*/h?", false, []string{"a/bcd/efg/ha"}},
		{"a/**", false, []string{"a/D", "a/bcd/"}},
		{"a/**", true, []string{"a/", "a/D", "a/bcd/", "a/bcd/EF", "a/bcd/efg/", "a/bcd/efg/ha"}},
		{"a/bcd/**/", true, []string{"a/bcd/", "a/bcd/efg/"}},
		{"**/", true, []string{"a/", "a/bcd/", "a/bcd/efg/", "aaa/", "aab/"}},
		{"/t/a*/*F", false, []string{"/t/aaa/zzzF", "/t/aab/F"}},
		{"missing/*", false, nil},
		{"EF/*", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, glob(t, sess, tt.pattern, tt.recursive))
		})
	}
}

func TestGlobLiteral(t *testing.T) {
	sess := newTree(t)

	assert.Equal(t, []string{"a/D"}, glob(t, sess, "a/D", false))
	assert.Equal(t, []string{"a/bcd"}, glob(t, sess, "a/bcd", false))
	assert.Empty(t, glob(t, sess, "a/nope", false))
	assert.Empty(t, glob(t, sess, "", false))
}

func TestGlobHidesDotEntries(t *testing.T) {
	sess := newTree(t, ".hidden", ".cfg/", "a/.x", ".cfg/inner")

	top := glob(t, sess, "*", false)
	assert.NotContains(t, top, ".hidden")
	assert.NotContains(t, top, ".cfg/")

	all := glob(t, sess, "**", true)
	for _, p := range all {
		assert.NotContains(t, p, "/.", p)
		assert.False(t, strings.HasPrefix(p, "."), p)
	}

	assert.ElementsMatch(t, []string{".cfg/", ".hidden"}, glob(t, sess, ".*", false))
	assert.ElementsMatch(t, []string{"a/.x"}, glob(t, sess, "a/.*", false))
	assert.ElementsMatch(t, []string{".cfg/inner"}, glob(t, sess, ".cfg/*", false))
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, `\A(?!\.)[^/]*\.txt\z`, Translate("*.txt", false))
	assert.Equal(t, `\A/(?!\.)a[^/]\z`, Translate("/a?", false))
	assert.Equal(t, `\A(?:(?!\.)[^/]+/)*(?!\.)EF\z`, Translate("**/EF", true))
	assert.Equal(t, `\A(?!\.)[^/]*/(?!\.)x\z`, Translate("**/x", false))
	assert.Equal(t, `\A(?!\.)[^/x]\z`, Translate("[!x]", false))
	assert.Equal(t, `\A(?!\.)\[ab\z`, Translate("[ab", false))
}

func TestCompileMatches(t *testing.T) {
	tests := []struct {
		pattern   string
		recursive bool
		path      string
		match     bool
	}{
		{"*", false, "abc", true},
		{"*", false, "a/b", false},
		{"*", false, ".abc", false},
		{".*", false, ".abc", true},
		{"a?c", false, "abc", true},
		{"a?c", false, "a/c", false},
		{"[a-c]x", false, "bx", true},
		{"[a-c]x", false, "dx", false},
		{"[!a-c]x", false, "dx", true},
		{"[]]", false, "]", true},
		{"**/z", true, "z", true},
		{"**/z", true, "a/b/z", true},
		{"**/z", true, "a/.b/z", false},
		{"**", true, "a/b/c", true},
		{"a/**/b", true, "a/b", true},
		{"a/**/b", true, "a/x/y/b", true},
		{"/u/*", false, "/u/x", true},
		{"/u/*", false, "u/x", false},
		{Escape("a*"), false, "a*", true},
		{Escape("a*"), false, "ab", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.path, func(t *testing.T) {
			re, err := Compile(tt.pattern, tt.recursive)
			require.NoError(t, err)
			ok, err := re.MatchString(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.match, ok)
		})
	}
}

func TestEscapeAndHasMagic(t *testing.T) {
	assert.Equal(t, "a[*]b[?][[]c", Escape("a*b?[c"))
	assert.Equal(t, "plain/path", Escape("plain/path"))
	assert.True(t, HasMagic("a*"))
	assert.True(t, HasMagic("[x]"))
	assert.False(t, HasMagic("a/b"))
}
