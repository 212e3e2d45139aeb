package glob

import (
	"context"
	"iter"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// Glob returns the paths matching pattern, resolved against the session's
// working directory. See IGlob.
func Glob(ctx context.Context, sess *session.Session, pattern string, recursive bool) ([]string, error) {
	var out []string
	for p, err := range IGlob(ctx, sess, pattern, recursive) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// IGlob yields the paths matching pattern in pre-order.
//
// Results are written the way the pattern is: relative patterns yield paths
// relative to the working directory, absolute ones yield absolute paths.
// Directories carry a trailing separator. A pattern ending with a separator
// only matches directories. A pattern without wildcards yields itself when
// it names an existing entry.
func IGlob(ctx context.Context, sess *session.Session, pattern string, recursive bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if pattern == "" {
			return
		}
		fs := sess.FS()

		if !HasMagic(pattern) {
			_, err := fs.Lookup(ctx, sess.Abs(pattern))
			switch {
			case err == nil:
				yield(pattern, nil)
			case !isMiss(err):
				yield("", store.WithPath(err, pattern))
			}
			return
		}

		prefix, rest := splitLiteral(pattern)
		startAbs := fspath.ToDir(sess.Abs(prefix))
		start, err := fs.LookupDir(ctx, startAbs)
		if isMiss(err) {
			return
		}
		if err != nil {
			yield("", store.WithPath(err, pattern))
			return
		}

		pat := parse(rest, recursive)
		re, err := regexp2.Compile(pat.regex(), regexp2.None)
		if err != nil {
			yield("", store.NewInvalidArgumentError(pattern, err.Error()))
			return
		}

		// a trailing globstar also matches zero segments: the start itself
		if prefix != "" && len(pat.segments) == 1 && pat.hasGlobstar() {
			if !yield(fspath.ToDir(prefix), nil) {
				return
			}
		}

		q := vfs.DescendQuery{
			ChildQuery: vfs.ChildQuery{DirPath: startAbs},
			MaxDepth:   -1,
		}
		if !pat.hasGlobstar() {
			q.MinDepth = len(pat.segments) - 1
			q.MaxDepth = len(pat.segments) - 1
		}

		for e, err := range fs.IterDescendents(ctx, start.ID, q) {
			if err != nil {
				yield("", store.WithPath(err, pattern))
				return
			}
			if pat.dirOnly && !e.IsDir() {
				continue
			}
			rel := strings.TrimSuffix(strings.TrimPrefix(e.Path, startAbs), fspath.Separator)
			ok, err := re.MatchString(rel)
			if err != nil {
				yield("", store.NewInvalidArgumentError(pattern, err.Error()))
				return
			}
			if !ok {
				continue
			}
			out := prefix + rel
			if e.IsDir() {
				out += fspath.Separator
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

// splitLiteral splits pattern at the last separator before its first
// wildcard. The prefix keeps its trailing separator.
func splitLiteral(pattern string) (prefix, rest string) {
	magic := strings.IndexAny(pattern, magicChars)
	cut := strings.LastIndex(pattern[:magic], fspath.Separator)
	return pattern[:cut+1], pattern[cut+1:]
}

func isMiss(err error) bool {
	return store.IsCode(err, store.ErrNotFound) || store.IsCode(err, store.ErrNotADirectory)
}
