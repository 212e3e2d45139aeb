// Package fspath implements the slash-separated path algebra of the virtual
// filesystem.
//
// It differs from the standard path package in one respect that matters to
// callers: a trailing separator is significant. "/a/b/" addresses the
// directory b, "/a/b" may address an object named b. Normalize, Join and
// Clean-like helpers preserve it.
package fspath

import (
	"strings"

	"github.com/marmos91/objfs/pkg/store"
)

// Separator is the path separator.
const Separator = "/"

// Root is the absolute path of the root directory.
const Root = "/"

// IsAbs reports whether p starts at the root.
func IsAbs(p string) bool {
	return strings.HasPrefix(p, Separator)
}

// IsDirPath reports whether p ends with a separator. It is a syntactic
// property only.
func IsDirPath(p string) bool {
	return strings.HasSuffix(p, Separator)
}

// Normalize resolves "." and ".." segments and collapses repeated
// separators. A trailing separator is kept iff p had one; ".." above the
// root stays at the root. The empty path normalizes to ".".
func Normalize(p string) string {
	if p == "" {
		return "."
	}

	abs := IsAbs(p)
	dir := IsDirPath(p)

	var out []string
	for _, seg := range strings.Split(p, Separator) {
		switch seg {
		case "", ".":
			continue
		case "..":
			switch {
			case len(out) > 0 && out[len(out)-1] != "..":
				out = out[:len(out)-1]
			case abs:
				// above the root
			default:
				out = append(out, "..")
			}
		default:
			out = append(out, seg)
		}
	}

	joined := strings.Join(out, Separator)
	switch {
	case abs:
		if joined == "" {
			return Root
		}
		joined = Root + joined
	case joined == "":
		if dir {
			return "./"
		}
		return "."
	}
	if dir {
		joined += Separator
	}
	return joined
}

// Join joins elements with exactly one separator and normalizes the result.
// An absolute element discards everything before it. The trailing separator
// of the last element is kept.
func Join(elem ...string) string {
	start := 0
	for i, e := range elem {
		if IsAbs(e) {
			start = i
		}
	}

	var parts []string
	for _, e := range elem[start:] {
		if e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return "."
	}

	return Normalize(strings.Join(parts, Separator))
}

// Split splits p after its last separator. Trailing separators of dir are
// removed unless dir is only separators.
func Split(p string) (dir, base string) {
	i := strings.LastIndex(p, Separator)
	dir, base = p[:i+1], p[i+1:]
	if trimmed := strings.TrimRight(dir, Separator); trimmed != "" {
		dir = trimmed
	}
	return dir, base
}

// Base returns the last element of p, ignoring a trailing separator.
func Base(p string) string {
	if p == Root {
		return Root
	}
	_, base := Split(strings.TrimSuffix(p, Separator))
	return base
}

// Dir returns the parent directory of p as a directory path (with a
// trailing separator). The parent of the root is the root.
func Dir(p string) string {
	n := Normalize(p)
	if n == Root {
		return Root
	}
	dir, _ := Split(strings.TrimSuffix(n, Separator))
	if dir == "" {
		return "./"
	}
	return ToDir(dir)
}

// ToDir returns p with a trailing separator.
func ToDir(p string) string {
	if IsDirPath(p) {
		return p
	}
	return p + Separator
}

// Rel returns a relative path that reaches target from start, both taken
// as normalized paths. Both paths must be non-empty and either both
// absolute or both relative.
func Rel(target, start string) (string, error) {
	if target == "" || start == "" {
		return "", store.NewInvalidArgumentError(target, "empty path")
	}
	if IsAbs(target) != IsAbs(start) {
		return "", store.NewInvalidArgumentError(target, "cannot mix absolute and relative paths")
	}

	dir := IsDirPath(target)
	t := splitClean(Normalize(target))
	s := splitClean(Normalize(start))

	common := 0
	for common < len(t) && common < len(s) && t[common] == s[common] {
		common++
	}
	if common < len(s) && s[common] == ".." {
		return "", store.NewInvalidArgumentError(start, "start escapes its base")
	}

	var out []string
	for range s[common:] {
		out = append(out, "..")
	}
	out = append(out, t[common:]...)
	if len(out) == 0 {
		if dir {
			return "./", nil
		}
		return ".", nil
	}
	rel := strings.Join(out, Separator)
	if dir && len(t) > 0 {
		rel += Separator
	}
	return rel, nil
}

func splitClean(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, Separator) {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}

// Segments returns the names below the root of an absolute path after
// normalization. The root has no segments.
func Segments(abs string) ([]string, error) {
	if abs == "" {
		return nil, store.NewInvalidArgumentError(abs, "empty path")
	}
	if !IsAbs(abs) {
		return nil, store.NewInvalidArgumentError(abs, "path is not absolute")
	}
	segs := splitClean(Normalize(abs))
	for _, s := range segs {
		if err := ValidName(s); err != nil {
			return nil, store.WithPath(err, abs)
		}
	}
	return segs, nil
}

// ValidName checks that name can be stored as one entry name.
func ValidName(name string) error {
	switch {
	case name == "":
		return store.NewInvalidArgumentError(name, "empty name")
	case name == "." || name == "..":
		return store.NewInvalidArgumentError(name, "reserved name")
	case strings.Contains(name, Separator):
		return store.NewInvalidArgumentError(name, "name contains a separator")
	case strings.ContainsRune(name, 0):
		return store.NewInvalidArgumentError(name, "name contains NUL")
	}
	return nil
}

// FromSegments builds an absolute path from names below the root.
func FromSegments(segs []string, dir bool) string {
	if len(segs) == 0 {
		return Root
	}
	p := Root + strings.Join(segs, Separator)
	if dir {
		p += Separator
	}
	return p
}

// IsUnder reports whether p is dir or lies below it. Both must be absolute.
func IsUnder(p, dir string) bool {
	p = strings.TrimSuffix(Normalize(p), Separator)
	dir = strings.TrimSuffix(Normalize(dir), Separator)
	if dir == "" {
		return IsAbs(p) || p == ""
	}
	return p == dir || strings.HasPrefix(p, dir+Separator)
}
