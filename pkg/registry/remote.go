package registry

import (
	"strings"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// Remote is a filesystem registered under a name.
type Remote struct {
	// Name addresses the store in "name:path" strings.
	Name string

	// FS is the filesystem over the store.
	FS *vfs.FS

	// ReadOnly rejects the remote as an rsync destination.
	ReadOnly bool
}

// Address is a path, optionally qualified with the name of a registered
// store.
type Address struct {
	// Remote is the store name; empty for the local session.
	Remote string

	// Path is the path within the store.
	Path string
}

// IsLocal reports whether a names the local session.
func (a Address) IsLocal() bool {
	return a.Remote == ""
}

func (a Address) String() string {
	if a.IsLocal() {
		return a.Path
	}
	return a.Remote + ":" + a.Path
}

// ParseAddress splits "name:path". A colon after the first separator is
// part of the path, so "/a:b" and "a/b:c" are local.
func ParseAddress(s string) (Address, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 || (strings.Contains(s[:i], "/")) {
		return Address{Path: s}, nil
	}
	name := s[:i]
	if err := ValidName(name); err != nil {
		return Address{}, err
	}
	path := s[i+1:]
	if path == "" {
		path = "/"
	}
	return Address{Remote: name, Path: path}, nil
}

// ValidName checks a store name.
func ValidName(name string) error {
	if name == "" {
		return store.NewInvalidArgumentError(name, "empty store name")
	}
	if strings.ContainsAny(name, ":/") {
		return store.NewInvalidArgumentError(name, "store names cannot contain ':' or '/'")
	}
	return nil
}
