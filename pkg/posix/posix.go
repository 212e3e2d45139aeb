// Package posix exposes the virtual filesystem with the shape of the os
// package: paths relative to a working directory, string results and errors
// that carry the path the caller passed in.
package posix

import (
	"context"
	"errors"
	iofs "io/fs"
	"strings"
	"time"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// FileTypeID is the type of objects created by Open.
const FileTypeID = "file"

// OS is the POSIX-shaped façade over one session.
type OS struct {
	sess *session.Session
}

// New returns the façade of sess.
func New(sess *session.Session) *OS {
	return &OS{sess: sess}
}

// Session returns the underlying session.
func (o *OS) Session() *session.Session {
	return o.sess
}

func (o *OS) fs() *vfs.FS {
	return o.sess.FS()
}

// Chdir changes the working directory.
func (o *OS) Chdir(ctx context.Context, p string) error {
	return o.sess.SetCwd(ctx, o.ExpandUser(p))
}

// Getcwd returns the working directory.
func (o *OS) Getcwd() string {
	return o.sess.Cwd()
}

// Abspath resolves p against the working directory.
func (o *OS) Abspath(p string) string {
	return o.sess.Abs(o.ExpandUser(p))
}

// Relpath returns p relative to start, or to the working directory when
// start is empty.
func (o *OS) Relpath(p, start string) (string, error) {
	if p == "" {
		return "", store.NewInvalidArgumentError(p, "empty path")
	}
	if start == "" {
		start = o.sess.Cwd()
	}
	return fspath.Rel(o.Abspath(p), o.Abspath(start))
}

// IsAbs reports whether p is absolute.
func (o *OS) IsAbs(p string) bool {
	return fspath.IsAbs(p)
}

// ExpandUser replaces a leading "~" with the session's home directory and
// a leading "~user" with /user. Other paths are returned unchanged.
func (o *OS) ExpandUser(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	user, rest, _ := strings.Cut(p[1:], fspath.Separator)
	home := strings.TrimSuffix(o.sess.Home(user), fspath.Separator)
	if rest == "" && !strings.HasSuffix(p, fspath.Separator) {
		if home == "" {
			return fspath.Root
		}
		return home
	}
	return home + fspath.Separator + rest
}

// lookup resolves p and rewrites error paths to p.
func (o *OS) lookup(ctx context.Context, p string) (*vfs.Entry, error) {
	e, err := o.fs().Lookup(ctx, o.Abspath(p))
	if err != nil {
		return nil, store.WithPath(err, p)
	}
	return e, nil
}

// Listdir returns the names of the entries in directory p, ordered by name.
func (o *OS) Listdir(ctx context.Context, p string) ([]string, error) {
	entries, err := o.Scandir(ctx, p)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// DirEntry is one entry yielded by Scandir.
type DirEntry struct {
	// Name is the entry name.
	Name string

	// Path joins the scanned path and Name.
	Path string

	// ID is the entry id; for objects it is the object id.
	ID store.ObjectID

	isFile bool
}

// IsFile reports whether the entry is an object.
func (d DirEntry) IsFile() bool { return d.isFile }

// IsDir reports whether the entry is a directory.
func (d DirEntry) IsDir() bool { return !d.isFile }

// Scandir lists directory p without consulting the record catalog.
func (o *OS) Scandir(ctx context.Context, p string) ([]DirEntry, error) {
	if p == "" {
		p = "."
	}
	dir, err := o.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, store.NewError(store.ErrNotADirectory, p)
	}

	var out []DirEntry
	for e, err := range o.fs().IterChildren(ctx, dir.ID, vfs.ChildQuery{}) {
		if err != nil {
			return nil, store.WithPath(err, p)
		}
		out = append(out, DirEntry{
			Name:   e.Name,
			Path:   fspath.Join(p, e.Name),
			ID:     e.ID,
			isFile: e.IsObj(),
		})
	}
	return out, nil
}

// Makedirs creates directory p and its missing parents.
func (o *OS) Makedirs(ctx context.Context, p string, existOK bool) error {
	_, err := o.fs().MakeDirs(ctx, o.Abspath(p), existOK)
	return store.WithPath(err, p)
}

// Mkdir creates directory p. Its parent must exist.
func (o *OS) Mkdir(ctx context.Context, p string) error {
	abs := o.Abspath(p)
	if _, err := o.fs().LookupDir(ctx, fspath.Dir(abs)); err != nil {
		return store.WithPath(err, p)
	}
	_, err := o.fs().MakeDirs(ctx, abs, false)
	return store.WithPath(err, p)
}

// Rename moves src to dst. A dst ending with a separator names a directory
// to move src into. An occupied dst fails with ErrAlreadyExists; callers
// that want to replace it remove it first.
func (o *OS) Rename(ctx context.Context, src, dst string) error {
	e, err := o.lookup(ctx, src)
	if err != nil {
		return err
	}

	dest := o.Abspath(dst)
	if fspath.IsDirPath(dst) {
		dest = fspath.ToDir(dest)
	}
	_, err = o.fs().Execute(ctx, vfs.Rename{SrcID: e.ID, Dest: dest})
	return store.WithPath(err, dst)
}

// Remove deletes the object at p: its edge and, through a tombstone, the
// object itself. Directories fail with ErrIsADirectory.
func (o *OS) Remove(ctx context.Context, p string) error {
	e, err := o.lookup(ctx, p)
	if err != nil {
		return err
	}
	if e.IsDir() {
		return store.NewError(store.ErrIsADirectory, p)
	}
	return store.WithPath(o.removeObjects(ctx, []store.ObjectID{e.ID}), p)
}

// removeObjects drops edges first, then tombstones the objects that still
// have a live record.
func (o *OS) removeObjects(ctx context.Context, ids []store.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := o.fs().RemoveObjs(ctx, ids); err != nil {
		return err
	}
	live, err := o.sess.Store().Records(ctx, store.RecordQuery{IDs: ids})
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return nil
	}
	liveIDs := make([]store.ObjectID, len(live))
	for i, r := range live {
		liveIDs[i] = r.ObjID
	}
	return o.sess.Store().Delete(ctx, liveIDs...)
}

// Rmdir removes the empty directory p.
func (o *OS) Rmdir(ctx context.Context, p string) error {
	e, err := o.lookup(ctx, p)
	if err != nil {
		return err
	}
	if !e.IsDir() {
		return store.NewError(store.ErrNotADirectory, p)
	}
	_, err = o.fs().RemoveDir(ctx, e.ID, false)
	return store.WithPath(err, p)
}

// RemoveAll removes p and everything below it, deleting the objects placed
// there as well as their edges. A missing p is not an error.
func (o *OS) RemoveAll(ctx context.Context, p string) error {
	e, err := o.lookup(ctx, p)
	if store.IsCode(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if e.IsObj() {
		return store.WithPath(o.removeObjects(ctx, []store.ObjectID{e.ID}), p)
	}

	removed, err := o.fs().RemoveDir(ctx, e.ID, true)
	if err != nil {
		return store.WithPath(err, p)
	}
	var objs []store.ObjectID
	for _, r := range removed {
		if r.IsObj() {
			objs = append(objs, r.ID)
		}
	}
	return store.WithPath(o.removeObjects(ctx, objs), p)
}

// Exists reports whether p resolves.
func (o *OS) Exists(ctx context.Context, p string) bool {
	_, err := o.lookup(ctx, p)
	return err == nil
}

// IsDir reports whether p is a directory.
func (o *OS) IsDir(ctx context.Context, p string) bool {
	e, err := o.lookup(ctx, p)
	return err == nil && e.IsDir()
}

// IsFile reports whether p is an object.
func (o *OS) IsFile(ctx context.Context, p string) bool {
	e, err := o.lookup(ctx, p)
	return err == nil && e.IsObj()
}

// FileInfo describes an entry. It implements io/fs.FileInfo.
type FileInfo struct {
	entry *vfs.Entry
	size  int64
}

var _ iofs.FileInfo = (*FileInfo)(nil)

func (fi *FileInfo) Name() string {
	if fi.entry.IsRoot() {
		return fspath.Root
	}
	return fi.entry.Name
}

func (fi *FileInfo) Size() int64        { return fi.size }
func (fi *FileInfo) ModTime() time.Time { return fi.entry.Stime() }
func (fi *FileInfo) IsDir() bool        { return fi.entry.IsDir() }
func (fi *FileInfo) Sys() any           { return fi.entry }

// Mode carries only the directory bit; permissions are not modelled.
func (fi *FileInfo) Mode() iofs.FileMode {
	if fi.entry.IsDir() {
		return iofs.ModeDir
	}
	return 0
}

// Entry returns the resolved entry with its record.
func (fi *FileInfo) Entry() *vfs.Entry { return fi.entry }

// Stat describes p. Object sizes are the length of the latest payload.
func (o *OS) Stat(ctx context.Context, p string) (*FileInfo, error) {
	e, err := o.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	fi := &FileInfo{entry: e}
	if e.IsObj() {
		obj, err := o.sess.Store().Load(ctx, e.ID)
		switch {
		case err == nil:
			fi.size = int64(len(obj.Payload))
		case !errors.Is(err, iofs.ErrNotExist):
			return nil, store.WithPath(err, p)
		}
	}
	return fi, nil
}
