package posix

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
)

// ErrClosed is returned by operations on a closed File.
var ErrClosed = errors.New("file already closed")

// File is an open object. Reads and writes go to an in-memory copy of the
// payload; writes are saved as a new object version on Sync or Close.
type File struct {
	ctx  context.Context
	os   *OS
	name string

	mu       sync.Mutex
	obj      store.Object
	data     []byte
	off      int64
	readable bool
	writable bool
	append   bool
	dirty    bool
	closed   bool
}

type openFlags struct {
	read, write, append, truncate, exclusive bool
}

func parseMode(mode string) (openFlags, error) {
	var f openFlags
	plus := strings.Contains(mode, "+")
	switch strings.Trim(mode, "bt+") {
	case "", "r":
		f.read = true
		f.write = plus
	case "w":
		f.write, f.truncate = true, true
		f.read = plus
	case "a":
		f.write, f.append = true, true
		f.read = plus
	case "x":
		f.write, f.exclusive = true, true
		f.read = plus
	default:
		return f, store.NewInvalidArgumentError(mode, "invalid mode")
	}
	return f, nil
}

// Open opens the object at p. A directory fails with ErrIsADirectory. An
// absent path creates a new object of type FileTypeID placed at p; its
// parent directory must exist.
//
// Modes follow fopen: "r", "w", "a", "x", each optionally with "+".
func (o *OS) Open(ctx context.Context, p string, mode string) (*File, error) {
	flags, err := parseMode(mode)
	if err != nil {
		return nil, err
	}

	f := &File{
		ctx:      ctx,
		os:       o,
		name:     p,
		readable: flags.read,
		writable: flags.write,
		append:   flags.append,
	}

	e, err := o.lookup(ctx, p)
	switch {
	case err == nil:
		if e.IsDir() {
			return nil, store.NewError(store.ErrIsADirectory, p)
		}
		if flags.exclusive {
			return nil, store.NewAlreadyExistsError(p)
		}
		obj, err := o.sess.Store().Load(ctx, e.ID)
		if err != nil {
			return nil, store.WithPath(err, p)
		}
		f.obj = store.Object{ID: obj.ID, TypeID: obj.TypeID}
		if !flags.truncate {
			f.data = bytes.Clone(obj.Payload)
		}
		f.dirty = flags.truncate && len(obj.Payload) > 0

	case store.IsCode(err, store.ErrNotFound):
		abs := o.Abspath(p)
		if _, err := o.fs().LookupDir(ctx, fspath.Dir(abs)); err != nil {
			return nil, store.WithPath(err, p)
		}
		obj := &store.Object{TypeID: FileTypeID}
		if _, err := o.sess.Save(ctx, obj, abs); err != nil {
			return nil, store.WithPath(err, p)
		}
		f.obj = store.Object{ID: obj.ID, TypeID: obj.TypeID}

	default:
		return nil, err
	}

	if f.append {
		f.off = int64(len(f.data))
	}
	return f, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.name }

// ID returns the object id.
func (f *File) ID() store.ObjectID { return f.obj.ID }

// TypeID returns the object type.
func (f *File) TypeID() string { return f.obj.TypeID }

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	if !f.readable {
		return 0, store.NewInvalidArgumentError(f.name, "file not open for reading")
	}
	if f.off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.off:])
	f.off += int64(n)
	return n, nil
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	if !f.writable {
		return 0, store.NewInvalidArgumentError(f.name, "file not open for writing")
	}
	if f.append {
		f.off = int64(len(f.data))
	}
	end := f.off + int64(len(p))
	if end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	copy(f.data[f.off:], p)
	f.off = end
	f.dirty = true
	return len(p), nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.off + offset
	case io.SeekEnd:
		abs = int64(len(f.data)) + offset
	default:
		return 0, store.NewInvalidArgumentError(f.name, "invalid whence")
	}
	if abs < 0 {
		return 0, store.NewInvalidArgumentError(f.name, "negative offset")
	}
	f.off = abs
	return abs, nil
}

// Sync saves pending writes as a new version.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.syncLocked()
}

func (f *File) syncLocked() error {
	if !f.dirty {
		return nil
	}
	obj := &store.Object{ID: f.obj.ID, TypeID: f.obj.TypeID, Payload: bytes.Clone(f.data)}
	if _, err := f.os.sess.Store().Save(f.ctx, obj); err != nil {
		return store.WithPath(err, f.name)
	}
	f.dirty = false
	return nil
}

// Close saves pending writes and releases the handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	err := f.syncLocked()
	f.closed = true
	return err
}

var _ io.ReadWriteSeeker = (*File)(nil)
