// Package session holds the per-client state of the virtual filesystem: the
// current working directory, the home directory convention and the listener
// that keeps the tree in step with object writes.
//
// Listener behavior:
// A session subscribes to its store's bulk writes. Every object inserted at
// version 0 is placed at the session's cwd under its id with an only-new
// upsert, and every tombstone removes the object's edge. Placement is
// idempotent: repeated or duplicated events never create a second edge and
// never move an object the user already placed elsewhere. Listener failures
// are logged and dropped so they cannot block the write path.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/rs/zerolog"
)

// DefaultHomeRoot is the parent of per-user home directories.
const DefaultHomeRoot = "/home/"

// Options configures a Session.
type Options struct {
	// Cwd is the initial working directory (default: "/"). It must exist.
	Cwd string

	// User names the session's user. It picks the default home directory.
	User string

	// Home overrides the home directory (default: /home/<User>/, or "/"
	// without a user).
	Home string
}

// Session is one logical connection to a filesystem.
//
// Thread Safety:
// A session is meant to be driven by one client, but its cwd is guarded so
// the listener, which runs on whichever goroutine writes to the store, reads
// a consistent value.
type Session struct {
	fs   *vfs.FS
	user string
	home string
	log  zerolog.Logger

	mu  sync.RWMutex
	cwd string

	cancelOnce sync.Once
	cancel     func()
}

// New opens a session on fs and subscribes its listener to the store.
func New(ctx context.Context, fs *vfs.FS, opts Options) (*Session, error) {
	home := opts.Home
	switch {
	case home != "":
	case opts.User != "":
		home = DefaultHomeRoot + opts.User + "/"
	default:
		home = fspath.Root
	}

	s := &Session{
		fs:   fs,
		user: opts.User,
		home: fspath.ToDir(fspath.Normalize(home)),
		cwd:  fspath.Root,
		log:  logger.With("session"),
	}

	if opts.Cwd != "" {
		if err := s.SetCwd(ctx, opts.Cwd); err != nil {
			return nil, err
		}
	}

	s.cancel = fs.Store().Subscribe(s.onWrite)
	return s, nil
}

// Close unsubscribes the listener. It is safe to call more than once.
func (s *Session) Close() error {
	s.cancelOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

// FS returns the filesystem the session is bound to.
func (s *Session) FS() *vfs.FS {
	return s.fs
}

// Store returns the backing object store.
func (s *Session) Store() store.ObjectStore {
	return s.fs.Store()
}

// User returns the session's user name, possibly empty.
func (s *Session) User() string {
	return s.user
}

// Cwd returns the current working directory with a trailing separator.
func (s *Session) Cwd() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cwd
}

// SetCwd changes the working directory. p may be relative to the current
// one; it must name an existing directory.
func (s *Session) SetCwd(ctx context.Context, p string) error {
	abs := s.Abs(p)
	if _, err := s.fs.LookupDir(ctx, abs); err != nil {
		return store.WithPath(err, p)
	}

	s.mu.Lock()
	s.cwd = fspath.ToDir(abs)
	s.mu.Unlock()
	return nil
}

// Abs resolves p against the working directory and normalizes it. A
// trailing separator on p is kept.
func (s *Session) Abs(p string) string {
	if p == "" {
		return s.Cwd()
	}
	return fspath.Join(s.Cwd(), p)
}

// Home returns the home directory of user, or the session's own home when
// user is empty. Other users' homes are /<user>/.
func (s *Session) Home(user string) string {
	if user == "" || user == s.user {
		return s.home
	}
	return fspath.Root + user + fspath.Separator
}

// Save saves obj and places it at path, relative to the working directory.
// A path ending with a separator names a directory and the object is placed
// in it under its id. The object keeps its place at the cwd if placement
// fails; the error says why.
func (s *Session) Save(ctx context.Context, obj *store.Object, path string) (store.Record, error) {
	recs, err := s.fs.Store().Save(ctx, obj)
	if err != nil {
		return store.Record{}, err
	}
	if path == "" {
		return recs[0], nil
	}

	target := s.Abs(path)
	if fspath.IsDirPath(path) {
		target = fspath.ToDir(target)
	}
	_, err = s.fs.Execute(ctx, vfs.SetObjPath{ObjID: obj.ID, Path: target})
	return recs[0], err
}

// onWrite reacts to object writes before they commit.
func (s *Session) onWrite(ctx context.Context, events []store.WriteEvent) {
	cwd := s.Cwd()

	var (
		place []vfs.Instruction
		drop  []store.ObjectID
	)
	for _, ev := range events {
		switch {
		case ev.Deleted:
			drop = append(drop, ev.ObjID)
		case ev.Kind == store.WriteInsert && ev.Version == 0:
			place = append(place, vfs.SetObjPath{ObjID: ev.ObjID, Path: cwd, OnlyNew: true})
		}
	}

	start := time.Now()
	if len(place) > 0 {
		_, err := s.fs.Execute(ctx, place...)
		s.fs.Metrics().RecordListenerEvent("insert", err)
		if err != nil {
			s.log.Warn().Err(err).Str("cwd", cwd).Int("objects", len(place)).Msg("placing new objects failed")
		}
	}
	if len(drop) > 0 {
		_, err := s.fs.RemoveObjs(ctx, drop)
		s.fs.Metrics().RecordListenerEvent("delete", err)
		if err != nil {
			s.log.Warn().Err(err).Int("objects", len(drop)).Msg("removing deleted objects failed")
		}
	}
	if len(place)+len(drop) > 0 {
		s.log.Debug().Int("placed", len(place)).Int("dropped", len(drop)).Dur("took", time.Since(start)).Msg("listener applied")
	}
}
