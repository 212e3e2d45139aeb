package rsync

import (
	"context"

	"github.com/marmos91/objfs/internal/ratelimiter"
	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/registry"
	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/store"
)

// SyncPaths syncs each source to dst. Addresses are paths of the session's
// filesystem or "name:path" strings naming a store in reg; remote paths are
// resolved against the root.
//
// All sources must come from the same store: mixing two remotes, or a
// remote and the session, fails with ErrInvalidArgument.
func SyncPaths(ctx context.Context, reg *registry.Registry, sess *session.Session, srcs []string, dst string, opts Options) (*Result, error) {
	if len(srcs) == 0 {
		return nil, store.NewInvalidArgumentError(dst, "no source paths")
	}

	var (
		addrs  []registry.Address
		remote string
	)
	for i, s := range srcs {
		a, err := registry.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		if i > 0 && a.Remote != remote {
			return nil, store.NewInvalidArgumentError(s, "sources must come from a single store")
		}
		remote = a.Remote
		addrs = append(addrs, a)
	}

	dstAddr, err := registry.ParseAddress(dst)
	if err != nil {
		return nil, err
	}
	dstEnd, err := resolve(reg, sess, dstAddr)
	if err != nil {
		return nil, err
	}
	if !dstAddr.IsLocal() {
		r, err := reg.Get(dstAddr.Remote)
		if err != nil {
			return nil, err
		}
		if r.ReadOnly {
			return nil, store.NewInvalidArgumentError(dst, "destination store is read-only")
		}
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RateLimit > 0 {
		opts.limiter = ratelimiter.New(opts.RateLimit, max(opts.RateLimit, uint(opts.BatchSize)))
	}

	total := &Result{}
	for _, a := range addrs {
		srcEnd, err := resolve(reg, sess, a)
		if err != nil {
			return total, err
		}
		if srcEnd.FS == dstEnd.FS {
			return total, store.NewInvalidArgumentError(a.String(), "source and destination are the same store")
		}
		res, err := Sync(ctx, srcEnd, dstEnd, opts)
		if res != nil {
			total.add(res)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func resolve(reg *registry.Registry, sess *session.Session, a registry.Address) (Endpoint, error) {
	if a.IsLocal() {
		if sess == nil {
			return Endpoint{}, store.NewInvalidArgumentError(a.Path, "no session for a local path")
		}
		return Endpoint{FS: sess.FS(), Path: keepDir(a.Path, sess.Abs(a.Path))}, nil
	}
	if reg == nil {
		return Endpoint{}, store.Errorf(store.ErrNotFound, a.String(), "no store registry")
	}
	fs, err := reg.FS(a.Remote)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{FS: fs, Path: keepDir(a.Path, fspath.Join(fspath.Root, a.Path))}, nil
}

// keepDir carries a trailing separator of the written path over to abs.
func keepDir(written, abs string) string {
	if fspath.IsDirPath(written) {
		return fspath.ToDir(abs)
	}
	return abs
}
