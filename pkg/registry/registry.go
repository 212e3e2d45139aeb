// Package registry keeps the named object stores a process can address,
// such as the remotes used as rsync endpoints.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// Registry manages named filesystems. It is safe for concurrent use.
//
// Example usage:
//
//	reg := registry.NewRegistry()
//	reg.Register(&registry.Remote{Name: "archive", FS: archiveFS})
//
//	fs, _ := reg.FS("archive")
type Registry struct {
	mu      sync.RWMutex
	remotes map[string]*Remote
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		remotes: make(map[string]*Remote),
	}
}

// Register adds a named filesystem. Returns an error if the name is empty,
// malformed or already taken.
func (r *Registry) Register(remote *Remote) error {
	if remote == nil || remote.FS == nil {
		return fmt.Errorf("cannot register nil filesystem")
	}
	if err := ValidName(remote.Name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.remotes[remote.Name]; exists {
		return fmt.Errorf("store %q already registered", remote.Name)
	}
	r.remotes[remote.Name] = remote
	return nil
}

// Remove unregisters a name without closing its store.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.remotes[name]; !exists {
		return store.NewNotFoundError(name)
	}
	delete(r.remotes, name)
	return nil
}

// Get returns the remote registered under name.
func (r *Registry) Get(name string) (*Remote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	remote, exists := r.remotes[name]
	if !exists {
		return nil, store.Errorf(store.ErrNotFound, name, "no store registered under this name")
	}
	return remote, nil
}

// FS returns the filesystem registered under name.
func (r *Registry) FS(name string) (*vfs.FS, error) {
	remote, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return remote.FS, nil
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.remotes[name]
	return exists
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.remotes))
	for name := range r.remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered stores.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.remotes)
}

// Close closes every registered store and empties the registry. Stores
// shared between names are closed once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	closed := make(map[store.ObjectStore]bool)
	for name, remote := range r.remotes {
		st := remote.FS.Store()
		if !closed[st] {
			closed[st] = true
			if err := st.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store %q: %w", name, err))
			}
		}
	}
	r.remotes = make(map[string]*Remote)
	return errors.Join(errs...)
}
