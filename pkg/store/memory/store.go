package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/objfs/pkg/content"
	contentmemory "github.com/marmos91/objfs/pkg/content/memory"
	"github.com/marmos91/objfs/pkg/store"
)

// MemoryObjectStore implements store.ObjectStore entirely in memory.
//
// Characteristics:
//   - Volatile: all collections are lost on restart
//   - Thread-safe: one RWMutex guards every collection
//   - Object writes are serialized so listeners observe batches in commit order
//
// The unique (parent, name) index is the children map: a slot holds exactly
// one child id.
type MemoryObjectStore struct {
	mu sync.RWMutex

	// writeMu serializes object writes across the notify/commit gap
	writeMu sync.Mutex

	entries  map[store.ObjectID]store.Entry
	children map[store.ObjectID]map[string]store.ObjectID

	schemaVersion int

	records map[store.ObjectID][]store.Record
	meta    map[store.ObjectID]store.Meta

	metaIndexes map[string]struct{}

	content   content.Store
	listeners *store.Listeners
	live      *store.LiveCache
}

// MemoryObjectStoreConfig configures the in-memory store.
type MemoryObjectStoreConfig struct {
	// Content holds object payloads. A fresh in-memory content store is used
	// when nil.
	Content content.Store
}

// NewMemoryObjectStore creates an empty store.
func NewMemoryObjectStore(cfg MemoryObjectStoreConfig) *MemoryObjectStore {
	cs := cfg.Content
	if cs == nil {
		cs = contentmemory.NewMemoryContentStore()
	}
	return &MemoryObjectStore{
		entries:     make(map[store.ObjectID]store.Entry),
		children:    make(map[store.ObjectID]map[string]store.ObjectID),
		records:     make(map[store.ObjectID][]store.Record),
		meta:        make(map[store.ObjectID]store.Meta),
		metaIndexes: make(map[string]struct{}),
		content:     cs,
		listeners:   store.NewListeners(),
		live:        store.NewLiveCache(),
	}
}

// Subscribe registers a bulk-write listener.
func (s *MemoryObjectStore) Subscribe(l store.BulkWriteListener) func() {
	return s.listeners.Subscribe(l)
}

// Healthcheck always succeeds unless ctx is done.
func (s *MemoryObjectStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryObjectStore) Close() error {
	return nil
}

// SchemaVersion returns the stored schema version.
func (s *MemoryObjectStore) SchemaVersion(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaVersion, nil
}

// SetSchemaVersion records the schema version.
func (s *MemoryObjectStore) SetSchemaVersion(ctx context.Context, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if version < 0 {
		return fmt.Errorf("negative schema version %d", version)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaVersion = version
	return nil
}

// String identifies the backend in logs.
func (s *MemoryObjectStore) String() string {
	return "memory"
}
