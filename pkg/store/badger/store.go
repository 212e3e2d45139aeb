// Package badger implements store.ObjectStore on an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/codec"
	"github.com/marmos91/objfs/pkg/content"
	contentfs "github.com/marmos91/objfs/pkg/content/fs"
	contentmemory "github.com/marmos91/objfs/pkg/content/memory"
	"github.com/marmos91/objfs/pkg/store"
)

// BadgerObjectStore implements store.ObjectStore using BadgerDB for
// persistence.
//
// It is suitable for single-node deployments that need the filesystem to
// survive restarts without running a document server.
//
// Key Features:
//   - Persistent storage with crash recovery (WAL-based)
//   - Walk, Descendants and Ancestors each read one snapshot
//   - Entry bulk writes commit in a single transaction when they fit
//   - Efficient range scans for children listings and record history
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use. Entry bulk writes are
// serialized by entryMu so the unique (parent, name) check and the write
// happen atomically with respect to other writers. Object writes are
// serialized by writeMu across the notify/commit gap.
type BadgerObjectStore struct {
	db *badger.DB

	entryMu sync.Mutex
	writeMu sync.Mutex

	content   content.Store
	listeners *store.Listeners
	live      *store.LiveCache
}

// BadgerObjectStoreConfig contains configuration for creating a BadgerDB
// object store.
type BadgerObjectStoreConfig struct {
	// DBPath is the directory where BadgerDB stores its files.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in memory. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// Content holds object payloads. When nil, payloads go to a filesystem
	// content store under DBPath/content (or memory when InMemory is set).
	Content content.Store `mapstructure:"-"`

	// BadgerOptions allows customization of BadgerDB behavior.
	// If nil, sensible defaults are used.
	BadgerOptions *badger.Options `mapstructure:"-"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerObjectStore opens (or creates) the database described by config.
//
// Example:
//
//	st, err := NewBadgerObjectStore(ctx, BadgerObjectStoreConfig{
//	    DBPath: "/var/lib/objfs/db",
//	})
func NewBadgerObjectStore(ctx context.Context, config BadgerObjectStoreConfig) (*BadgerObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			if config.DBPath == "" {
				return nil, fmt.Errorf("badger object store requires db_path")
			}
			opts = badger.DefaultOptions(config.DBPath)
		}

		// Documents are small; compression is not worth the CPU.
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)

		blockCacheMB := config.BlockCacheSizeMB
		if blockCacheMB == 0 {
			blockCacheMB = 64
		}
		indexCacheMB := config.IndexCacheSizeMB
		if indexCacheMB == 0 {
			indexCacheMB = 32
		}
		opts = opts.WithBlockCacheSize(blockCacheMB << 20)
		opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	}

	cs := config.Content
	if cs == nil {
		if config.InMemory || opts.InMemory {
			cs = contentmemory.NewMemoryContentStore()
		} else {
			fsStore, err := contentfs.NewFSContentStore(ctx, filepath.Join(opts.Dir, "content"))
			if err != nil {
				return nil, fmt.Errorf("failed to create content store: %w", err)
			}
			cs = fsStore
		}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", opts.Dir, err)
	}

	logger.Debug("Opened badger object store at %q (in-memory=%v)", opts.Dir, opts.InMemory)

	return &BadgerObjectStore{
		db:        db,
		content:   cs,
		listeners: store.NewListeners(),
		live:      store.NewLiveCache(),
	}, nil
}

// Subscribe registers a bulk-write listener.
func (s *BadgerObjectStore) Subscribe(l store.BulkWriteListener) func() {
	return s.listeners.Subscribe(l)
}

// Healthcheck fails once the database is closed.
func (s *BadgerObjectStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return store.Errorf(store.ErrBackend, "", "badger database is closed")
	}
	return nil
}

// Close closes the BadgerDB database and releases all resources.
//
// After calling Close, the store must not be used.
func (s *BadgerObjectStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// String identifies the backend in logs.
func (s *BadgerObjectStore) String() string {
	return "badger"
}

// ============================================================================
// Settings
// ============================================================================

type settingsDoc struct {
	SchemaVersion int `cbor:"schema_version"`
}

// SchemaVersion returns the stored schema version, zero when unset.
func (s *BadgerObjectStore) SchemaVersion(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var doc settingsDoc
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getDoc(txn, keySettings(), &doc)
		return err
	})
	if err != nil {
		return 0, store.WrapBackend(err, "read settings")
	}
	return doc.SchemaVersion, nil
}

// SetSchemaVersion records the schema version.
func (s *BadgerObjectStore) SetSchemaVersion(ctx context.Context, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if version < 0 {
		return store.NewInvalidArgumentError("", fmt.Sprintf("negative schema version %d", version))
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return setDoc(txn, keySettings(), settingsDoc{SchemaVersion: version})
	})
	return store.WrapBackend(err, "write settings")
}

// ============================================================================
// Encoding helpers
// ============================================================================

// getDoc decodes the value at key into v. A missing key reports false.
func getDoc(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return codec.Unmarshal(val, v)
	})
}

func setDoc(txn *badger.Txn, key []byte, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}
