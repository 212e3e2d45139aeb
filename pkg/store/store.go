package store

import (
	"context"
	"io"
)

// ============================================================================
// ObjectStore Interface
// ============================================================================

// ObjectStore is the document store capability consumed by the virtual
// filesystem.
//
// It bundles four collections behind one handle:
//   - the edge collection (pyos_fs) holding the directory tree
//   - the settings document (pyos) holding the schema version
//   - the record catalog holding the version history of every object
//   - the metadata index keyed by object id
//
// Object payloads are persisted through a content store keyed by the record's
// ContentID; the ObjectStore owns that coordination.
//
// Write Notification:
// Object writes (Save, Delete, Merge) are announced to subscribed listeners
// with the ordered list of WriteEvents just before the batch commits. The
// listener runs synchronously on the writer's goroutine with the writer's
// context, and must not assume the records are visible yet.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type ObjectStore interface {
	EntryStore
	SettingsStore
	RecordCatalog
	MetaIndex
	Objects

	// Subscribe registers a bulk-write listener. The returned function
	// removes it and is safe to call more than once.
	Subscribe(l BulkWriteListener) (cancel func())

	// Healthcheck verifies the backend is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// BulkWriteListener receives the events of one object write batch.
type BulkWriteListener func(ctx context.Context, events []WriteEvent)

// ============================================================================
// Edge Collection
// ============================================================================

// EntryStore persists the edges of the filesystem tree.
//
// Every implementation enforces that (Parent, Name) is unique among entries
// and reports violations as ErrDuplicateKey.
type EntryStore interface {
	// EnsureEntryIndexes creates the parent index and the unique
	// (parent, name) index. It is idempotent.
	EnsureEntryIndexes(ctx context.Context) error

	// InsertEntries inserts entries in order. On failure the returned error
	// is a *BulkWriteError whose Index names the rejected entry; entries
	// before it are kept.
	InsertEntries(ctx context.Context, entries []Entry) error

	// GetEntries returns the entries that exist among ids, in the order of
	// ids. Missing ids are skipped.
	GetEntries(ctx context.Context, ids []ObjectID) ([]Entry, error)

	// Walk resolves names hop by hop starting at from.
	//
	// The result starts with the from entry and holds one entry per resolved
	// name. A result shorter than len(names)+1 means the walk stopped at the
	// first name with no match. An empty result means from does not exist.
	// The whole walk is one round trip.
	Walk(ctx context.Context, from ObjectID, names []string) ([]Entry, error)

	// Children lists the children of parent ordered by name.
	Children(ctx context.Context, parent ObjectID, q ChildrenQuery) ([]Entry, error)

	// ScanEntries pages over all entries ordered by id.
	ScanEntries(ctx context.Context, q ScanQuery) ([]Entry, error)

	// Descendants returns every entry below id. Children of id are at depth
	// 0; entries deeper than maxDepth are skipped unless maxDepth < 0. The
	// entry itself is not included and the order is unspecified.
	Descendants(ctx context.Context, id ObjectID, maxDepth int) ([]Entry, error)

	// Ancestors returns the chain from the root down to id, inclusive. A
	// chain that does not start at a root entry means an edge is dangling.
	Ancestors(ctx context.Context, id ObjectID) ([]Entry, error)

	// BulkWrite applies ops in order and stops at the first failure, which
	// is returned as a *BulkWriteError alongside the partial result.
	BulkWrite(ctx context.Context, ops []EntryOp) (BulkResult, error)
}

// ChildrenQuery pages and filters Children.
type ChildrenQuery struct {
	// AfterName resumes listing after this name (exclusive).
	AfterName string

	// Limit caps the page size; zero means no limit.
	Limit int

	// Type restricts the kind of children; EntryAny lists both.
	Type EntryType
}

// ScanQuery pages ScanEntries.
type ScanQuery struct {
	AfterID ObjectID
	Limit   int
	Type    EntryType
}

// ============================================================================
// Settings
// ============================================================================

// SettingsStore holds the settings document of the filesystem schema.
type SettingsStore interface {
	// SchemaVersion returns the number of applied migrations (zero when the
	// settings document does not exist).
	SchemaVersion(ctx context.Context) (int, error)

	// SetSchemaVersion records the number of applied migrations.
	SetSchemaVersion(ctx context.Context, version int) error
}

// ============================================================================
// Record Catalog
// ============================================================================

// RecordCatalog exposes the version history of objects.
type RecordCatalog interface {
	// Records returns the latest record of each object selected by q.
	Records(ctx context.Context, q RecordQuery) ([]Record, error)

	// Snapshots returns records with payloads for ids, ordered by object and
	// version. Without history only the latest record of each id is
	// returned.
	Snapshots(ctx context.Context, ids []ObjectID, history bool) ([]Snapshot, error)

	// Merge inserts snapshots whose (object, version) is not present yet.
	// Listeners are notified of the merged records.
	Merge(ctx context.Context, snapshots []Snapshot) (MergeResult, error)
}

// RecordQuery selects latest records.
type RecordQuery struct {
	// IDs restricts to these objects; nil means all objects.
	IDs []ObjectID

	// TypeID restricts to objects of this type.
	TypeID string

	// State selects live, deleted or all objects; empty means live.
	State State

	// Filter is evaluated against Record.Doc.
	Filter Filter
}

// ============================================================================
// Metadata Index
// ============================================================================

// MetaIndex stores one metadata document per object.
type MetaIndex interface {
	// EnsureMetaIndexes creates indexes on the given metadata keys.
	EnsureMetaIndexes(ctx context.Context, keys ...string) error

	// SetMeta replaces the metadata of id.
	SetMeta(ctx context.Context, id ObjectID, meta Meta) error

	// UpdateMeta merges meta into the metadata of id field by field.
	UpdateMeta(ctx context.Context, id ObjectID, meta Meta) error

	// UnsetMeta removes keys from the metadata of every listed id.
	UnsetMeta(ctx context.Context, ids []ObjectID, keys ...string) error

	// GetMeta returns the metadata of the ids that have any.
	GetMeta(ctx context.Context, ids []ObjectID) (map[ObjectID]Meta, error)

	// FindMeta returns the ids whose metadata matches filter, restricted to
	// ids when it is not nil.
	FindMeta(ctx context.Context, filter Filter, ids []ObjectID) ([]ObjectID, error)

	// DistinctMeta returns the distinct values of key among the metadata
	// documents matching filter.
	DistinctMeta(ctx context.Context, key string, filter Filter) ([]any, error)
}

// ============================================================================
// Objects
// ============================================================================

// Objects loads and saves live objects.
type Objects interface {
	// Save writes one new version of each object and returns the new
	// records in order. Objects without an id get one minted. The write is
	// announced to listeners as one batch.
	Save(ctx context.Context, objs ...*Object) ([]Record, error)

	// Load returns the latest live version of id.
	Load(ctx context.Context, id ObjectID) (*Object, error)

	// Delete writes a tombstone record for each id.
	Delete(ctx context.Context, ids ...ObjectID) error

	// Open returns a reader over the latest payload of id.
	Open(ctx context.Context, id ObjectID) (io.ReadCloser, error)

	// IsLoaded reports whether id is resident in the live-object cache.
	IsLoaded(id ObjectID) bool
}
