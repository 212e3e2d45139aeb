// Package mongo implements store.ObjectStore on MongoDB.
//
// The edge collection, the settings document, the record catalog and the
// metadata index map to four collections of one database. Path resolution
// and subtree queries run server side with $graphLookup, and the unique
// (parent, name) index is a real compound unique index.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/content"
	contentmemory "github.com/marmos91/objfs/pkg/content/memory"
	"github.com/marmos91/objfs/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	// EntriesCollection holds the directory tree edges.
	EntriesCollection = "pyos_fs"

	// SettingsCollection holds the schema settings document.
	SettingsCollection = "pyos"

	// RecordsCollection holds one document per object version.
	RecordsCollection = "pyos_records"

	// MetaCollection holds one metadata document per object.
	MetaCollection = "pyos_meta"

	settingsID = "settings"
)

// MongoObjectStore implements store.ObjectStore on a MongoDB database.
//
// Thread Safety:
// The driver client is safe for concurrent use. Object writes issued
// through one handle are serialized by writeMu so listeners see batches in
// commit order; writers on other handles are not coordinated beyond the
// unique indexes.
type MongoObjectStore struct {
	client *mongo.Client
	db     *mongo.Database

	entries  *mongo.Collection
	settings *mongo.Collection
	records  *mongo.Collection
	meta     *mongo.Collection

	writeMu   chan struct{}
	content   content.Store
	listeners *store.Listeners
	live      *store.LiveCache
}

// MongoObjectStoreConfig contains configuration for connecting to MongoDB.
type MongoObjectStoreConfig struct {
	// URI is the connection string, e.g. mongodb://localhost:27017.
	URI string `mapstructure:"uri" validate:"required"`

	// Database is the database holding the collections.
	Database string `mapstructure:"database" validate:"required"`

	// ConnectTimeout bounds the initial connection and ping (default: 10s).
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Content holds object payloads. A fresh in-memory content store is
	// used when nil.
	Content content.Store `mapstructure:"-"`
}

// NewMongoObjectStore connects to MongoDB and verifies the server is
// reachable.
func NewMongoObjectStore(ctx context.Context, config MongoObjectStoreConfig) (*MongoObjectStore, error) {
	if config.URI == "" || config.Database == "" {
		return nil, fmt.Errorf("mongo object store requires uri and database")
	}

	timeout := config.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	cs := config.Content
	if cs == nil {
		cs = contentmemory.NewMemoryContentStore()
	}

	db := client.Database(config.Database)
	s := &MongoObjectStore{
		client:    client,
		db:        db,
		entries:   db.Collection(EntriesCollection),
		settings:  db.Collection(SettingsCollection),
		records:   db.Collection(RecordsCollection),
		meta:      db.Collection(MetaCollection),
		writeMu:   make(chan struct{}, 1),
		content:   cs,
		listeners: store.NewListeners(),
		live:      store.NewLiveCache(),
	}

	if err := s.ensureRecordIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Debug("Connected mongo object store (database=%s)", config.Database)
	return s, nil
}

// lockWrites acquires the object write lock or fails when ctx is done.
func (s *MongoObjectStore) lockWrites(ctx context.Context) error {
	select {
	case s.writeMu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MongoObjectStore) unlockWrites() {
	<-s.writeMu
}

func (s *MongoObjectStore) ensureRecordIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "obj_id", Value: 1}, {Key: "version", Value: -1}}},
		{Keys: bson.D{{Key: "type_id", Value: 1}}},
	})
	return translate(err, "create record indexes")
}

// Subscribe registers a bulk-write listener.
func (s *MongoObjectStore) Subscribe(l store.BulkWriteListener) func() {
	return s.listeners.Subscribe(l)
}

// Healthcheck pings the primary.
func (s *MongoObjectStore) Healthcheck(ctx context.Context) error {
	return translate(s.client.Ping(ctx, readpref.Primary()), "ping")
}

// Close disconnects the client.
func (s *MongoObjectStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}
	return nil
}

// Drop removes every collection of the store. It is used by tests and by
// `objfs init --force`.
func (s *MongoObjectStore) Drop(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.entries, s.settings, s.records, s.meta} {
		if err := c.Drop(ctx); err != nil {
			return translate(err, "drop "+c.Name())
		}
	}
	return nil
}

// String identifies the backend in logs.
func (s *MongoObjectStore) String() string {
	return "mongo"
}

// ============================================================================
// Settings
// ============================================================================

// SchemaVersion reads the settings document, zero when absent.
func (s *MongoObjectStore) SchemaVersion(ctx context.Context) (int, error) {
	var doc struct {
		SchemaVersion int `bson:"schema_version"`
	}
	err := s.settings.FindOne(ctx, bson.M{"_id": settingsID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, translate(err, "read settings")
	}
	return doc.SchemaVersion, nil
}

// SetSchemaVersion upserts the settings document.
func (s *MongoObjectStore) SetSchemaVersion(ctx context.Context, version int) error {
	if version < 0 {
		return store.NewInvalidArgumentError("", fmt.Sprintf("negative schema version %d", version))
	}
	_, err := s.settings.UpdateOne(ctx,
		bson.M{"_id": settingsID},
		bson.M{"$set": bson.M{"schema_version": version}},
		options.UpdateOne().SetUpsert(true),
	)
	return translate(err, "write settings")
}

// ============================================================================
// Error translation
// ============================================================================

// translate maps driver errors onto store error codes.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return &store.StoreError{Code: store.ErrDuplicateKey, Message: "duplicate key", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 2 {
		// BadValue: malformed query operators
		return store.NewInvalidArgumentError("", cmdErr.Message)
	}
	return store.WrapBackend(err, op)
}

// ============================================================================
// BSON normalization
// ============================================================================

// plain converts decoded BSON values into the plain Go shapes the filter
// matcher and metadata API use: map[string]any, []any and time.Time.
func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	case bson.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func idStrings(ids []store.ObjectID) bson.A {
	out := make(bson.A, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
