package vfs

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
)

// Legacy placement keys. Before the edge collection existed, the directory
// of an object lived in its metadata document.
const (
	LegacyDirectoryKey = "_directory"
	LegacyNameKey      = "_name"
)

type migration struct {
	name  string
	apply func(ctx context.Context, fs *FS) error
}

// migrations is the ordered ladder. The stored schema version counts how
// many of them have been applied.
var migrations = []migration{
	{name: "legacy metadata indexes", apply: migrateMetaIndexes},
	{name: "edge collection", apply: migrateEdgeCollection},
}

// SchemaVersion is the version a fully migrated store reports.
func SchemaVersion() int {
	return len(migrations)
}

// Migrate applies pending migrations in order, bumping the stored version
// after each one.
func (fs *FS) Migrate(ctx context.Context) (err error) {
	defer fs.observe("migrate", time.Now(), &err)

	current, err := fs.store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return store.Errorf(store.ErrInvalidArgument, "",
			"store schema version %d is newer than supported version %d", current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		m := migrations[i]
		logger.Info("Applying migration %d (%s)", i, m.name)
		if err := m.apply(ctx, fs); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i, m.name, err)
		}
		if err := fs.store.SetSchemaVersion(ctx, i+1); err != nil {
			return fmt.Errorf("migration %d (%s): bump version: %w", i, m.name, err)
		}
	}
	return nil
}

func migrateMetaIndexes(ctx context.Context, fs *FS) error {
	return fs.store.EnsureMetaIndexes(ctx, LegacyDirectoryKey)
}

// migrateEdgeCollection creates the edge indexes and the root, then moves
// legacy metadata placements into edges.
func migrateEdgeCollection(ctx context.Context, fs *FS) error {
	if err := fs.store.EnsureEntryIndexes(ctx); err != nil {
		return err
	}

	err := fs.store.InsertEntries(ctx, []store.Entry{RootEntry(time.Now().UTC())})
	if err != nil && !store.IsCode(err, store.ErrDuplicateKey) {
		return fmt.Errorf("insert root: %w", err)
	}

	ids, err := fs.store.FindMeta(ctx, store.Filter{LegacyDirectoryKey: store.Filter{"$exists": true}}, nil)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	metas, err := fs.store.GetMeta(ctx, ids)
	if err != nil {
		return err
	}

	moved := 0
	for _, id := range ids {
		meta := metas[id]
		dir, _ := meta[LegacyDirectoryKey].(string)
		if dir == "" || !fspath.IsAbs(dir) {
			logger.Warn("Skipping legacy placement of %s: bad directory %q", id, dir)
			continue
		}
		name, _ := meta[LegacyNameKey].(string)
		if name == "" {
			name = string(id)
		}
		if _, err := fs.MakeDirs(ctx, fspath.ToDir(dir), true); err != nil {
			return err
		}

		target := fspath.ToDir(dir) + name
		_, err := fs.Execute(ctx, SetObjPath{ObjID: id, Path: target, OnlyNew: true})
		switch {
		case err == nil:
			moved++
		case store.IsCode(err, store.ErrAlreadyExists):
			logger.Warn("Skipping legacy placement of %s: %s is taken", id, target)
		default:
			return err
		}
	}
	logger.Info("Moved %d legacy placements into the edge collection", moved)

	return fs.store.UnsetMeta(ctx, ids, LegacyDirectoryKey, LegacyNameKey)
}
