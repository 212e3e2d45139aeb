package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/metrics"
	"github.com/marmos91/objfs/pkg/registry"
	"github.com/marmos91/objfs/pkg/vfs"
)

// OpenFS creates the object store described by cfg and binds a filesystem
// to it, applying pending schema migrations. The store is closed again if
// the filesystem cannot be opened.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Store configuration (the top-level store or a remote's store)
//   - fsMetrics: Metrics collector (nil = no metrics)
func OpenFS(ctx context.Context, cfg *StoreConfig, fsMetrics metrics.FSMetrics) (*vfs.FS, error) {
	st, err := CreateObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fs, err := vfs.New(ctx, st, vfs.Options{
		Metrics:   fsMetrics,
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		return nil, errors.Join(err, st.Close())
	}

	return fs, nil
}

// InitializeRegistry creates a Registry holding every configured remote.
//
// Each remote's store is created and opened as a filesystem. On failure the
// stores opened so far are closed.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
//	defer reg.Close()
func InitializeRegistry(ctx context.Context, cfg *Config, fsMetrics metrics.FSMetrics) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	logger.Debug("Initializing registry from configuration")

	reg := registry.NewRegistry()
	for i := range cfg.Remotes {
		rc := &cfg.Remotes[i]
		logger.Debug("Opening remote %q (type: %s, read_only: %v)", rc.Name, rc.Store.Type, rc.ReadOnly)

		fs, err := OpenFS(ctx, &rc.Store, fsMetrics)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to open remote %q: %w", rc.Name, err), reg.Close())
		}

		if err := reg.Register(&registry.Remote{Name: rc.Name, FS: fs, ReadOnly: rc.ReadOnly}); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to register remote %q: %w", rc.Name, err), fs.Store().Close(), reg.Close())
		}
	}

	logger.Debug("Registered %d remote(s)", reg.Count())
	return reg, nil
}
