// Package gc removes stray edges from the filesystem tree.
//
// An object edge is stray when its object has no live record: the object was
// deleted while no session was listening, or it never reached the record
// catalog. Listings already hide such edges; the collector removes them.
// This can occur due to:
//   - Deletes issued by clients without a session
//   - Listener failures, which are logged and dropped
//   - Edges replicated ahead of their records
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/vfs"
)

// Collector performs periodic garbage collection of stray edges.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	fs       *vfs.FS
	config   Config
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether periodic collection runs (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to run garbage collection (default: 24h)
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// BatchSize is how many edges are scanned and removed per round trip
	// (default: 1000)
	BatchSize int `mapstructure:"batch_size" validate:"omitempty,gt=0" yaml:"batch_size"`

	// DryRun logs what would be removed without removing it
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// NewCollector creates a garbage collector over fs. It is not started.
func NewCollector(fs *vfs.FS, config Config) (*Collector, error) {
	if fs == nil {
		return nil, fmt.Errorf("garbage collector needs a filesystem")
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}

	return &Collector{
		fs:     fs,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins background garbage collection at the configured interval.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	logger.Info("Starting garbage collector: interval=%s batch_size=%d dry_run=%v",
		c.config.Interval, c.config.BatchSize, c.config.DryRun)

	c.started = true
	go c.worker()
}

// Stop signals the worker and waits for an in-progress run to finish.
// Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping garbage collector...")
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one collection and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect pages over the object edges ordered by id, checks each page
// against the record catalog and removes the edges without a live record.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	st := c.fs.Store()

	var after store.ObjectID
	for {
		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}

		page, err := st.ScanEntries(ctx, store.ScanQuery{
			AfterID: after,
			Limit:   c.config.BatchSize,
			Type:    store.EntryObj,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to scan edges: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ID
		stats.ScannedCount += uint64(len(page))

		stray, err := c.strays(ctx, page)
		if err != nil {
			return stats, err
		}
		stats.StrayCount += uint64(len(stray))

		if len(stray) > 0 {
			if c.config.DryRun {
				for _, id := range stray {
					logger.Info("GC: DRY RUN - would remove stray edge %s", id)
				}
			} else {
				n, err := c.fs.RemoveObjs(ctx, stray)
				if err != nil {
					logger.Warn("GC: Batch remove failed: %v", err)
					stats.FailedCount += uint64(len(stray))
				} else {
					stats.RemovedCount += uint64(n)
					c.fs.Metrics().RecordStrayEdges(n)
				}
			}
		}

		if len(page) < c.config.BatchSize {
			break
		}
	}

	stats.EndTime = time.Now()
	logger.Info("GC: Completed - %s", stats.Summary())
	return stats, nil
}

func (c *Collector) strays(ctx context.Context, page []store.Entry) ([]store.ObjectID, error) {
	ids := make([]store.ObjectID, len(page))
	for i, e := range page {
		ids[i] = e.ID
	}
	live, err := c.fs.Store().Records(ctx, store.RecordQuery{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	alive := make(map[store.ObjectID]bool, len(live))
	for _, r := range live {
		alive[r.ObjID] = true
	}

	var out []store.ObjectID
	for _, id := range ids {
		if !alive[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime    time.Time // When collection started
	EndTime      time.Time // When collection ended
	ScannedCount uint64    // Object edges scanned
	StrayCount   uint64    // Edges without a live record
	RemovedCount uint64    // Stray edges removed
	FailedCount  uint64    // Stray edges that failed to be removed
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("scanned=%d stray=%d removed=%d failed=%d duration=%s",
		s.ScannedCount, s.StrayCount, s.RemovedCount, s.FailedCount, s.Duration())
}
