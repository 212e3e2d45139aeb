package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/config"
	"github.com/marmos91/objfs/pkg/gc"
	"github.com/spf13/cobra"
)

// NewInitCmd writes a commented default configuration file.
func NewInitCmd(g *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Write a commented default configuration file. Without --config it
goes to $XDG_CONFIG_HOME/objfs/config.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			var err error
			if path == "" {
				path, err = config.InitConfig(force)
			} else {
				err = config.InitConfigToPath(path, force)
			}
			if err != nil {
				return commandError(cmd, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")
	return cmd
}

// NewGCCmd removes stray edges from the tree.
func NewGCCmd(g *globalOptions) *cobra.Command {
	var (
		dryRun    bool
		batchSize int
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove edges of deleted objects from the tree",
		Long: `Scan the tree for object edges whose object has no live record and
remove them. With --watch, keep collecting at gc.interval and serve
metrics, when enabled, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				cfg := e.cfg.GC
				if cmd.Flags().Changed("dry-run") {
					cfg.DryRun = dryRun
				}
				if cmd.Flags().Changed("batch-size") {
					cfg.BatchSize = batchSize
				}
				cfg.Enabled = watch

				collector, err := gc.NewCollector(e.fs, cfg)
				if err != nil {
					return err
				}

				if !watch {
					stats, err := collector.RunNow(ctx)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
					return nil
				}

				return e.watch(ctx, collector)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report stray edges without removing them")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Edges scanned and removed per round trip (default: gc.batch_size)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Collect periodically until interrupted")
	return cmd
}

// watch runs the collector and the metrics server until a signal arrives.
func (e *env) watch(ctx context.Context, collector *gc.Collector) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serverDone chan error
	if e.metrics.Server != nil {
		e.metrics.Server.SetHealth(e.fs.Store().Healthcheck)
		serverDone = make(chan error, 1)
		go func() { serverDone <- e.metrics.Server.Start(ctx) }()
	}

	collector.Start()

	var serverErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping garbage collector")
	case serverErr = <-serverDone:
		serverDone = nil
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := collector.Stop(shutdownCtx); err != nil {
		return err
	}
	if serverDone != nil {
		serverErr = <-serverDone
	}
	return serverErr
}
