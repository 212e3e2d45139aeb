package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/objfs/pkg/rsync"
	"github.com/spf13/cobra"
)

// NewRsyncCmd replicates subtrees between stores.
func NewRsyncCmd(g *globalOptions) *cobra.Command {
	var (
		history   bool
		meta      string
		batchSize int
		rate      uint
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "rsync SRC... DST",
		Short: "Replicate objects between stores",
		Long: `Copy the objects at or below each SRC into DST, keeping their ids,
versions and relative placement. Addresses are local paths or
"remote:path" naming a store configured under remotes.

Examples:
  # Push a project to a backup store, with full history and metadata
  objfs rsync --history --meta overwrite /projects/alpha backup:/projects/

  # Pull one object into the working directory
  objfs rsync archive:/reports/q3 .`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := rsync.ParseMetaMode(meta)
			if err != nil {
				return commandError(cmd, err)
			}

			opts := rsync.Options{History: history, Meta: mode, BatchSize: batchSize, RateLimit: rate}
			if progress {
				out := cmd.ErrOrStderr()
				opts.Progress = func(p rsync.Progress) {
					_, _ = fmt.Fprintf(out, "synced %s/%s objects (%d new versions)\n",
						humanize.Comma(int64(p.Done)), humanize.Comma(int64(p.Count)), p.Total.Merged)
				}
			}

			srcs, dst := args[:len(args)-1], args[len(args)-1]
			return g.run(cmd, true, func(ctx context.Context, e *env) error {
				res, err := rsync.SyncPaths(ctx, e.reg, e.sess, srcs, dst, opts)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "objects=%d merged=%d skipped=%d placed=%d\n",
					res.Objects, res.Merged, res.Skipped, res.Placed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Transfer every version instead of the latest only")
	cmd.Flags().StringVar(&meta, "meta", "none", "Metadata mode: none, update or overwrite")
	cmd.Flags().IntVar(&batchSize, "batch-size", rsync.DefaultBatchSize, "Objects merged per round trip")
	cmd.Flags().UintVar(&rate, "rate", 0, "Objects merged per second at most (0: unlimited)")
	cmd.Flags().BoolVar(&progress, "progress", false, "Report progress after every batch")
	return cmd
}
