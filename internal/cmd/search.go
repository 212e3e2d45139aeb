package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marmos91/objfs/pkg/find"
	"github.com/marmos91/objfs/pkg/glob"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/spf13/cobra"
)

// NewFindCmd searches subtrees.
func NewFindCmd(g *globalOptions) *cobra.Command {
	var (
		typeID   string
		meta     string
		state    string
		minDepth int
		maxDepth int
		dirs     bool
	)

	cmd := &cobra.Command{
		Use:   "find [START...]",
		Short: "Search subtrees by depth, type and metadata",
		Long: `Print the paths of the objects below each START directory, which
defaults to the working directory. Immediate children are at depth 0.

Examples:
  # Objects of one type, two levels deep at most
  objfs find /projects --type-id report --maxdepth 1

  # Objects whose metadata matches a filter
  objfs find --meta '{"status": "done", "size": {"$gt": 10}}'

  # Deleted objects still placed in the tree
  objfs find --state deleted`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := find.DefaultOptions()
			opts.Starts = args
			opts.TypeID = typeID
			opts.MinDepth = minDepth
			opts.MaxDepth = maxDepth
			opts.IncludeDirs = dirs

			st, err := store.ParseState(state)
			if err != nil {
				return commandError(cmd, err)
			}
			opts.State = st

			if meta != "" {
				if err := json.Unmarshal([]byte(meta), &opts.Meta); err != nil {
					return commandError(cmd, store.NewInvalidArgumentError(meta, "metadata filter is not a JSON object"))
				}
			}

			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				res, err := find.Find(ctx, e.sess, opts)
				if err != nil {
					return err
				}
				for _, p := range res.Paths() {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&typeID, "type-id", "", "Only objects of this type")
	cmd.Flags().StringVar(&meta, "meta", "", "Metadata filter as a JSON document")
	cmd.Flags().StringVar(&state, "state", "", "Object state: live, deleted or all (default: live)")
	cmd.Flags().IntVar(&minDepth, "mindepth", 0, "Skip entries shallower than this depth")
	cmd.Flags().IntVar(&maxDepth, "maxdepth", -1, "Skip entries deeper than this depth (negative: unbounded)")
	cmd.Flags().BoolVar(&dirs, "dirs", false, "Include directories in the results")
	return cmd
}

// NewGlobCmd expands a glob pattern.
func NewGlobCmd(g *globalOptions) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "glob PATTERN",
		Short: "Expand a glob pattern",
		Long: `Print the paths matching PATTERN. "*", "?" and "[...]" match within one
path segment; with --recursive, "**" matches any number of segments.
Entries starting with "." only match patterns that name the dot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				for p, err := range glob.IGlob(ctx, e.sess, args[0], recursive) {
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, `Let "**" match across directories`)
	return cmd
}
