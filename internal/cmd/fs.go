package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/spf13/cobra"
)

// NewLsCmd lists a directory.
func NewLsCmd(g *globalOptions) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls [PATH]",
		Short: "List directory contents",
		Long: `List the entries of a directory. Directories are printed with a
trailing "/". PATH defaults to the working directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "."
			if len(args) == 1 {
				p = args[0]
			}
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				return e.list(ctx, cmd.OutOrStdout(), p, long)
			})
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show id, type, size and modification time")
	return cmd
}

func (e *env) list(ctx context.Context, out io.Writer, p string, long bool) error {
	entries, err := e.os.Scandir(ctx, p)
	if err != nil {
		return err
	}

	if !long {
		for _, d := range entries {
			name := d.Name
			if d.IsDir() {
				name += "/"
			}
			_, _ = fmt.Fprintln(out, name)
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, d := range entries {
		fi, err := e.os.Stat(ctx, d.Path)
		if err != nil {
			return err
		}
		name, typeID, size := d.Name, "-", "-"
		if d.IsDir() {
			name += "/"
		} else {
			typeID = fi.Entry().TypeID()
			size = humanize.Bytes(uint64(fi.Size()))
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, typeID, size, humanize.Time(fi.ModTime()), name)
	}
	return tw.Flush()
}

// NewMkdirCmd creates directories.
func NewMkdirCmd(g *globalOptions) *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "mkdir [-p] PATH...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				for _, p := range args {
					var err error
					if parents {
						err = e.os.Makedirs(ctx, p, true)
					} else {
						err = e.os.Mkdir(ctx, p)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parents; no error if the directory exists")
	return cmd
}

// NewMvCmd moves or renames an entry.
func NewMvCmd(g *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "mv [-f] SRC DST",
		Short: "Move or rename an entry",
		Long: `Move SRC to DST. When DST is an existing directory, SRC is moved into
it under its own name. An existing object at the destination fails with
"file exists" unless --force is given, in which case it is removed first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				return e.move(ctx, args[0], args[1], force)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing object at the destination")
	return cmd
}

// move renames src to dst, descending into dst when it is a directory.
func (e *env) move(ctx context.Context, src, dst string, force bool) error {
	from, err := e.os.Stat(ctx, src)
	if err != nil {
		return err
	}

	target := dst
	if e.os.IsDir(ctx, dst) {
		target = fspath.Join(fspath.ToDir(dst), fspath.Base(src))
	}

	if !fspath.IsDirPath(target) && e.os.IsFile(ctx, target) {
		to, err := e.os.Stat(ctx, target)
		if err != nil {
			return err
		}
		if to.Entry().ID == from.Entry().ID {
			return nil
		}
		if !force {
			return store.NewError(store.ErrAlreadyExists, target)
		}
		if err := e.os.Remove(ctx, target); err != nil {
			return err
		}
	}
	return e.os.Rename(ctx, src, target)
}

// NewRmCmd removes objects and directories.
func NewRmCmd(g *globalOptions) *cobra.Command {
	var (
		recursive bool
		dir       bool
	)

	cmd := &cobra.Command{
		Use:   "rm [-r|-d] PATH...",
		Short: "Remove objects or directories",
		Long: `Remove objects. With -d, remove empty directories. With -r, remove a
subtree and delete every object in it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				for _, p := range args {
					var err error
					switch {
					case recursive:
						err = e.os.RemoveAll(ctx, p)
					case dir:
						err = e.os.Rmdir(ctx, p)
					default:
						err = e.os.Remove(ctx, p)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Remove directories and their contents")
	cmd.Flags().BoolVarP(&dir, "dir", "d", false, "Remove empty directories")
	cmd.MarkFlagsMutuallyExclusive("recursive", "dir")
	return cmd
}
