// Package cmd implements the objfs command line.
//
// Every command opens the configured store, runs one operation through a
// session and closes the store again. Errors are reported as
// "command: path: message" and make the process exit non-zero.
package cmd

import (
	"github.com/marmos91/objfs/internal/version"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	cwd        string
	user       string
	logLevel   string
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "objfs",
		Short: "objfs - a virtual filesystem over an object store",
		Long: `objfs lays a directory tree over a store of versioned objects.

Objects keep their identity, history and metadata in the store; the tree
only records where each object lives. Paths behave like a POSIX
filesystem: list, move and remove entries, search them by metadata or
glob pattern, and replicate subtrees between stores with rsync.`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/objfs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.cwd, "cwd", "C", "", "Working directory for relative paths (default: session.cwd)")
	rootCmd.PersistentFlags().StringVarP(&opts.user, "user", "u", "", "User name \"~\" expands to (default: session.user)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")

	groupFilesystem := "filesystem"
	groupObjects := "objects"
	groupUtilities := "utilities"

	rootCmd.AddGroup(&cobra.Group{ID: groupFilesystem, Title: "Filesystem Operations"})
	rootCmd.AddGroup(&cobra.Group{ID: groupObjects, Title: "Object Operations"})
	rootCmd.AddGroup(&cobra.Group{ID: groupUtilities, Title: "Utility Commands"})

	for _, c := range []*cobra.Command{
		NewLsCmd(opts),
		NewMkdirCmd(opts),
		NewMvCmd(opts),
		NewRmCmd(opts),
		NewFindCmd(opts),
		NewGlobCmd(opts),
	} {
		c.GroupID = groupFilesystem
		rootCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{
		NewPutCmd(opts),
		NewCatCmd(opts),
		NewMetaCmd(opts),
		NewRsyncCmd(opts),
	} {
		c.GroupID = groupObjects
		rootCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{
		NewInitCmd(opts),
		NewGCCmd(opts),
		NewVersionCmd(),
	} {
		c.GroupID = groupUtilities
		rootCmd.AddCommand(c)
	}

	return rootCmd
}

// NewVersionCmd prints build information.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.Print(cmd.OutOrStdout(), "objfs")
		},
	}
}
