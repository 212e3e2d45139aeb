package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/posix"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/spf13/cobra"
)

// NewPutCmd writes an object from stdin or a local file.
func NewPutCmd(g *globalOptions) *cobra.Command {
	var (
		typeID string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "put PATH",
		Short: "Write an object",
		Long: `Write the payload read from stdin, or from --file, to the object at
PATH. An absent PATH creates a new object; an existing one gets a new
version. A PATH ending with "/" places a new object in that directory
under its id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return commandError(cmd, err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			payload, err := io.ReadAll(in)
			if err != nil {
				return commandError(cmd, err)
			}

			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				id, err := e.put(ctx, args[0], typeID, payload)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&typeID, "type-id", "t", "", "Type of a new object (default: file)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the payload from a local file instead of stdin")
	return cmd
}

// put writes payload to the object at p. New objects are saved through the
// session; existing ones get a new version through Open.
func (e *env) put(ctx context.Context, p, typeID string, payload []byte) (store.ObjectID, error) {
	if fspath.IsDirPath(p) || !e.os.Exists(ctx, p) {
		if typeID == "" {
			typeID = posix.FileTypeID
		}
		obj := &store.Object{ID: store.NewObjectID(), TypeID: typeID, Payload: payload}
		if _, err := e.sess.Save(ctx, obj, p); err != nil {
			return "", err
		}
		return obj.ID, nil
	}

	f, err := e.os.Open(ctx, p, "w")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.ID(), nil
}

// NewCatCmd prints object payloads.
func NewCatCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat PATH...",
		Short: "Print object payloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				for _, p := range args {
					if !e.os.IsFile(ctx, p) {
						if e.os.IsDir(ctx, p) {
							return store.NewError(store.ErrIsADirectory, p)
						}
						return store.NewNotFoundError(p)
					}
					f, err := e.os.Open(ctx, p, "r")
					if err != nil {
						return err
					}
					_, err = io.Copy(cmd.OutOrStdout(), f)
					_ = f.Close()
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// NewMetaCmd manages object metadata.
func NewMetaCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Read and write object metadata",
		Long: `Metadata is a free-form JSON document attached to an object. It is not
versioned: writes replace or merge into the current document.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get PATH",
			Short: "Print the metadata of an object as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, false, func(ctx context.Context, e *env) error {
					id, err := e.objectID(ctx, args[0])
					if err != nil {
						return err
					}
					docs, err := e.fs.Store().GetMeta(ctx, []store.ObjectID{id})
					if err != nil {
						return store.WithPath(err, args[0])
					}
					meta := docs[id]
					if meta == nil {
						meta = store.Meta{}
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(meta)
				})
			},
		},
		newMetaWriteCmd(g, "set", "Replace the metadata of an object", func(ctx context.Context, st store.ObjectStore, id store.ObjectID, m store.Meta) error {
			return st.SetMeta(ctx, id, m)
		}),
		newMetaWriteCmd(g, "update", "Merge fields into the metadata of an object", func(ctx context.Context, st store.ObjectStore, id store.ObjectID, m store.Meta) error {
			return st.UpdateMeta(ctx, id, m)
		}),
		&cobra.Command{
			Use:   "unset PATH KEY...",
			Short: "Remove metadata fields from an object",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.run(cmd, false, func(ctx context.Context, e *env) error {
					id, err := e.objectID(ctx, args[0])
					if err != nil {
						return err
					}
					return store.WithPath(e.fs.Store().UnsetMeta(ctx, []store.ObjectID{id}, args[1:]...), args[0])
				})
			},
		},
	)
	return cmd
}

func newMetaWriteCmd(g *globalOptions, use, short string, write func(context.Context, store.ObjectStore, store.ObjectID, store.Meta) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " PATH JSON",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var meta store.Meta
			if err := json.Unmarshal([]byte(args[1]), &meta); err != nil || meta == nil {
				return commandError(cmd, store.NewInvalidArgumentError(args[0], "metadata is not a JSON object"))
			}
			return g.run(cmd, false, func(ctx context.Context, e *env) error {
				id, err := e.objectID(ctx, args[0])
				if err != nil {
					return err
				}
				return store.WithPath(write(ctx, e.fs.Store(), id, meta), args[0])
			})
		},
	}
}

// objectID resolves p to the id of the object placed there.
func (e *env) objectID(ctx context.Context, p string) (store.ObjectID, error) {
	fi, err := e.os.Stat(ctx, p)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", store.NewError(store.ErrIsADirectory, p)
	}
	return fi.Entry().ID, nil
}
