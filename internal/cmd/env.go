package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/config"
	"github.com/marmos91/objfs/pkg/fspath"
	"github.com/marmos91/objfs/pkg/posix"
	"github.com/marmos91/objfs/pkg/registry"
	"github.com/marmos91/objfs/pkg/session"
	"github.com/marmos91/objfs/pkg/vfs"
	"github.com/spf13/cobra"
)

// env is everything a command needs: the loaded configuration, the local
// filesystem with its session and, when asked for, the remote registry.
type env struct {
	cfg     *config.Config
	metrics *config.MetricsResult
	fs      *vfs.FS
	sess    *session.Session
	os      *posix.OS
	reg     *registry.Registry
}

// open loads the configuration, opens the local store and starts a session
// at the configured working directory, creating it if needed.
func (g *globalOptions) open(ctx context.Context, withRemotes bool) (*env, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, metrics: config.InitializeMetrics(cfg)}

	e.fs, err = config.OpenFS(ctx, &cfg.Store, e.metrics.FSMetrics)
	if err != nil {
		return nil, err
	}

	if _, err := e.fs.MakeDirs(ctx, cfg.Session.Cwd, true); err != nil {
		return nil, errors.Join(err, e.fs.Store().Close())
	}

	e.sess, err = session.New(ctx, e.fs, session.Options{
		Cwd:  cfg.Session.Cwd,
		User: cfg.Session.User,
		Home: cfg.Session.Home,
	})
	if err != nil {
		return nil, errors.Join(err, e.fs.Store().Close())
	}
	session.Init(e.sess)
	e.os = posix.New(e.sess)

	if withRemotes {
		e.reg, err = config.InitializeRegistry(ctx, cfg, e.metrics.FSMetrics)
		if err != nil {
			return nil, errors.Join(err, e.Close())
		}
	}

	logger.Debug("Session opened: store=%s cwd=%s user=%s", cfg.Store.Type, e.sess.Cwd(), e.sess.User())
	return e, nil
}

// loadConfig loads the configuration and applies the persistent flags.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(g.logLevel)
	}
	if g.user != "" {
		cfg.Session.User = g.user
	}
	if g.cwd != "" {
		cfg.Session.Cwd = fspath.ToDir(fspath.Join(cfg.Session.Cwd, g.cwd))
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Close ends the session and closes every store.
func (e *env) Close() error {
	session.Reset()
	var errs []error
	if e.reg != nil {
		errs = append(errs, e.reg.Close())
	}
	errs = append(errs, e.fs.Store().Close())
	return errors.Join(errs...)
}

// run opens an env, calls fn and closes the env. Errors are prefixed with
// the command name, giving "command: path: message".
func (g *globalOptions) run(cmd *cobra.Command, withRemotes bool, fn func(ctx context.Context, e *env) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := g.open(ctx, withRemotes)
	if err != nil {
		return commandError(cmd, err)
	}
	defer func() {
		if cerr := e.Close(); cerr != nil && err == nil {
			err = commandError(cmd, cerr)
		}
	}()

	return commandError(cmd, fn(ctx, e))
}

func commandError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", cmd.Name(), err)
}
