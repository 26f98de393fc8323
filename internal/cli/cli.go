// Package cli implements the repopulse command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse/internal/config"
	"github.com/repopulse/repopulse/pkg/buildinfo"
	"github.com/repopulse/repopulse/pkg/cache"
	"github.com/repopulse/repopulse/pkg/fetch"
	"github.com/repopulse/repopulse/pkg/httputil"
	"github.com/repopulse/repopulse/pkg/snapshot"
)

// appName is the application name used for directories and display.
const appName = "repopulse"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands
// registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Repopulse reconciles binary repositories with build recipes",
		Long:         `Repopulse merges binary package repository databases with the build recipes they were built from, derives the pending update and removal queues, and serves the result over a JSON API.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a TOML configuration file")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.refreshCommand())
	root.AddCommand(c.queueCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig loads the configured TOML file, or the defaults when no
// --config was given.
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}

// newCache builds the cache backend the configuration asks for. A
// backend that cannot be set up degrades to no caching rather than
// failing the command.
func (c *CLI) newCache(ctx context.Context, cfg *config.Cache, noCache bool) cache.Cache {
	if noCache || cfg.Backend == "none" {
		return cache.NewNullCache()
	}
	switch cfg.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			c.Logger.Warn("redis cache unavailable, continuing without cache", "err", err)
			return cache.NewNullCache()
		}
		return rc
	default:
		dir := cfg.Dir
		if dir == "" {
			var err error
			if dir, err = cacheDir(); err != nil {
				c.Logger.Warn("no cache directory, continuing without cache", "err", err)
				return cache.NewNullCache()
			}
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			c.Logger.Warn("file cache unavailable, continuing without cache", "err", err)
			return cache.NewNullCache()
		}
		return fc
	}
}

// newSource builds the refresh pipeline source for a configuration. The
// returned closer releases the cache backend.
func (c *CLI) newSource(ctx context.Context, cfg *config.Config, noCache bool) (snapshot.Source, io.Closer) {
	store := c.newCache(ctx, &cfg.Cache, noCache)
	limiter := httputil.NewLimiter(cfg.RequestBurst, cfg.RequestPeriod.Std())
	client := fetch.NewClient(store, limiter, c.Logger)
	plan := cfg.Plan()

	source := func(ctx context.Context) (*fetch.Inputs, error) {
		return fetch.Gather(ctx, client, plan, c.Logger)
	}
	return source, store
}

// buildGeneration runs the pipeline once and returns the result.
func (c *CLI) buildGeneration(ctx context.Context, noCache bool) (*snapshot.Generation, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	source, closer := c.newSource(ctx, cfg, noCache)
	defer closer.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.RefreshTimeout.Std())
	defer cancel()

	in, err := source(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Build(in), nil
}

// cacheDir returns the cache directory using the XDG convention
// (~/.cache/repopulse/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
