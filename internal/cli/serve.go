package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse/internal/config"
	"github.com/repopulse/repopulse/internal/server"
	"github.com/repopulse/repopulse/pkg/snapshot"
)

// serveCommand creates the serve command running the refresh loop and
// the JSON API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		listen  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh loop and serve the JSON API",
		Long: `Run the periodic refresh loop and serve the merged result as a JSON API.

The server fetches all configured inputs, reconciles them into one
immutable generation, and answers every query from the latest published
generation. A refresh failure keeps the previous generation in place;
POST /api/refresh triggers an early refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return c.runServe(cmd.Context(), cfg, noCache)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides the configuration)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable response caching")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg *config.Config, noCache bool) error {
	source, closer := c.newSource(ctx, cfg, noCache)
	defer closer.Close()

	pub := snapshot.NewPublisher(source, cfg.RefreshTimeout.Std(), c.Logger)

	refreshDone := make(chan error, 1)
	go func() {
		refreshDone <- pub.Run(ctx, cfg.RefreshInterval.Std())
	}()

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(pub, c.Logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", cfg.Listen)
		serveDone <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			c.Logger.Warn("shutdown", "err", err)
		}
		<-refreshDone
		return ctx.Err()
	case err := <-serveDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}
