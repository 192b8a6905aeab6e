package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhidu-qidian/Spiders/internal/scheduler"
)

type serveOptions struct {
	groups []string
}

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the extraction and failure API",
		Long: `Serves the HTTP API until SIGINT or SIGTERM. With --groups the
named scheduler groups run in the same process and stop with the server.`,
		// Groups are checked with the args so a bad flag fails before the
		// app is built.
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return err
			}
			for _, g := range opts.groups {
				if !validGroup(g) {
					return fmt.Errorf("unknown group %q", g)
				}
			}
			return nil
		},
		RunE: withApp(func(cmd *cobra.Command, _ []string, a App) error {
			return serve(cmd.Context(), a, opts)
		}),
	}
	cmd.Flags().StringSliceVar(&opts.groups, "groups", nil, "scheduler groups to run alongside the API (long, middle, short)")
	return cmd
}

func validGroup(g string) bool {
	switch g {
	case scheduler.GroupLong, scheduler.GroupMiddle, scheduler.GroupShort:
		return true
	}
	return false
}

func serve(ctx context.Context, a App, opts *serveOptions) error {
	schedulers := make([]*scheduler.Scheduler, 0, len(opts.groups))
	for _, g := range opts.groups {
		s, err := a.Scheduler(g)
		if err != nil {
			return err
		}
		schedulers = append(schedulers, s)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := a.Logger()
	srv := a.HTTPServer()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	for i, s := range schedulers {
		group := opts.groups[i]
		g.Go(func() error {
			if err := s.Run(gctx); err != nil {
				return fmt.Errorf("run %s group: %w", group, err)
			}
			return nil
		})
	}
	return g.Wait()
}
