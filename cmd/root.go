// Package cmd defines and implements the CLI commands for the spiders executable.
//
// Architecture overview:
//   - run <group>: one process per queue group (long, middle, short) pops
//     record ids from the broker, runs the stage handler of the queue and
//     pushes the returned ids to the next queue.
//   - serve: the HTTP API for trying detail and listing configs, reloading
//     config directories, and reading the stage failure audit log. It can
//     also host scheduler groups in the same process.
//   - extract: runs the detail extractor once against a URL or a saved page.
//
// Configuration comes from a YAML file (--config) and SPIDERS_* environment
// variables; see internal/config.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/app"
	"github.com/zhidu-qidian/Spiders/internal/config"
	"github.com/zhidu-qidian/Spiders/internal/extract"
	"github.com/zhidu-qidian/Spiders/internal/logging"
	"github.com/zhidu-qidian/Spiders/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close(ctx context.Context) error
	Logger() *zap.Logger
	Scheduler(group string) (*scheduler.Scheduler, error)
	HTTPServer() *http.Server
	Details() *extract.Engine
}

// newApp is the application factory. It's a variable so tests can replace
// it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spiders",
		Short: "News crawling pipeline workers and extraction API.",
		Long: `spiders crawls news listings and articles through a chain of
queue-driven stages: list, download, detail, clean, resource, prepare and
store. Each stage pops record ids from its queue, advances the record and
hands the ids on to the next stage.`,
		SilenceUsage: true,

		// Builds the application once flags and args are validated and
		// stores it in the context for the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				File:        cfg.LogFile(serviceName(cmd, args)),
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
				MaxAgeDays:  cfg.Logging.MaxAgeDays,
				Compress:    cfg.Logging.Compress,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); SPIDERS_* environment variables override it")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExtractCmd())

	return cmd
}

// serviceName names the log file: the group for run, the command otherwise.
func serviceName(cmd *cobra.Command, args []string) string {
	if cmd.Name() == "run" && len(args) > 0 {
		return args[0]
	}
	return cmd.Name()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp hands the app built by the root command to run and closes it
// afterwards, also when run fails.
func withApp(run func(cmd *cobra.Command, args []string, a App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer cancel()
			if cerr := appInstance.Close(ctx); cerr != nil {
				err = errors.Join(err, fmt.Errorf("shutdown: %w", cerr))
			}
		}()
		return run(cmd, args, appInstance)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
