package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/scheduler"
)

// newRunCmd creates the 'run' subcommand, which drives one queue group until
// SIGINT or SIGTERM.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <long|middle|short>",
		Short: "Runs the stage handlers of one queue group",
		Long: `Polls the queues of a group in random order and runs the stage
handler of the first queue that yields an id. Handlers that are already
running finish their record on shutdown.

  long    resource
  middle  list, download, video, joke
  short   schedule, detail, clean, prepare, store`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{scheduler.GroupLong, scheduler.GroupMiddle, scheduler.GroupShort},
		RunE:      withApp(runGroup),
	}
}

func runGroup(cmd *cobra.Command, args []string, a App) error {
	group := args[0]
	s, err := a.Scheduler(group)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("run %s group: %w", group, err)
	}
	a.Logger().Info("shutting down", zap.String("group", group))
	return nil
}
