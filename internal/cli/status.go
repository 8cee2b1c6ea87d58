package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/internal/config"
	"fieldsync/internal/queue"
)

// NewStatusCommand creates the status command: local queue depth. Works fully
// offline; only the config file and the queue database are touched.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show pending queue depth",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load(rootOpts.Config)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}

			q, err := queue.Open(cfg.Queue.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open local queue", err)
			}
			defer q.Close()

			pending, err := q.Count(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to count pending records", err)
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(statusReport{QueuePath: cfg.Queue.Path, Pending: pending})
		},
	}
}

type statusReport struct {
	QueuePath string `json:"queue_path"`
	Pending   int    `json:"pending"`
}

func (r statusReport) String() string {
	if r.Pending == 0 {
		return fmt.Sprintf("Queue %s: nothing pending.", r.QueuePath)
	}
	return fmt.Sprintf("Queue %s: %d pending records.", r.QueuePath, r.Pending)
}
