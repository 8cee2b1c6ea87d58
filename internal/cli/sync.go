package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/internal/engine"
)

// NewSyncCommand creates the sync command: one explicit sync pass.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync",
		Short:         "Run one sync pass now",
		Long:          "Drain the durable queue against the remote store once and report the result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := openApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			if !a.monitor.Online() {
				return NewExitError(ExitCommandError, "offline: remote services unreachable")
			}

			stats, err := a.engine().RunPass(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "sync pass aborted", err)
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if err := f.Success(passReport{stats}); err != nil {
				return err
			}
			if stats.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d records failed to sync", stats.Failed))
			}
			return nil
		},
	}
}

// passReport renders engine.Stats for both output formats.
type passReport struct {
	engine.Stats
}

func (r passReport) String() string {
	if r.Attempted == 0 {
		return "Nothing pending."
	}
	return fmt.Sprintf("Synced %d of %d pending records (%d duplicates, %d failed).",
		r.Succeeded(), r.Attempted, r.Duplicates, r.Failed)
}
