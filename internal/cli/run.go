package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fieldsync/internal/engine"
	"fieldsync/internal/ident"
	"fieldsync/internal/model"
	"fieldsync/internal/sampler"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	TrackUser    string
	TrackSession string
	Lat          float64
	Lon          float64
}

// NewRunCommand creates the run command: the long-running sync daemon.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run the sync daemon: probe connectivity, drain the durable queue on every
offline-to-online transition and on a fixed interval, and optionally record
hourly location samples for a tracked attendance session.

Example:
  fieldsync run
  fieldsync run --track-user u1 --track-session s1 --lat 10.0 --lon -75.0`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TrackUser, "track-user", "", "record hourly location samples for this user")
	cmd.Flags().StringVar(&opts.TrackSession, "track-session", "", "attendance session the samples belong to")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "fixed site latitude for tracked samples")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "fixed site longitude for tracked samples")

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	if (opts.TrackUser == "") != (opts.TrackSession == "") {
		return NewExitError(ExitCommandError, "--track-user and --track-session must be set together")
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	eng := a.engine(engine.WithConnectivityChanges(a.monitor.Changes()))

	go a.probe.Run(ctx)

	if opts.TrackUser != "" {
		pos := staticPosition{}
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			pos.coord = &model.Coordinate{Lat: opts.Lat, Lon: opts.Lon}
		}
		smp := sampler.New(eng, pos, a.geo, a.monitor, ident.UUIDv7Generator{})
		smp.Start(ctx, opts.TrackUser, opts.TrackSession)
		defer smp.Stop()
		slog.Info("location tracking started", "user", opts.TrackUser, "session", opts.TrackSession)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Sync daemon started. Press Ctrl-C to stop.")

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "sync daemon error", err)
	}

	slog.Info("sync daemon stopped gracefully")
	return nil
}

// staticPosition serves a fixed site coordinate, or no coordinate at all when
// none was configured. Tracked samples from a stationary device are a
// presence heartbeat, not a GPS trace.
type staticPosition struct {
	coord *model.Coordinate
}

func (p staticPosition) CurrentPosition(context.Context) (*model.Coordinate, error) {
	return p.coord, nil
}
