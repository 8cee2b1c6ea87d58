package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fieldsync/internal/ident"
	"fieldsync/internal/model"
	"fieldsync/internal/sampler"
)

// CaptureOptions holds flags shared by the capture commands.
type CaptureOptions struct {
	*RootOptions
	User        string
	Photo       string
	Lat         float64
	Lon         float64
	Accuracy    float64
	OutsideZone bool
}

// NewCaptureCommand creates the clock-in or clock-out command. The capture is
// durably queued first; when online, one sync pass runs immediately so the
// record lands remotely without waiting for the daemon.
func NewCaptureCommand(rootOpts *RootOptions, clockIn bool) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}

	kind := model.EventClockOut
	use, short := "clock-out", "Record a clock-out event"
	if clockIn {
		kind = model.EventClockIn
		use, short = "clock-in", "Record a clock-in event"
	}

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return captureAttendance(cmd, opts, kind)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user recording the event (required)")
	cmd.Flags().StringVar(&opts.Photo, "photo", "", "path to the capture photo (required)")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "capture latitude")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "capture longitude")
	cmd.Flags().Float64Var(&opts.Accuracy, "accuracy", 0, "position accuracy in meters")
	cmd.Flags().BoolVar(&opts.OutsideZone, "outside-zone", false, "mark the capture as outside the assigned zone")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("photo")

	return cmd
}

func captureAttendance(cmd *cobra.Command, opts *CaptureOptions, kind model.EventKind) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	photo, err := os.ReadFile(opts.Photo)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read photo", err)
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	coord := coordFromFlags(cmd, opts)

	rec, err := a.service(nil).CaptureAttendance(ctx, opts.User, kind, photo, coord, opts.OutsideZone)
	if err != nil {
		return WrapExitError(ExitFailure, "capture failed", err)
	}

	// Best-effort immediate remote write; failure leaves the record queued.
	synced := false
	if a.monitor.Online() {
		if _, err := a.engine().RunPass(ctx); err == nil {
			synced = attendanceSynced(ctx, a.queue, rec.UserID, rec.Day, rec.ID)
		}
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(captureReport{
		ID:           rec.ID,
		Kind:         string(kind),
		Synced:       synced,
		Inconsistent: rec.Inconsistent,
		Note:         rec.Note,
	})
}

// pendingLister is the queue surface the synced checks read.
type pendingLister interface {
	ListAttendanceByUserAndDate(ctx context.Context, userID, day string) ([]model.PendingAttendanceRecord, error)
	ListFollowUpsByUserAndDate(ctx context.Context, userID, day string) ([]model.PendingFollowUpPhoto, error)
}

// attendanceSynced reports whether this capture's own row left the queue.
// Pass aggregates span the whole backlog, so an unrelated record's failure
// must not mislabel a capture that did land remotely.
func attendanceSynced(ctx context.Context, q pendingLister, userID, day, id string) bool {
	pending, err := q.ListAttendanceByUserAndDate(ctx, userID, day)
	if err != nil {
		return false
	}
	for _, rec := range pending {
		if rec.ID == id {
			return false
		}
	}
	return true
}

// followUpSynced is the follow-up analog of attendanceSynced.
func followUpSynced(ctx context.Context, q pendingLister, userID, day, id string) bool {
	pending, err := q.ListFollowUpsByUserAndDate(ctx, userID, day)
	if err != nil {
		return false
	}
	for _, p := range pending {
		if p.ID == id {
			return false
		}
	}
	return true
}

// NewFollowUpCommand creates the follow-up command: additional photo evidence
// for an attendance session.
func NewFollowUpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}
	var session string
	var slot int

	cmd := &cobra.Command{
		Use:           "follow-up",
		Short:         "Record a follow-up evidence photo",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if slot != int(model.SlotOne) && slot != int(model.SlotTwo) {
				return NewExitError(ExitCommandError, "slot must be 1 or 2")
			}

			photo, err := os.ReadFile(opts.Photo)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read photo", err)
			}

			a, err := openApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.service(nil).CaptureFollowUp(ctx, opts.User, session, model.EvidenceSlot(slot), photo)
			if err != nil {
				return WrapExitError(ExitFailure, "capture failed", err)
			}

			synced := false
			if a.monitor.Online() {
				if _, err := a.engine().RunPass(ctx); err == nil {
					synced = followUpSynced(ctx, a.queue, p.UserID, p.Day, p.ID)
				}
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(captureReport{ID: p.ID, Kind: "follow-up", Synced: synced})
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user recording the photo (required)")
	cmd.Flags().StringVar(&session, "session", "", "attendance session id (required)")
	cmd.Flags().IntVar(&slot, "slot", 1, "evidence slot (1|2)")
	cmd.Flags().StringVar(&opts.Photo, "photo", "", "path to the photo (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("photo")

	return cmd
}

// NewSampleCommand creates the sample command: one manual location sample
// through the engine's write path (direct remote write, queue fallback).
func NewSampleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}
	var session string

	cmd := &cobra.Command{
		Use:           "sample",
		Short:         "Record a manual location sample",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := openApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			pos := staticPosition{coord: coordFromFlags(cmd, opts)}
			smp := sampler.New(a.engine(), pos, a.geo, a.monitor, ident.UUIDv7Generator{})
			smp.Capture(ctx, opts.User, session, model.SampleManual)

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(captureReport{Kind: "sample", Synced: a.monitor.Online()})
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user recording the sample (required)")
	cmd.Flags().StringVar(&session, "session", "", "attendance session id")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "sample latitude")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "sample longitude")
	cmd.Flags().Float64Var(&opts.Accuracy, "accuracy", 0, "position accuracy in meters")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func coordFromFlags(cmd *cobra.Command, opts *CaptureOptions) *model.Coordinate {
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return nil
	}
	return &model.Coordinate{Lat: opts.Lat, Lon: opts.Lon, Accuracy: opts.Accuracy}
}

// captureReport renders a capture result for both output formats.
type captureReport struct {
	ID           string `json:"id,omitempty"`
	Kind         string `json:"kind"`
	Synced       bool   `json:"synced"`
	Inconsistent bool   `json:"inconsistent,omitempty"`
	Note         string `json:"note,omitempty"`
}

func (r captureReport) String() string {
	status := "queued for sync"
	if r.Synced {
		status = "synced"
	}
	s := fmt.Sprintf("Recorded %s (%s)", r.Kind, status)
	if r.ID != "" {
		s += ": " + r.ID
	}
	if r.Inconsistent {
		s += fmt.Sprintf("\nWarning: %s", r.Note)
	}
	return s
}
