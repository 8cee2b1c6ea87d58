package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/internal/model"
)

// TodayOptions holds flags for the today command.
type TodayOptions struct {
	*RootOptions
	User string
}

// NewTodayCommand creates the today command: the merged attendance view for
// the current date, local pending unioned with remote, remote winning by
// identity.
func NewTodayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TodayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "today",
		Short:         "Show today's merged attendance view",
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

			view, err := a.service(nil).TodayView(ctx, opts.User)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to build today view", err)
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(newTodayReport(view))
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user to show (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// todayReport is the renderable projection of a merged view.
type todayReport struct {
	UserID  string        `json:"user_id"`
	Day     string        `json:"day"`
	Entries []entryReport `json:"entries"`
}

type entryReport struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Time         string  `json:"time"`
	Status       string  `json:"status"` // "synced" | "pending"
	Zone         *string `json:"zone,omitempty"`
	OutsideZone  bool    `json:"outside_zone,omitempty"`
	Inconsistent bool    `json:"inconsistent,omitempty"`
	Note         string  `json:"note,omitempty"`
	PhotoURL     string  `json:"photo_url,omitempty"`
}

func newTodayReport(view model.TodayView) todayReport {
	report := todayReport{
		UserID:  view.UserID,
		Day:     view.Day,
		Entries: make([]entryReport, 0, len(view.Entries)),
	}
	for _, e := range view.Entries {
		status := "pending"
		if e.Synced {
			status = "synced"
		}
		entry := entryReport{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Time:         e.EventTime.Format(time.TimeOnly),
			Status:       status,
			OutsideZone:  e.OutsideZone,
			Inconsistent: e.Inconsistent,
			Note:         e.Note,
			PhotoURL:     e.PhotoURL,
		}
		if e.Zone != nil {
			name := e.Zone.Name
			entry.Zone = &name
		}
		report.Entries = append(report.Entries, entry)
	}
	return report
}

func (r todayReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attendance for %s on %s\n", r.UserID, r.Day)
	if len(r.Entries) == 0 {
		b.WriteString("  no entries")
		return b.String()
	}

	for _, e := range r.Entries {
		zone := "-"
		if e.Zone != nil {
			zone = *e.Zone
		}
		fmt.Fprintf(&b, "  %s  %-9s  %-7s  zone %s", e.Time, e.Kind, e.Status, zone)
		if e.OutsideZone {
			b.WriteString("  [outside zone]")
		}
		if e.Inconsistent {
			fmt.Fprintf(&b, "  [inconsistent: %s]", e.Note)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
