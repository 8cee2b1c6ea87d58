package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"fieldsync/internal/model"
)

// PendingReader is the queue surface the view builder needs.
type PendingReader interface {
	ListAttendanceByUserAndDate(ctx context.Context, userID, day string) ([]model.PendingAttendanceRecord, error)
}

// RemoteReader is the remote store surface the view builder needs.
// Implementations return entries with Synced set and the final zone resolution.
type RemoteReader interface {
	ListAttendanceByUserAndDate(ctx context.Context, userID, day string) ([]model.AttendanceEntry, error)
}

// Connectivity reports whether the device currently has connectivity.
type Connectivity interface {
	Online() bool
}

// ViewBuilder produces the merged today view: local pending records unioned
// with remote records, deduplicated by identity with remote precedence,
// ordered by event timestamp descending.
//
// The view is recomputed from the queue and the remote store on every call.
// It is the authoritative input to CheckConsistency - never in-memory state -
// which closes the race where a rapid double-capture could read the same
// stale "last event" twice.
type ViewBuilder struct {
	queue  PendingReader
	remote RemoteReader
	online Connectivity
}

// NewViewBuilder creates a ViewBuilder over the given queue and remote store.
func NewViewBuilder(queue PendingReader, remote RemoteReader, online Connectivity) *ViewBuilder {
	return &ViewBuilder{queue: queue, remote: remote, online: online}
}

// BuildView returns the merged attendance view for one user and date.
//
// The remote store is consulted only when online; offline, the view degrades
// to the local pending set. A remote read failure also degrades to local-only
// rather than failing the view - the queue is the source of pending truth and
// must stay readable regardless of the network.
func (b *ViewBuilder) BuildView(ctx context.Context, userID, day string) (model.TodayView, error) {
	pending, err := b.queue.ListAttendanceByUserAndDate(ctx, userID, day)
	if err != nil {
		return model.TodayView{}, fmt.Errorf("build view: read pending: %w", err)
	}

	byID := make(map[string]model.AttendanceEntry, len(pending))
	for _, rec := range pending {
		byID[rec.ID] = pendingEntry(rec)
	}

	if b.online.Online() {
		remote, err := b.remote.ListAttendanceByUserAndDate(ctx, userID, day)
		if err != nil {
			slog.Warn("remote read failed, view degrades to local pending",
				"user", userID,
				"day", day,
				"error", err,
			)
		} else {
			// Remote copy wins: it is authoritative and carries the final
			// zone resolution.
			for _, entry := range remote {
				byID[entry.ID] = entry
			}
		}
	}

	entries := make([]model.AttendanceEntry, 0, len(byID))
	for _, entry := range byID {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].EventTime.Equal(entries[j].EventTime) {
			return entries[i].EventTime.After(entries[j].EventTime)
		}
		return entries[i].ID < entries[j].ID
	})

	return model.TodayView{UserID: userID, Day: day, Entries: entries}, nil
}

// pendingEntry projects a queued record into a view entry.
func pendingEntry(rec model.PendingAttendanceRecord) model.AttendanceEntry {
	return model.AttendanceEntry{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Day:          rec.Day,
		Kind:         rec.Kind,
		EventTime:    rec.EventTime,
		Coordinate:   rec.Coordinate,
		OutsideZone:  rec.OutsideZone,
		PhotoURL:     rec.PhotoURL,
		Zone:         rec.Zone,
		Inconsistent: rec.Inconsistent,
		Note:         rec.Note,
		Synced:       false,
	}
}
