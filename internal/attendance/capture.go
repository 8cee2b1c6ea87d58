package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fieldsync/internal/ident"
	"fieldsync/internal/model"
)

// PendingWriter is the queue surface the capture paths need.
type PendingWriter interface {
	PendingReader
	PutAttendance(ctx context.Context, rec model.PendingAttendanceRecord) error
	PutFollowUp(ctx context.Context, p model.PendingFollowUpPhoto) error
}

// ZoneResolver resolves a coordinate to a named zone, or nil when no zone
// encloses the point or the lookup could not be performed.
type ZoneResolver interface {
	ResolveZone(ctx context.Context, lat, lon float64) *model.ZoneResult
}

// Service is the attendance capture entry point. Every capture is durably
// queued before any remote work; success is reported as soon as the record is
// queued, independent of upload or zone resolution progress.
type Service struct {
	queue  PendingWriter
	view   *ViewBuilder
	geo    ZoneResolver
	online Connectivity
	ids    ident.Generator
	now    func() time.Time
	kick   func() // sync engine trigger after a successful capture
}

// NewService wires the capture paths. kick may be nil when no sync engine is
// running (one-shot CLI invocations).
func NewService(
	queue PendingWriter,
	view *ViewBuilder,
	geo ZoneResolver,
	online Connectivity,
	ids ident.Generator,
	now func() time.Time,
	kick func(),
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		queue:  queue,
		view:   view,
		geo:    geo,
		online: online,
		ids:    ids,
		now:    now,
		kick:   kick,
	}
}

// CaptureAttendance records a clock-in or clock-out event.
//
// Order of operations: rebuild the merged today view, run the consistency
// check against it, resolve the zone best-effort when online, then durably
// queue the record. A queue write failure is fatal to the capture and is
// returned to the caller - a record that cannot be queued has no retry path.
func (s *Service) CaptureAttendance(
	ctx context.Context,
	userID string,
	kind model.EventKind,
	photo []byte,
	coord *model.Coordinate,
	outsideZone bool,
) (model.PendingAttendanceRecord, error) {
	now := s.now()
	day := model.DayOf(now)

	view, err := s.view.BuildView(ctx, userID, day)
	if err != nil {
		return model.PendingAttendanceRecord{}, fmt.Errorf("capture %s: %w", kind, err)
	}

	inconsistent, note := CheckConsistency(kind, view.Entries)
	if inconsistent {
		slog.Warn("inconsistent attendance capture, recording anyway",
			"user", userID,
			"kind", kind,
			"note", note,
		)
	}

	var zone *model.ZoneResult
	if coord != nil && s.online.Online() {
		zone = s.geo.ResolveZone(ctx, coord.Lat, coord.Lon)
	}

	rec := model.PendingAttendanceRecord{
		ID:           s.ids.Generate(),
		UserID:       userID,
		Day:          day,
		Kind:         kind,
		EventTime:    now,
		Coordinate:   coord,
		OutsideZone:  outsideZone,
		Photo:        photo,
		Zone:         zone,
		Inconsistent: inconsistent,
		Note:         note,
		CreatedAt:    now,
	}

	if err := s.queue.PutAttendance(ctx, rec); err != nil {
		return model.PendingAttendanceRecord{}, fmt.Errorf("capture %s: not queued: %w", kind, err)
	}

	slog.Info("attendance queued",
		"id", rec.ID,
		"user", userID,
		"kind", kind,
		"inconsistent", inconsistent,
	)

	s.requestSync()
	return rec, nil
}

// CaptureFollowUp records additional photo evidence for an attendance session.
// A new capture for an occupied slot supersedes the earlier unsynced one.
func (s *Service) CaptureFollowUp(
	ctx context.Context,
	userID, sessionID string,
	slot model.EvidenceSlot,
	photo []byte,
) (model.PendingFollowUpPhoto, error) {
	now := s.now()

	p := model.PendingFollowUpPhoto{
		ID:        s.ids.Generate(),
		UserID:    userID,
		Day:       model.DayOf(now),
		SessionID: sessionID,
		Slot:      slot,
		TakenAt:   now,
		Photo:     photo,
		CreatedAt: now,
	}

	if err := s.queue.PutFollowUp(ctx, p); err != nil {
		return model.PendingFollowUpPhoto{}, fmt.Errorf("capture follow-up: not queued: %w", err)
	}

	slog.Info("follow-up photo queued",
		"id", p.ID,
		"user", userID,
		"session", sessionID,
		"slot", int(slot),
	)

	s.requestSync()
	return p, nil
}

// TodayView returns the merged attendance view for the current date.
func (s *Service) TodayView(ctx context.Context, userID string) (model.TodayView, error) {
	return s.view.BuildView(ctx, userID, model.DayOf(s.now()))
}

func (s *Service) requestSync() {
	if s.kick != nil {
		s.kick()
	}
}
