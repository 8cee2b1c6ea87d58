package engine

import (
	"context"
	"fmt"
	"log/slog"

	"fieldsync/internal/model"
	"fieldsync/internal/remote"
)

// photoContentType is the content type for all capture photos.
const photoContentType = "image/jpeg"

// Stats summarizes one sync pass. Background failures surface only through
// these aggregates, never as per-record errors to the user.
type Stats struct {
	Attempted  int `json:"attempted"`
	Synced     int `json:"synced"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Succeeded counts records confirmed durable remotely: fresh inserts plus
// duplicate identities (a duplicate is confirmation of a prior interrupted
// sync, not a failure).
func (s Stats) Succeeded() int {
	return s.Synced + s.Duplicates
}

func (s *Stats) record(err error) {
	switch {
	case err == nil:
		s.Synced++
	case remote.IsDuplicate(err):
		s.Duplicates++
	default:
		s.Failed++
	}
}

// RunPass drains every currently queued record, sequentially, oldest first:
// attendance events, then follow-up photos, then location samples. Sequential
// draining bounds remote write concurrency and keeps each record's
// photo-upload-then-insert pair causally ordered.
//
// A record failing at any step stays queued for the next pass; durable
// progress (uploaded photo reference, resolved zone) is persisted to the
// queue row first, so an interrupted pass resumes as exactly "still queued"
// with no remote side effect double-applied.
//
// Returns an error only when the queue itself cannot be read - remote
// failures are per-record and land in Stats.Failed.
func (e *Engine) RunPass(ctx context.Context) (Stats, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	var stats Stats

	records, err := e.queue.ListAllAttendance(ctx)
	if err != nil {
		return stats, fmt.Errorf("sync pass: %w", err)
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Attempted++
		err := e.syncAttendance(ctx, rec)
		stats.record(err)
		if err != nil && !remote.IsDuplicate(err) {
			slog.Debug("attendance record stays queued", "id", rec.ID, "error", err)
		}
	}

	followUps, err := e.queue.ListAllFollowUps(ctx)
	if err != nil {
		return stats, fmt.Errorf("sync pass: %w", err)
	}
	for _, p := range followUps {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Attempted++
		err := e.syncFollowUp(ctx, p)
		stats.record(err)
		if err != nil && !remote.IsDuplicate(err) {
			slog.Debug("follow-up stays queued", "id", p.ID, "error", err)
		}
	}

	samples, err := e.queue.ListAllSamples(ctx)
	if err != nil {
		return stats, fmt.Errorf("sync pass: %w", err)
	}
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Attempted++
		err := e.syncSample(ctx, s)
		stats.record(err)
		if err != nil && !remote.IsDuplicate(err) {
			slog.Debug("sample stays queued", "id", s.ID, "error", err)
		}
	}

	return stats, nil
}

// syncAttendance walks one attendance record through the per-record state
// machine: upload photo, backfill zone, insert by identity, evict.
func (e *Engine) syncAttendance(ctx context.Context, rec model.PendingAttendanceRecord) error {
	// Step 1: upload the held photo. The path is a pure function of the
	// identity, so a retry overwrites the same object.
	if len(rec.Photo) > 0 {
		url, err := e.storage.Upload(ctx, remote.AttendancePhotoPath(rec.UserID, rec.ID), photoContentType, rec.Photo)
		if err != nil {
			return fmt.Errorf("upload photo for %s: %w", rec.ID, err)
		}
		if err := e.queue.MarkAttendancePhotoUploaded(ctx, rec.ID, url); err != nil {
			return err
		}
		rec.Photo = nil
		rec.PhotoURL = url
	}

	// Step 2: backfill the zone for records captured offline. Resolution
	// failure degrades to "zone unknown" and never blocks the insert.
	if rec.Zone == nil && rec.Coordinate != nil {
		if zone := e.geo.ResolveZone(ctx, rec.Coordinate.Lat, rec.Coordinate.Lon); zone != nil {
			if err := e.queue.SetAttendanceZone(ctx, rec.ID, *zone); err != nil {
				return err
			}
			rec.Zone = zone
		}
	}

	// Step 3: idempotent insert. A duplicate identity means a previous,
	// interrupted attempt already landed this record - proceed to eviction.
	if err := e.remote.InsertAttendance(ctx, rec); err != nil && !remote.IsDuplicate(err) {
		return err
	} else if err != nil {
		// Step 4: evict, then surface the duplicate for stats.
		if delErr := e.queue.DeleteAttendance(ctx, rec.ID); delErr != nil {
			return delErr
		}
		return err
	}

	// Step 4: evict on confirmed success.
	return e.queue.DeleteAttendance(ctx, rec.ID)
}

// syncFollowUp uploads the evidence photo and inserts the follow-up row.
func (e *Engine) syncFollowUp(ctx context.Context, p model.PendingFollowUpPhoto) error {
	if len(p.Photo) > 0 {
		url, err := e.storage.Upload(ctx, remote.FollowUpPhotoPath(p.UserID, p.SessionID, p.Slot), photoContentType, p.Photo)
		if err != nil {
			return fmt.Errorf("upload follow-up photo for %s: %w", p.ID, err)
		}
		if err := e.queue.MarkFollowUpPhotoUploaded(ctx, p.ID, url); err != nil {
			return err
		}
		p.Photo = nil
		p.PhotoURL = url
	}

	if err := e.remote.InsertFollowUp(ctx, p); err != nil && !remote.IsDuplicate(err) {
		return err
	} else if err != nil {
		if delErr := e.queue.DeleteFollowUp(ctx, p.ID); delErr != nil {
			return delErr
		}
		return err
	}

	return e.queue.DeleteFollowUp(ctx, p.ID)
}

// syncSample backfills the zone if needed and inserts the sample.
func (e *Engine) syncSample(ctx context.Context, s model.PendingLocationSample) error {
	if s.Zone == nil && s.Coordinate != nil {
		if zone := e.geo.ResolveZone(ctx, s.Coordinate.Lat, s.Coordinate.Lon); zone != nil {
			if err := e.queue.SetSampleZone(ctx, s.ID, *zone); err != nil {
				return err
			}
			s.Zone = zone
		}
	}

	if err := e.remote.InsertSample(ctx, s); err != nil && !remote.IsDuplicate(err) {
		return err
	} else if err != nil {
		if delErr := e.queue.DeleteSample(ctx, s.ID); delErr != nil {
			return delErr
		}
		return err
	}

	return e.queue.DeleteSample(ctx, s.ID)
}

// WriteSample is the location sampler's write path: a direct remote write
// when online, with fallback to the durable queue on any remote error,
// including when no connectivity is available at all. A duplicate identity
// counts as success. Only a failed queue fallback is an error - a sample
// that cannot even be queued has no retry path.
func (e *Engine) WriteSample(ctx context.Context, s model.PendingLocationSample) error {
	if e.online.Online() {
		err := e.remote.InsertSample(ctx, s)
		if err == nil || remote.IsDuplicate(err) {
			return nil
		}
		slog.Debug("direct sample write failed, queueing", "id", s.ID, "error", err)
	}

	if err := e.queue.PutSample(ctx, s); err != nil {
		return fmt.Errorf("sample %s not queued: %w", s.ID, err)
	}
	return nil
}
