package queue

import (
	"context"
	"fmt"
	"time"

	"fieldsync/internal/model"
)

// timeLayout is the canonical encoding for timestamps stored in the queue.
const timeLayout = time.RFC3339Nano

// PutAttendance upserts a pending attendance record by identity.
// The write is atomic: either the full record is durable or nothing is.
// A failed put must be surfaced to the capture path as a capture failure.
func (q *Queue) PutAttendance(ctx context.Context, rec model.PendingAttendanceRecord) error {
	lat, lon, acc := coordColumns(rec.Coordinate)
	zoneName, zoneCode := zoneColumns(rec.Zone)

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_attendance
		(id, user_id, day, kind, event_time, lat, lon, accuracy, outside_zone,
		 photo, photo_url, zone_name, zone_code, inconsistent, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			event_time = excluded.event_time,
			lat = excluded.lat,
			lon = excluded.lon,
			accuracy = excluded.accuracy,
			outside_zone = excluded.outside_zone,
			photo = excluded.photo,
			photo_url = excluded.photo_url,
			zone_name = excluded.zone_name,
			zone_code = excluded.zone_code,
			inconsistent = excluded.inconsistent,
			note = excluded.note
	`,
		rec.ID, rec.UserID, rec.Day, string(rec.Kind),
		rec.EventTime.UTC().Format(timeLayout),
		lat, lon, acc, boolInt(rec.OutsideZone),
		rec.Photo, rec.PhotoURL, zoneName, zoneCode,
		boolInt(rec.Inconsistent), rec.Note,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("put attendance %s: %w", rec.ID, err)
	}
	return nil
}

// PutSample upserts a pending location sample by identity.
func (q *Queue) PutSample(ctx context.Context, s model.PendingLocationSample) error {
	lat, lon, acc := coordColumns(s.Coordinate)
	zoneName, zoneCode := zoneColumns(s.Zone)

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_location_samples
		(id, user_id, day, session_id, sampled_at, lat, lon, accuracy,
		 outside_zone, zone_name, zone_code, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sampled_at = excluded.sampled_at,
			lat = excluded.lat,
			lon = excluded.lon,
			accuracy = excluded.accuracy,
			outside_zone = excluded.outside_zone,
			zone_name = excluded.zone_name,
			zone_code = excluded.zone_code,
			source = excluded.source
	`,
		s.ID, s.UserID, s.Day, s.SessionID,
		s.SampledAt.UTC().Format(timeLayout),
		lat, lon, acc, boolInt(s.OutsideZone),
		zoneName, zoneCode, string(s.Source),
		s.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("put sample %s: %w", s.ID, err)
	}
	return nil
}

// PutFollowUp upserts a pending follow-up photo and, in the same transaction,
// deletes any other pending entry for the same (user, session, slot). A new
// capture for a slot supersedes any earlier unsynced one.
func (q *Queue) PutFollowUp(ctx context.Context, p model.PendingFollowUpPhoto) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put follow-up %s: begin tx: %w", p.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		DELETE FROM pending_follow_up_photos
		WHERE user_id = ? AND session_id = ? AND slot = ? AND id != ?
	`, p.UserID, p.SessionID, int(p.Slot), p.ID)
	if err != nil {
		return fmt.Errorf("put follow-up %s: supersede: %w", p.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_follow_up_photos
		(id, user_id, day, session_id, slot, taken_at, photo, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			taken_at = excluded.taken_at,
			photo = excluded.photo,
			photo_url = excluded.photo_url
	`,
		p.ID, p.UserID, p.Day, p.SessionID, int(p.Slot),
		p.TakenAt.UTC().Format(timeLayout),
		p.Photo, p.PhotoURL,
		p.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("put follow-up %s: insert: %w", p.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put follow-up %s: commit: %w", p.ID, err)
	}
	return nil
}

// DeleteAttendance removes a pending attendance record after a confirmed sync.
func (q *Queue) DeleteAttendance(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_attendance WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete attendance %s: %w", id, err)
	}
	return nil
}

// DeleteSample removes a pending location sample.
func (q *Queue) DeleteSample(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_location_samples WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete sample %s: %w", id, err)
	}
	return nil
}

// DeleteFollowUp removes a pending follow-up photo.
func (q *Queue) DeleteFollowUp(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_follow_up_photos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete follow-up %s: %w", id, err)
	}
	return nil
}

// SetAttendanceZone attaches a zone resolution to a queued record. Called by
// the sync engine when geo backfill succeeds mid-pass, so an interrupted pass
// does not re-resolve on retry.
func (q *Queue) SetAttendanceZone(ctx context.Context, id string, zone model.ZoneResult) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pending_attendance SET zone_name = ?, zone_code = ? WHERE id = ?
	`, zone.Name, zone.Code, id)
	if err != nil {
		return fmt.Errorf("set attendance zone %s: %w", id, err)
	}
	return nil
}

// SetSampleZone attaches a zone resolution to a queued sample.
func (q *Queue) SetSampleZone(ctx context.Context, id string, zone model.ZoneResult) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pending_location_samples SET zone_name = ?, zone_code = ? WHERE id = ?
	`, zone.Name, zone.Code, id)
	if err != nil {
		return fmt.Errorf("set sample zone %s: %w", id, err)
	}
	return nil
}

// MarkAttendancePhotoUploaded replaces the held photo payload with its remote
// reference. The blob is cleared only here, after a confirmed upload, so a
// crash between upload and insert resumes without losing the capture.
func (q *Queue) MarkAttendancePhotoUploaded(ctx context.Context, id, url string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pending_attendance SET photo = NULL, photo_url = ? WHERE id = ?
	`, url, id)
	if err != nil {
		return fmt.Errorf("mark attendance photo uploaded %s: %w", id, err)
	}
	return nil
}

// MarkFollowUpPhotoUploaded replaces a follow-up photo payload with its remote
// reference after a confirmed upload.
func (q *Queue) MarkFollowUpPhotoUploaded(ctx context.Context, id, url string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pending_follow_up_photos SET photo = NULL, photo_url = ? WHERE id = ?
	`, url, id)
	if err != nil {
		return fmt.Errorf("mark follow-up photo uploaded %s: %w", id, err)
	}
	return nil
}

func coordColumns(c *model.Coordinate) (lat, lon, acc any) {
	if c == nil {
		return nil, nil, nil
	}
	return c.Lat, c.Lon, c.Accuracy
}

func zoneColumns(z *model.ZoneResult) (name, code any) {
	if z == nil {
		return nil, nil
	}
	return z.Name, z.Code
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
