package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldsync/internal/model"
)

// ListAttendanceByUserAndDate returns all pending attendance records for the
// given user and calendar date, oldest first (stable drain order: created_at
// ASC, id ASC tiebreak). Returns an empty slice, not nil, when nothing is
// pending. Uses the (user_id, day) index - never a full-table scan.
func (q *Queue) ListAttendanceByUserAndDate(ctx context.Context, userID, day string) ([]model.PendingAttendanceRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, day, kind, event_time, lat, lon, accuracy,
		       outside_zone, photo, photo_url, zone_name, zone_code,
		       inconsistent, note, created_at
		FROM pending_attendance
		WHERE user_id = ? AND day = ?
		ORDER BY created_at ASC, id ASC
	`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("query pending attendance: %w", err)
	}
	defer rows.Close()

	records := []model.PendingAttendanceRecord{}
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending attendance: %w", err)
	}
	return records, nil
}

// ListSamplesByUserAndDate returns all pending location samples for the given
// user and calendar date, oldest first.
func (q *Queue) ListSamplesByUserAndDate(ctx context.Context, userID, day string) ([]model.PendingLocationSample, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, day, session_id, sampled_at, lat, lon, accuracy,
		       outside_zone, zone_name, zone_code, source, created_at
		FROM pending_location_samples
		WHERE user_id = ? AND day = ?
		ORDER BY created_at ASC, id ASC
	`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("query pending samples: %w", err)
	}
	defer rows.Close()

	samples := []model.PendingLocationSample{}
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending samples: %w", err)
	}
	return samples, nil
}

// ListFollowUpsByUserAndDate returns pending follow-up photos captured on the
// given calendar date, oldest first. The day column carries the capture-local
// date, so entries stay visible on the day the worker captured them even when
// their UTC created_at has already rolled over.
func (q *Queue) ListFollowUpsByUserAndDate(ctx context.Context, userID, day string) ([]model.PendingFollowUpPhoto, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, day, session_id, slot, taken_at, photo, photo_url, created_at
		FROM pending_follow_up_photos
		WHERE user_id = ? AND day = ?
		ORDER BY created_at ASC, id ASC
	`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("query pending follow-ups: %w", err)
	}
	defer rows.Close()

	photos := []model.PendingFollowUpPhoto{}
	for rows.Next() {
		p, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending follow-ups: %w", err)
	}
	return photos, nil
}

// ListAllAttendance returns every pending attendance record across all users,
// oldest first. Used by the sync engine to drain the full backlog.
func (q *Queue) ListAllAttendance(ctx context.Context) ([]model.PendingAttendanceRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, day, kind, event_time, lat, lon, accuracy,
		       outside_zone, photo, photo_url, zone_name, zone_code,
		       inconsistent, note, created_at
		FROM pending_attendance
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all pending attendance: %w", err)
	}
	defer rows.Close()

	records := []model.PendingAttendanceRecord{}
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate all pending attendance: %w", err)
	}
	return records, nil
}

// ListAllSamples returns every pending location sample, oldest first.
func (q *Queue) ListAllSamples(ctx context.Context) ([]model.PendingLocationSample, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, day, session_id, sampled_at, lat, lon, accuracy,
		       outside_zone, zone_name, zone_code, source, created_at
		FROM pending_location_samples
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all pending samples: %w", err)
	}
	defer rows.Close()

	samples := []model.PendingLocationSample{}
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate all pending samples: %w", err)
	}
	return samples, nil
}

// ListAllFollowUps returns every pending follow-up photo, oldest first.
func (q *Queue) ListAllFollowUps(ctx context.Context) ([]model.PendingFollowUpPhoto, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, day, session_id, slot, taken_at, photo, photo_url, created_at
		FROM pending_follow_up_photos
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all pending follow-ups: %w", err)
	}
	defer rows.Close()

	photos := []model.PendingFollowUpPhoto{}
	for rows.Next() {
		p, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate all pending follow-ups: %w", err)
	}
	return photos, nil
}

func scanAttendance(rows *sql.Rows) (model.PendingAttendanceRecord, error) {
	var (
		rec                model.PendingAttendanceRecord
		kind               string
		eventTime, created string
		lat, lon, acc      sql.NullFloat64
		zoneName, zoneCode sql.NullString
		outside, incons    int
	)
	if err := rows.Scan(
		&rec.ID, &rec.UserID, &rec.Day, &kind, &eventTime,
		&lat, &lon, &acc, &outside, &rec.Photo, &rec.PhotoURL,
		&zoneName, &zoneCode, &incons, &rec.Note, &created,
	); err != nil {
		return model.PendingAttendanceRecord{}, fmt.Errorf("scan pending attendance: %w", err)
	}

	rec.Kind = model.EventKind(kind)
	rec.OutsideZone = outside != 0
	rec.Inconsistent = incons != 0
	rec.Coordinate = coordFromColumns(lat, lon, acc)
	rec.Zone = zoneFromColumns(zoneName, zoneCode)

	var err error
	if rec.EventTime, err = parseStoredTime(eventTime); err != nil {
		return model.PendingAttendanceRecord{}, err
	}
	if rec.CreatedAt, err = parseStoredTime(created); err != nil {
		return model.PendingAttendanceRecord{}, err
	}
	return rec, nil
}

func scanSample(rows *sql.Rows) (model.PendingLocationSample, error) {
	var (
		s                  model.PendingLocationSample
		sampledAt, created string
		source             string
		lat, lon, acc      sql.NullFloat64
		zoneName, zoneCode sql.NullString
		outside            int
	)
	if err := rows.Scan(
		&s.ID, &s.UserID, &s.Day, &s.SessionID, &sampledAt,
		&lat, &lon, &acc, &outside, &zoneName, &zoneCode, &source, &created,
	); err != nil {
		return model.PendingLocationSample{}, fmt.Errorf("scan pending sample: %w", err)
	}

	s.Source = model.SampleSource(source)
	s.OutsideZone = outside != 0
	s.Coordinate = coordFromColumns(lat, lon, acc)
	s.Zone = zoneFromColumns(zoneName, zoneCode)

	var err error
	if s.SampledAt, err = parseStoredTime(sampledAt); err != nil {
		return model.PendingLocationSample{}, err
	}
	if s.CreatedAt, err = parseStoredTime(created); err != nil {
		return model.PendingLocationSample{}, err
	}
	return s, nil
}

func scanFollowUp(rows *sql.Rows) (model.PendingFollowUpPhoto, error) {
	var (
		p                model.PendingFollowUpPhoto
		slot             int
		takenAt, created string
	)
	if err := rows.Scan(
		&p.ID, &p.UserID, &p.Day, &p.SessionID, &slot, &takenAt,
		&p.Photo, &p.PhotoURL, &created,
	); err != nil {
		return model.PendingFollowUpPhoto{}, fmt.Errorf("scan pending follow-up: %w", err)
	}

	p.Slot = model.EvidenceSlot(slot)

	var err error
	if p.TakenAt, err = parseStoredTime(takenAt); err != nil {
		return model.PendingFollowUpPhoto{}, err
	}
	if p.CreatedAt, err = parseStoredTime(created); err != nil {
		return model.PendingFollowUpPhoto{}, err
	}
	return p, nil
}

func coordFromColumns(lat, lon, acc sql.NullFloat64) *model.Coordinate {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &model.Coordinate{Lat: lat.Float64, Lon: lon.Float64, Accuracy: acc.Float64}
}

func zoneFromColumns(name, code sql.NullString) *model.ZoneResult {
	if !name.Valid || !code.Valid {
		return nil
	}
	return &model.ZoneResult{Name: name.String, Code: code.String}
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
