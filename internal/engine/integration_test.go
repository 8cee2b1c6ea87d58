package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/attendance"
	"fieldsync/internal/ident"
	"fieldsync/internal/model"
	"fieldsync/internal/queue"
)

// ListAttendanceByUserAndDate lets the fake remote serve the merged view,
// mirroring the remote store's query contract: desc by event time, rows
// marked synced with the final zone resolution.
func (r *fakeRemote) ListAttendanceByUserAndDate(_ context.Context, userID, day string) ([]model.AttendanceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []model.AttendanceEntry{}
	for _, rec := range r.attendance {
		if rec.UserID != userID || rec.Day != day {
			continue
		}
		entries = append(entries, model.AttendanceEntry{
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
			Synced:       true,
		})
	}
	return entries, nil
}

// TestOfflineCaptureThenReconnect walks the full offline-first flow: a
// clock-in captured offline with a coordinate and photo is durably queued
// with null zone fields; once connectivity resumes, one sync pass uploads
// the photo, backfills the zone, inserts remotely, and evicts the queue
// entry; the merged view then shows a single synced record.
func TestOfflineCaptureThenReconnect(t *testing.T) {
	ctx := context.Background()

	q, err := queue.Open(filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	defer q.Close()

	online := &fakeOnline{online: false}
	remoteStore := newFakeRemote(nil)
	uploader := &fakeUploader{}
	geo := &fakeGeo{zone: &model.ZoneResult{Name: "Z1", Code: "Z-001"}}

	eng := New(q, remoteStore, uploader, geo, online)

	view := attendance.NewViewBuilder(q, remoteStore, online)
	captureTime := time.Date(2025, 3, 10, 8, 2, 0, 0, time.UTC)
	svc := attendance.NewService(
		q, view, geo, online,
		ident.NewFixedGenerator("rec-1"),
		func() time.Time { return captureTime },
		eng.Kick,
	)

	// Offline capture with coordinate (10.0, -75.0) and photo P.
	coord := &model.Coordinate{Lat: 10.0, Lon: -75.0, Accuracy: 4}
	rec, err := svc.CaptureAttendance(ctx, "user-1", model.EventClockIn, []byte("P"), coord, false)
	require.NoError(t, err, "capture succeeds as soon as the record is durably queued")
	assert.Nil(t, rec.Zone, "zone fields stay null offline")
	assert.Equal(t, 0, geo.calls, "no resolution attempted offline")

	queued, err := q.ListAttendanceByUserAndDate(ctx, "user-1", "2025-03-10")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, []byte("P"), queued[0].Photo)

	// Connectivity resumes; one pass reconciles everything.
	online.set(true)
	stats, err := eng.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempted: 1, Synced: 1}, stats)

	rows := remoteStore.attendanceRows()
	require.Contains(t, rows, "rec-1")
	require.NotNil(t, rows["rec-1"].Zone)
	assert.Equal(t, "Z1", rows["rec-1"].Zone.Name)
	assert.Equal(t, "https://cdn.example/user-1/rec-1.jpg", rows["rec-1"].PhotoURL)

	remaining, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining, "no pending entries remain")

	// Merged view now shows exactly one synced record with the final zone.
	today, err := svc.TodayView(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, today.Entries, 1)
	assert.True(t, today.Entries[0].Synced)
	require.NotNil(t, today.Entries[0].Zone)
	assert.Equal(t, "Z1", today.Entries[0].Zone.Name)
}

// TestInterruptedPassResumesAsQueued simulates a crash between the photo
// upload and the remote insert: the reopened queue still enumerates the
// record, with the uploaded reference preserved, and the next pass completes
// without re-uploading.
func TestInterruptedPassResumesAsQueued(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pending.db")

	q1, err := queue.Open(path)
	require.NoError(t, err)

	online := &fakeOnline{online: true}
	remoteStore := newFakeRemote(nil)
	remoteStore.insertErr = errTransient // insert never lands this "process lifetime"
	uploader := &fakeUploader{}

	rec := pendingAttendanceFixture("rec-1")
	require.NoError(t, q1.PutAttendance(ctx, rec))

	eng1 := New(q1, remoteStore, uploader, &fakeGeo{}, online)
	stats, err := eng1.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	require.NoError(t, q1.Close()) // "crash"

	// Restart: same queue file, fresh engine, remote healthy again.
	q2, err := queue.Open(path)
	require.NoError(t, err)
	defer q2.Close()

	remoteStore.insertErr = nil
	eng2 := New(q2, remoteStore, uploader, &fakeGeo{}, online)
	stats, err = eng2.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempted: 1, Synced: 1}, stats)

	assert.Equal(t, 1, uploader.count(), "upload survived the restart via the queue row")
	assert.Contains(t, remoteStore.attendanceRows(), "rec-1")
}
