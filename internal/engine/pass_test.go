package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/model"
)

func newTestEngine(q Queue, r RemoteStore, u Uploader, g ZoneResolver, online bool) *Engine {
	return New(q, r, u, g, &fakeOnline{online: online})
}

func TestRunPass_UploadsResolvesInsertsEvicts(t *testing.T) {
	ctx := context.Background()
	log := &eventLog{}

	q := &memQueue{attendance: []model.PendingAttendanceRecord{pendingAttendanceFixture("rec-1")}}
	r := newFakeRemote(log)
	u := &fakeUploader{log: log}
	g := &fakeGeo{zone: &model.ZoneResult{Name: "Z1", Code: "Z-001"}}

	stats, err := newTestEngine(q, r, u, g, true).RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, Stats{Attempted: 1, Synced: 1}, stats)
	assert.Empty(t, q.pendingAttendance(), "confirmed record evicted from queue")

	rows := r.attendanceRows()
	require.Contains(t, rows, "rec-1")
	row := rows["rec-1"]
	assert.Equal(t, "https://cdn.example/user-1/rec-1.jpg", row.PhotoURL)
	assert.Nil(t, row.Photo, "remote row carries the reference, not the payload")
	require.NotNil(t, row.Zone, "zone backfilled during the pass")
	assert.Equal(t, "Z1", row.Zone.Name)

	// Photo upload always precedes the insert for the same record.
	assert.Equal(t, []string{"upload:user-1/rec-1.jpg", "insert:rec-1"}, log.all())
}

func TestRunPass_DuplicateIdentityIsSuccess(t *testing.T) {
	ctx := context.Background()

	q := &memQueue{attendance: []model.PendingAttendanceRecord{pendingAttendanceFixture("rec-1")}}
	r := newFakeRemote(nil)
	u := &fakeUploader{}
	g := &fakeGeo{}

	// A previous, interrupted attempt already landed the record remotely.
	require.NoError(t, r.InsertAttendance(ctx, pendingAttendanceFixture("rec-1")))

	stats, err := newTestEngine(q, r, u, g, true).RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 0, stats.Failed, "duplicate identity is confirmation, not failure")
	assert.Equal(t, 1, stats.Succeeded())
	assert.Empty(t, q.pendingAttendance(), "duplicate still evicts the queue entry")
	assert.Len(t, r.attendanceRows(), 1, "exactly one remote row after both submissions")
}

func TestRunPass_OverlappingPassesProcessEachRecordOnce(t *testing.T) {
	ctx := context.Background()

	rec := pendingAttendanceFixture("rec-1")
	rec.Photo = nil
	q := &memQueue{attendance: []model.PendingAttendanceRecord{rec}}
	log := &eventLog{}
	r := newFakeRemote(log)

	// The first insert parks until released, holding its pass open.
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	r.beforeInsert = func() {
		once.Do(func() { close(started) })
		<-release
	}

	eng := newTestEngine(q, r, &fakeUploader{}, &fakeGeo{}, true)

	results := make(chan Stats, 2)
	go func() {
		stats, err := eng.RunPass(ctx)
		assert.NoError(t, err)
		results <- stats
	}()
	<-started

	// A second pass arrives while the first is mid-record. It must wait at
	// the pass boundary, never reaching the remote with the same identity.
	go func() {
		stats, err := eng.RunPass(ctx)
		assert.NoError(t, err)
		results <- stats
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"insert:rec-1"}, log.all(),
		"the overlapping pass must not touch the in-flight record")

	close(release)
	first, second := <-results, <-results

	assert.Equal(t, []string{"insert:rec-1"}, log.all(),
		"identity inserted exactly once across both passes")
	assert.Equal(t, 1, first.Succeeded()+second.Succeeded())
	assert.Equal(t, 1, first.Attempted+second.Attempted,
		"the later pass found an already drained queue")
	assert.Empty(t, q.pendingAttendance())
	assert.Len(t, r.attendanceRows(), 1)
}

func TestRunPass_TransientInsertErrorKeepsRecordQueued(t *testing.T) {
	ctx := context.Background()

	q := &memQueue{attendance: []model.PendingAttendanceRecord{pendingAttendanceFixture("rec-1")}}
	r := newFakeRemote(nil)
	r.insertErr = errTransient
	u := &fakeUploader{}
	g := &fakeGeo{}

	eng := newTestEngine(q, r, u, g, true)

	stats, err := eng.RunPass(ctx)
	require.NoError(t, err, "per-record failures do not abort the pass")
	assert.Equal(t, Stats{Attempted: 1, Failed: 1}, stats)

	pending := q.pendingAttendance()
	require.Len(t, pending, 1, "failed record remains enumerable")

	// Durable mid-pass progress: the photo was uploaded and the blob cleared,
	// so the retry pass skips straight to the insert.
	assert.Nil(t, pending[0].Photo)
	assert.NotEmpty(t, pending[0].PhotoURL)
	assert.Equal(t, 1, u.count())

	// Remote recovers; the retry succeeds without a second upload.
	r.insertErr = nil
	stats, err = eng.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempted: 1, Synced: 1}, stats)
	assert.Empty(t, q.pendingAttendance())
	assert.Equal(t, 1, u.count(), "deterministic path already uploaded, not repeated")
}

func TestRunPass_ResolverMissInsertsZoneUnknown(t *testing.T) {
	ctx := context.Background()

	rec := pendingAttendanceFixture("rec-1")
	rec.Photo = nil // nothing to upload
	q := &memQueue{attendance: []model.PendingAttendanceRecord{rec}}
	r := newFakeRemote(nil)
	g := &fakeGeo{zone: nil} // lookup miss or failure

	stats, err := newTestEngine(q, r, &fakeUploader{}, g, true).RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced, "resolver failure never blocks the write")
	row := r.attendanceRows()["rec-1"]
	assert.Nil(t, row.Zone)
	assert.Equal(t, 1, g.calls)
}

func TestRunPass_SkipsResolutionWithoutCoordinate(t *testing.T) {
	ctx := context.Background()

	rec := pendingAttendanceFixture("rec-1")
	rec.Photo = nil
	rec.Coordinate = nil
	q := &memQueue{attendance: []model.PendingAttendanceRecord{rec}}
	g := &fakeGeo{zone: &model.ZoneResult{Name: "Z1", Code: "Z-001"}}

	_, err := newTestEngine(q, newFakeRemote(nil), &fakeUploader{}, g, true).RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, g.calls, "no coordinate, nothing to resolve")
}

func TestRunPass_DrainsFollowUpsAndSamples(t *testing.T) {
	ctx := context.Background()

	q := &memQueue{
		followUps: []model.PendingFollowUpPhoto{{
			ID: "fup-1", UserID: "user-1", Day: "2025-03-10", SessionID: "sess-1", Slot: model.SlotTwo,
			TakenAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
			Photo:   []byte("evidence"),
		}},
		samples: []model.PendingLocationSample{{
			ID: "smp-1", UserID: "user-1", Day: "2025-03-10", SessionID: "sess-1",
			SampledAt:  time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
			Coordinate: &model.Coordinate{Lat: 10, Lon: -75},
			Source:     model.SampleHourly,
		}},
	}
	r := newFakeRemote(nil)
	u := &fakeUploader{}
	g := &fakeGeo{zone: &model.ZoneResult{Name: "Z1", Code: "Z-001"}}

	stats, err := newTestEngine(q, r, u, g, true).RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, Stats{Attempted: 2, Synced: 2}, stats)
	assert.Empty(t, q.pendingSamples())
	assert.Contains(t, r.followUps, "fup-1")
	assert.Equal(t, "https://cdn.example/user-1/sess-1_seg_2.jpg", r.followUps["fup-1"].PhotoURL)
	require.Contains(t, r.samples, "smp-1")
	require.NotNil(t, r.samples["smp-1"].Zone)
	assert.Equal(t, "Z1", r.samples["smp-1"].Zone.Name)
}

func TestWriteSample_DirectWhenOnline(t *testing.T) {
	ctx := context.Background()
	q := &memQueue{}
	r := newFakeRemote(nil)

	eng := newTestEngine(q, r, &fakeUploader{}, &fakeGeo{}, true)

	s := model.PendingLocationSample{ID: "smp-1", UserID: "user-1", Day: "2025-03-10", Source: model.SampleManual}
	require.NoError(t, eng.WriteSample(ctx, s))

	assert.Contains(t, r.samples, "smp-1")
	assert.Empty(t, q.pendingSamples(), "direct write does not touch the queue")
}

func TestWriteSample_FallsBackToQueueOffline(t *testing.T) {
	ctx := context.Background()
	q := &memQueue{}
	r := newFakeRemote(nil)

	eng := newTestEngine(q, r, &fakeUploader{}, &fakeGeo{}, false)

	s := model.PendingLocationSample{ID: "smp-1", UserID: "user-1", Day: "2025-03-10", Source: model.SampleHourly}
	require.NoError(t, eng.WriteSample(ctx, s))

	assert.Empty(t, r.samples)
	assert.Len(t, q.pendingSamples(), 1)
}

func TestWriteSample_FallsBackToQueueOnRemoteError(t *testing.T) {
	ctx := context.Background()
	q := &memQueue{}
	r := newFakeRemote(nil)
	r.insertErr = errTransient

	eng := newTestEngine(q, r, &fakeUploader{}, &fakeGeo{}, true)

	s := model.PendingLocationSample{ID: "smp-1", UserID: "user-1", Day: "2025-03-10", Source: model.SampleHourly}
	require.NoError(t, eng.WriteSample(ctx, s))
	assert.Len(t, q.pendingSamples(), 1)
}

func TestWriteSample_QueueFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	q := &memQueue{putErr: errTransient}

	eng := newTestEngine(q, newFakeRemote(nil), &fakeUploader{}, &fakeGeo{}, false)

	s := model.PendingLocationSample{ID: "smp-1", UserID: "user-1", Day: "2025-03-10", Source: model.SampleHourly}
	err := eng.WriteSample(ctx, s)
	require.Error(t, err, "a sample that cannot even be queued must be reported")
	assert.ErrorContains(t, err, "not queued")
}

func TestRun_ReconnectTriggersDrain(t *testing.T) {
	q := &memQueue{attendance: []model.PendingAttendanceRecord{pendingAttendanceFixture("rec-1")}}
	r := newFakeRemote(nil)
	online := &fakeOnline{online: false}
	changes := make(chan bool, 1)

	eng := New(q, r, &fakeUploader{}, &fakeGeo{}, online,
		WithInterval(time.Hour), // keep the ticker out of this test
		WithConnectivityChanges(changes),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()

	// Offline kick: nothing drains.
	eng.Kick()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, q.pendingAttendance(), 1)

	// Connectivity resumes: the transition drains the queue.
	online.set(true)
	changes <- true

	require.Eventually(t, func() bool {
		return len(q.pendingAttendance()) == 0
	}, 2*time.Second, 10*time.Millisecond, "reconnect trigger must drain the queue")

	cancel()
	<-done
}

func TestRun_KickTriggersDrainWhileOnline(t *testing.T) {
	q := &memQueue{attendance: []model.PendingAttendanceRecord{pendingAttendanceFixture("rec-1")}}
	r := newFakeRemote(nil)

	eng := New(q, r, &fakeUploader{}, &fakeGeo{}, &fakeOnline{online: true},
		WithInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()

	eng.Kick()

	require.Eventually(t, func() bool {
		return len(q.pendingAttendance()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
