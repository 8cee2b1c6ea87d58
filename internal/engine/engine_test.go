package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldsync/internal/model"
	"fieldsync/internal/remote"
)

// eventLog records cross-fake call ordering for causality assertions.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// memQueue is an in-memory Queue for unit tests.
type memQueue struct {
	mu         sync.Mutex
	attendance []model.PendingAttendanceRecord
	samples    []model.PendingLocationSample
	followUps  []model.PendingFollowUpPhoto
	putErr     error
}

func (q *memQueue) ListAllAttendance(context.Context) ([]model.PendingAttendanceRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.PendingAttendanceRecord(nil), q.attendance...), nil
}

func (q *memQueue) ListAllSamples(context.Context) ([]model.PendingLocationSample, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.PendingLocationSample(nil), q.samples...), nil
}

func (q *memQueue) ListAllFollowUps(context.Context) ([]model.PendingFollowUpPhoto, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.PendingFollowUpPhoto(nil), q.followUps...), nil
}

func (q *memQueue) SetAttendanceZone(_ context.Context, id string, zone model.ZoneResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.attendance {
		if q.attendance[i].ID == id {
			z := zone
			q.attendance[i].Zone = &z
		}
	}
	return nil
}

func (q *memQueue) SetSampleZone(_ context.Context, id string, zone model.ZoneResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.samples {
		if q.samples[i].ID == id {
			z := zone
			q.samples[i].Zone = &z
		}
	}
	return nil
}

func (q *memQueue) MarkAttendancePhotoUploaded(_ context.Context, id, url string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.attendance {
		if q.attendance[i].ID == id {
			q.attendance[i].Photo = nil
			q.attendance[i].PhotoURL = url
		}
	}
	return nil
}

func (q *memQueue) MarkFollowUpPhotoUploaded(_ context.Context, id, url string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.followUps {
		if q.followUps[i].ID == id {
			q.followUps[i].Photo = nil
			q.followUps[i].PhotoURL = url
		}
	}
	return nil
}

func (q *memQueue) DeleteAttendance(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.attendance {
		if q.attendance[i].ID == id {
			q.attendance = append(q.attendance[:i], q.attendance[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) DeleteSample(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.samples {
		if q.samples[i].ID == id {
			q.samples = append(q.samples[:i], q.samples[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) DeleteFollowUp(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.followUps {
		if q.followUps[i].ID == id {
			q.followUps = append(q.followUps[:i], q.followUps[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) PutSample(_ context.Context, s model.PendingLocationSample) error {
	if q.putErr != nil {
		return q.putErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.samples = append(q.samples, s)
	return nil
}

func (q *memQueue) pendingAttendance() []model.PendingAttendanceRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.PendingAttendanceRecord(nil), q.attendance...)
}

func (q *memQueue) pendingSamples() []model.PendingLocationSample {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.PendingLocationSample(nil), q.samples...)
}

// fakeRemote is an in-memory RemoteStore with identity uniqueness.
type fakeRemote struct {
	mu           sync.Mutex
	attendance   map[string]model.PendingAttendanceRecord
	samples      map[string]model.PendingLocationSample
	followUps    map[string]model.PendingFollowUpPhoto
	insertErr    error  // injected transient failure
	beforeInsert func() // runs before each attendance insert, set before use
	log          *eventLog
}

func newFakeRemote(log *eventLog) *fakeRemote {
	return &fakeRemote{
		attendance: map[string]model.PendingAttendanceRecord{},
		samples:    map[string]model.PendingLocationSample{},
		followUps:  map[string]model.PendingFollowUpPhoto{},
		log:        log,
	}
}

func (r *fakeRemote) InsertAttendance(_ context.Context, rec model.PendingAttendanceRecord) error {
	if r.log != nil {
		r.log.add("insert:" + rec.ID)
	}
	if r.beforeInsert != nil {
		r.beforeInsert()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.attendance[rec.ID]; ok {
		return fmt.Errorf("insert attendance %s: %w", rec.ID, remote.ErrDuplicateIdentity)
	}
	r.attendance[rec.ID] = rec
	return nil
}

func (r *fakeRemote) InsertSample(_ context.Context, s model.PendingLocationSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.samples[s.ID]; ok {
		return fmt.Errorf("insert sample %s: %w", s.ID, remote.ErrDuplicateIdentity)
	}
	r.samples[s.ID] = s
	return nil
}

func (r *fakeRemote) InsertFollowUp(_ context.Context, p model.PendingFollowUpPhoto) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.followUps[p.ID]; ok {
		return fmt.Errorf("insert follow-up %s: %w", p.ID, remote.ErrDuplicateIdentity)
	}
	r.followUps[p.ID] = p
	return nil
}

func (r *fakeRemote) attendanceRows() map[string]model.PendingAttendanceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.PendingAttendanceRecord, len(r.attendance))
	for k, v := range r.attendance {
		out[k] = v
	}
	return out
}

// fakeUploader records uploads and returns deterministic public references.
type fakeUploader struct {
	mu        sync.Mutex
	uploads   []string
	uploadErr error
	log       *eventLog
}

func (u *fakeUploader) Upload(_ context.Context, path, _ string, _ []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.log != nil {
		u.log.add("upload:" + path)
	}
	if u.uploadErr != nil {
		return "", u.uploadErr
	}
	u.uploads = append(u.uploads, path)
	return "https://cdn.example/" + path, nil
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploads)
}

// fakeGeo resolves every coordinate to a fixed zone (or nil).
type fakeGeo struct {
	zone  *model.ZoneResult
	calls int
}

func (g *fakeGeo) ResolveZone(context.Context, float64, float64) *model.ZoneResult {
	g.calls++
	return g.zone
}

type fakeOnline struct {
	mu     sync.Mutex
	online bool
}

func (f *fakeOnline) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeOnline) set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = v
}

var errTransient = errors.New("connection reset")

func pendingAttendanceFixture(id string) model.PendingAttendanceRecord {
	return model.PendingAttendanceRecord{
		ID:         id,
		UserID:     "user-1",
		Day:        "2025-03-10",
		Kind:       model.EventClockIn,
		EventTime:  time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		Coordinate: &model.Coordinate{Lat: 10.0, Lon: -75.0, Accuracy: 5},
		Photo:      []byte("jpeg-bytes"),
		CreatedAt:  time.Date(2025, 3, 10, 8, 0, 1, 0, time.UTC),
	}
}
