// Package model defines the domain types shared by the capture paths,
// the durable queue, and the sync engine.
package model

import "time"

// EventKind distinguishes the two attendance event types.
type EventKind string

const (
	EventClockIn  EventKind = "clock-in"
	EventClockOut EventKind = "clock-out"
)

// SampleSource tags how a location sample was captured.
type SampleSource string

const (
	SampleHourly       SampleSource = "hourly"
	SampleSessionStart SampleSource = "session-start"
	SampleSessionEnd   SampleSource = "session-end"
	SampleManual       SampleSource = "manual"
)

// EvidenceSlot identifies one of the two follow-up photo slots of a session.
type EvidenceSlot int

const (
	SlotOne EvidenceSlot = 1
	SlotTwo EvidenceSlot = 2
)

// Coordinate is a best-effort device position.
type Coordinate struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy"`
}

// ZoneResult is a named geographic zone returned by the point-lookup service.
// Name and Code travel together: a record carries either both or neither.
type ZoneResult struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// PendingAttendanceRecord is a clock-in or clock-out capture that has not yet
// been confirmed written to the remote store.
//
// INVARIANTS:
//   - exactly one photo per record: Photo holds the bytes until a confirmed
//     upload, after which Photo is nil and PhotoURL carries the remote reference
//   - Zone is either fully set or nil (both identifiers travel together)
//   - only the sync engine mutates a queued record (zone backfill, photo swap)
type PendingAttendanceRecord struct {
	ID           string
	UserID       string
	Day          string // calendar date, YYYY-MM-DD
	Kind         EventKind
	EventTime    time.Time
	Coordinate   *Coordinate
	OutsideZone  bool
	Photo        []byte // cleared only after confirmed upload
	PhotoURL     string // remote reference once uploaded
	Zone         *ZoneResult
	Inconsistent bool
	Note         string
	CreatedAt    time.Time
}

// PendingLocationSample is a periodic or event-driven position sample awaiting
// remote confirmation. Samples carry no photo.
type PendingLocationSample struct {
	ID          string
	UserID      string
	Day         string
	SessionID   string // parent attendance session
	SampledAt   time.Time
	Coordinate  *Coordinate
	OutsideZone bool
	Zone        *ZoneResult
	Source      SampleSource
	CreatedAt   time.Time
}

// PendingFollowUpPhoto is additional photo evidence for an attendance session.
//
// INVARIANT: at most one live pending entry per (user, session, slot); a new
// capture for the same slot supersedes any earlier unsynced one.
type PendingFollowUpPhoto struct {
	ID        string
	UserID    string
	Day       string // calendar date of the capture, YYYY-MM-DD
	SessionID string
	Slot      EvidenceSlot
	TakenAt   time.Time
	Photo     []byte
	PhotoURL  string
	CreatedAt time.Time
}

// AttendanceEntry is one row of the merged "today" view. Synced entries come
// from the remote store and carry the final zone resolution; pending entries
// mirror their queued record.
type AttendanceEntry struct {
	ID           string
	UserID       string
	Day          string
	Kind         EventKind
	EventTime    time.Time
	Coordinate   *Coordinate
	OutsideZone  bool
	PhotoURL     string
	Zone         *ZoneResult
	Inconsistent bool
	Note         string
	Synced       bool
}

// DayOf formats a timestamp as the calendar-date key used to scope queue and
// remote reads.
func DayOf(t time.Time) string {
	return t.Format("2006-01-02")
}

// TodayView is the date-scoped union of remote and local-pending attendance
// for one user, deduplicated by identity with remote precedence, ordered by
// event timestamp descending.
type TodayView struct {
	UserID  string
	Day     string
	Entries []AttendanceEntry
}
