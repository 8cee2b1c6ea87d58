// Package engine implements the sync engine: it drains the local durable
// queue against the remote store, uploading held photos, backfilling zone
// resolutions, and performing idempotent identity-keyed inserts, then evicts
// each record from the queue on confirmed success.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/model"
)

// Queue is the durable-queue surface the engine drains and mutates.
// The queue is the single source of truth for not-yet-confirmed writes;
// the engine is the only component that mutates or evicts queued records.
type Queue interface {
	ListAllAttendance(ctx context.Context) ([]model.PendingAttendanceRecord, error)
	ListAllSamples(ctx context.Context) ([]model.PendingLocationSample, error)
	ListAllFollowUps(ctx context.Context) ([]model.PendingFollowUpPhoto, error)

	SetAttendanceZone(ctx context.Context, id string, zone model.ZoneResult) error
	SetSampleZone(ctx context.Context, id string, zone model.ZoneResult) error
	MarkAttendancePhotoUploaded(ctx context.Context, id, url string) error
	MarkFollowUpPhotoUploaded(ctx context.Context, id, url string) error

	DeleteAttendance(ctx context.Context, id string) error
	DeleteSample(ctx context.Context, id string) error
	DeleteFollowUp(ctx context.Context, id string) error

	PutSample(ctx context.Context, s model.PendingLocationSample) error
}

// RemoteStore inserts fully-formed records by their original identity.
// A duplicate identity must be reported via remote.ErrDuplicateIdentity.
type RemoteStore interface {
	InsertAttendance(ctx context.Context, rec model.PendingAttendanceRecord) error
	InsertSample(ctx context.Context, s model.PendingLocationSample) error
	InsertFollowUp(ctx context.Context, p model.PendingFollowUpPhoto) error
}

// Uploader stores photo payloads at deterministic, overwrite-safe paths.
type Uploader interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// ZoneResolver backfills zone resolutions for records captured offline.
type ZoneResolver interface {
	ResolveZone(ctx context.Context, lat, lon float64) *model.ZoneResult
}

// Connectivity reports the current online/offline state.
type Connectivity interface {
	Online() bool
}

// DefaultInterval is the periodic sync cadence while online. It bounds the
// worst-case sync latency independent of user action.
const DefaultInterval = 5 * time.Minute

// Engine drains the durable queue. Triggers: the offline-to-online
// transition, a fixed interval while online, and explicit kicks after a
// successful capture. Overlapping triggers never double-process a record:
// the pass mutex admits one pass at a time, and coalescing trigger channels
// collapse bursts into a single follow-up pass.
type Engine struct {
	queue   Queue
	remote  RemoteStore
	storage Uploader
	geo     ZoneResolver
	online  Connectivity

	interval time.Duration
	changes  <-chan bool   // connectivity transitions, may be nil
	kick     chan struct{} // explicit trigger, buffered size 1

	// passMu serializes passes: a pass must complete before the next starts,
	// whether triggered by the Run loop or an explicit RunPass call.
	passMu sync.Mutex
}

// Option configures the engine.
type Option func(*Engine)

// WithInterval overrides the periodic sync cadence.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithConnectivityChanges subscribes the Run loop to connectivity
// transitions so an offline-to-online edge triggers an immediate pass.
func WithConnectivityChanges(ch <-chan bool) Option {
	return func(e *Engine) {
		e.changes = ch
	}
}

// New creates a sync engine over the given queue and remote services.
func New(queue Queue, remote RemoteStore, storage Uploader, geo ZoneResolver, online Connectivity, opts ...Option) *Engine {
	e := &Engine{
		queue:    queue,
		remote:   remote,
		storage:  storage,
		geo:      geo,
		online:   online,
		interval: DefaultInterval,
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kick requests a sync pass. Non-blocking and safe from any goroutine;
// the buffer of 1 coalesces bursts of capture triggers.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run is the trigger loop. Blocks until the context is cancelled.
// Each trigger runs one pass to completion before the next select, so
// triggers overlapping in time cannot start concurrent passes.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("sync engine starting", "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync engine stopping: context cancelled")
			return ctx.Err()

		case online, ok := <-e.changes:
			if !ok {
				e.changes = nil // subscription closed, keep other triggers
				continue
			}
			if online {
				slog.Info("connectivity restored, draining queue")
				e.syncIfOnline(ctx, "reconnect")
			}

		case <-ticker.C:
			e.syncIfOnline(ctx, "interval")

		case <-e.kick:
			e.syncIfOnline(ctx, "capture")
		}
	}
}

// syncIfOnline runs one pass if connectivity is currently available.
// Background failures are reported only in aggregate.
func (e *Engine) syncIfOnline(ctx context.Context, trigger string) {
	if !e.online.Online() {
		slog.Debug("sync skipped: offline", "trigger", trigger)
		return
	}

	stats, err := e.RunPass(ctx)
	if err != nil {
		slog.Error("sync pass aborted", "trigger", trigger, "error", err)
		return
	}
	if stats.Attempted > 0 {
		slog.Info("sync pass complete",
			"trigger", trigger,
			"attempted", stats.Attempted,
			"synced", stats.Synced,
			"duplicates", stats.Duplicates,
			"failed", stats.Failed,
		)
	}
}
