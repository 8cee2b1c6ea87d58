// Package sampler captures periodic location samples on a wall-clock-aligned
// schedule and hands them to the sync engine's write path.
package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/ident"
	"fieldsync/internal/model"
)

// PositionSource reads the device's current position. Reads are best-effort:
// a failed read produces a coordinate-less sample, never an aborted one.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (*model.Coordinate, error)
}

// SampleWriter is the sync engine's sample write path: direct remote write
// when online, durable queue fallback otherwise.
type SampleWriter interface {
	WriteSample(ctx context.Context, s model.PendingLocationSample) error
}

// ZoneResolver resolves a coordinate to a named zone, or nil.
type ZoneResolver interface {
	ResolveZone(ctx context.Context, lat, lon float64) *model.ZoneResult
}

// Connectivity reports the current online/offline state.
type Connectivity interface {
	Online() bool
}

// NextTick returns the first wall-clock-aligned tick strictly after now:
// the top of the next hour in now's own location, so zones with a fractional
// UTC offset still tick on their local hour boundary. Each reschedule
// recomputes from the current wall clock, so drift never accumulates and
// samples land on predictable clock boundaries regardless of when tracking
// started.
func NextTick(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
}

// Sampler runs the hourly location schedule for one tracked session.
// Start captures one immediate sample and schedules the aligned ticks;
// Stop cancels the pending timer so no sample fires afterwards.
type Sampler struct {
	writer   SampleWriter
	position PositionSource
	geo      ZoneResolver
	online   Connectivity
	ids      ident.Generator

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures the sampler.
type Option func(*Sampler)

// WithClock overrides the wall clock. Tests pin the clock to assert tick
// alignment.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		s.now = now
	}
}

// WithTimer overrides the timer source. Tests substitute a channel they fire
// by hand.
func WithTimer(after func(d time.Duration) <-chan time.Time) Option {
	return func(s *Sampler) {
		s.after = after
	}
}

// New creates a sampler over the given position source and write path.
func New(writer SampleWriter, position PositionSource, geo ZoneResolver, online Connectivity, ids ident.Generator, opts ...Option) *Sampler {
	s := &Sampler{
		writer:   writer,
		position: position,
		geo:      geo,
		online:   online,
		ids:      ids,
		now:      time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins tracking for one user session: one immediate sample tagged
// manual, then one sample at the top of every hour until Stop. Starting an
// already started sampler restarts the schedule, which also covers the
// resume-from-background case where an immediate sample is wanted again.
func (s *Sampler) Start(ctx context.Context, userID, sessionID string) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.Capture(ctx, userID, sessionID, model.SampleManual)

	go func() {
		defer close(done)
		s.run(runCtx, userID, sessionID)
	}()
}

// Stop cancels the pending timer. No sample fires after Stop returns.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Sampler) run(ctx context.Context, userID, sessionID string) {
	for {
		next := NextTick(s.now())
		slog.Debug("next location sample scheduled", "at", next)

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}
		if ctx.Err() != nil {
			return
		}
		s.Capture(ctx, userID, sessionID, model.SampleHourly)
	}
}

// Capture takes one sample right now: best-effort position read, best-effort
// zone resolution when online, then the engine's write path. Failures are
// logged and degrade the sample, they never abort it; only a sample that
// cannot even be queued is lost, and that is logged as an error.
func (s *Sampler) Capture(ctx context.Context, userID, sessionID string, source model.SampleSource) {
	now := s.now()

	coord, err := s.position.CurrentPosition(ctx)
	if err != nil {
		slog.Warn("position read failed, sampling without coordinate", "error", err)
		coord = nil
	}

	var zone *model.ZoneResult
	if coord != nil && s.online.Online() {
		zone = s.geo.ResolveZone(ctx, coord.Lat, coord.Lon)
	}

	sample := model.PendingLocationSample{
		ID:         s.ids.Generate(),
		UserID:     userID,
		Day:        model.DayOf(now),
		SessionID:  sessionID,
		SampledAt:  now,
		Coordinate: coord,
		Zone:       zone,
		Source:     source,
		CreatedAt:  now,
	}

	if err := s.writer.WriteSample(ctx, sample); err != nil {
		slog.Error("location sample lost", "id", sample.ID, "source", source, "error", err)
		return
	}
	slog.Debug("location sample written", "id", sample.ID, "source", source)
}
