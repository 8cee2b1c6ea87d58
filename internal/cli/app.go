package cli

import (
	"context"
	"log/slog"
	"time"

	"fieldsync/internal/attendance"
	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/engine"
	"fieldsync/internal/geo"
	"fieldsync/internal/ident"
	"fieldsync/internal/queue"
	"fieldsync/internal/remote"
)

// app holds the wired components every command needs: the durable queue, the
// remote collaborators, and the connectivity monitor.
type app struct {
	cfg     *config.Config
	queue   *queue.Queue
	store   *remote.Store
	storage *remote.ObjectStorage
	geo     *geo.Resolver
	monitor *connectivity.Monitor
	probe   *connectivity.Probe
}

// openApp loads the config and connects the components. The connectivity
// monitor starts with one synchronous probe, so one-shot commands see the
// real online/offline state immediately.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	q, err := queue.Open(cfg.Queue.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local queue", err)
	}

	store, err := remote.NewStore(cfg.Database)
	if err != nil {
		q.Close()
		return nil, WrapExitError(ExitCommandError, "failed to connect remote store", err)
	}

	monitor := connectivity.NewMonitor(false)
	probe := connectivity.NewProbe(monitor, cfg.ZoneService.URL, connectivity.DefaultProbeInterval)
	probe.Check(ctx)

	return &app{
		cfg:     cfg,
		queue:   q,
		store:   store,
		storage: remote.NewObjectStorage(cfg.Storage),
		geo:     geo.NewResolver(cfg.ZoneService.URL),
		monitor: monitor,
		probe:   probe,
	}, nil
}

func (a *app) close() {
	a.store.Close()
	if err := a.queue.Close(); err != nil {
		slog.Error("error closing local queue", "error", err)
	}
}

// engine builds the sync engine over the wired components.
func (a *app) engine(opts ...engine.Option) *engine.Engine {
	opts = append([]engine.Option{engine.WithInterval(a.cfg.SyncInterval())}, opts...)
	return engine.New(a.queue, a.store, a.storage, a.geo, a.monitor, opts...)
}

// service builds the attendance capture service. kick may be nil for one-shot
// commands that run their own sync pass instead.
func (a *app) service(kick func()) *attendance.Service {
	view := attendance.NewViewBuilder(a.queue, a.store, a.monitor)
	return attendance.NewService(a.queue, view, a.geo, a.monitor, ident.UUIDv7Generator{}, time.Now, kick)
}
