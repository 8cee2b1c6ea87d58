package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultProbeInterval is how often the probe re-checks reachability.
const DefaultProbeInterval = 30 * time.Second

// Probe drives a Monitor by periodically checking whether a well-known
// endpoint is reachable. Any HTTP response counts as online, whatever the
// status code: the probe measures the network path, not service health.
type Probe struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	client   *http.Client
}

// NewProbe creates a probe against the given URL. interval <= 0 uses
// DefaultProbeInterval.
func NewProbe(monitor *Monitor, url string, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Probe{
		monitor:  monitor,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Check performs one reachability check and updates the monitor.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	p.monitor.Set(online)
	return online
}

// Run checks immediately, then on every interval tick until the context is
// cancelled.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Probe) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		slog.Debug("probe request build failed", "url", p.url, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
