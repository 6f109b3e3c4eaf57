package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Enter-tainer/gps-tracker/metrics"
)

// PollerConfig configures the background fetch loop.
type PollerConfig struct {
	Fetcher *Fetcher
	Store   Store

	// Interval between polls. Defaults to 15 minutes, one rotation period.
	Interval time.Duration

	// WindowHours is how far back each poll looks. Defaults to 24.
	WindowHours int

	Log *slog.Logger
}

// Poller periodically runs the fetch pipeline and persists new points.
type Poller struct {
	cfg       *PollerConfig
	log       *slog.Logger
	pollReqCh chan struct{}
}

// NewPoller creates a poller. Run starts it.
func NewPoller(cfg *PollerConfig) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.WindowHours == 0 {
		cfg.WindowHours = 24
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Poller{
		cfg:       cfg,
		log:       cfg.Log,
		pollReqCh: make(chan struct{}, 1),
	}
}

// RequestPoll schedules an immediate poll without blocking. Extra requests
// while one is already pending are dropped.
func (p *Poller) RequestPoll() {
	select {
	case p.pollReqCh <- struct{}{}:
	default:
	}
}

// Run polls once immediately and then on every tick until the context is
// canceled. An on-demand request resets the ticker so a manual poll is not
// followed by a scheduled one moments later.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.pollReqCh:
			ticker.Reset(p.cfg.Interval)
			p.poll(ctx)

			// drain
			select {
			case <-p.pollReqCh:
			default:
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	started := time.Now()

	result, err := p.cfg.Fetcher.Fetch(ctx, p.cfg.WindowHours)
	if err != nil {
		p.log.Error("poll failed", "err", err)
		return
	}

	stored, err := p.cfg.Store.Save(ctx, result.Locations)
	if err != nil {
		p.log.Error("storing points failed", "err", err)
		return
	}
	metrics.RecordStoredReports(stored)

	p.log.Info("poll complete",
		"raw", result.Raw,
		"points", len(result.Locations),
		"stored", stored,
		"failedBatches", result.FailedBatches,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
}
