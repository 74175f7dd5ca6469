// Package daemon runs the collector's long-lived loops: polling the
// watch root for new directories and sweeping stuck claims.
package daemon

import (
	"context"
	"time"

	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/conf"
	"github.com/klangscribe/collector/internal/ingest"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/klangscribe/collector/internal/pkg/workerpool"
	"github.com/klangscribe/collector/internal/poller"
	"go.uber.org/zap"
)

// Daemon ties the poller, pipeline, and sweeper together.
type Daemon struct {
	cfg      *conf.Config
	store    *claim.Store
	poller   *poller.Poller
	pipeline *ingest.Pipeline
	pool     *workerpool.Pool
	runID    string
	logger   *logger.Logger
}

// New assembles the daemon. runID tags every claim made by this
// process.
func New(cfg *conf.Config, store *claim.Store, p *poller.Poller, pipeline *ingest.Pipeline, pool *workerpool.Pool, runID string, log *logger.Logger) *Daemon {
	if log == nil {
		log = logger.L()
	}
	return &Daemon{
		cfg:      cfg,
		store:    store,
		poller:   p,
		pipeline: pipeline,
		pool:     pool,
		runID:    runID,
		logger:   log,
	}
}

// Run blocks until ctx is cancelled. The poll loop only runs when
// enabled in config; the sweep loop always runs so stuck claims from
// crashed runs are recovered even on poll-disabled instances.
func (d *Daemon) Run(ctx context.Context) error {
	sweepTicker := time.NewTicker(d.cfg.Sweep.Interval)
	defer sweepTicker.Stop()

	var pollC <-chan time.Time
	if d.cfg.Poller.Enabled {
		pollTicker := time.NewTicker(d.cfg.Poller.Interval)
		defer pollTicker.Stop()
		pollC = pollTicker.C
		d.logger.Info("poller enabled",
			zap.String("watch_root", d.cfg.WatchRoot),
			zap.Duration("interval", d.cfg.Poller.Interval),
		)
	} else {
		d.logger.Info("poller disabled, running sweep only")
	}

	// Recover anything a previous crashed run left behind before the
	// first tick.
	d.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return d.pool.Shutdown(30 * time.Second)
		case <-pollC:
			d.pollOnce(ctx)
		case <-sweepTicker.C:
			d.sweepOnce(ctx)
		}
	}
}

func (d *Daemon) pollOnce(ctx context.Context) {
	units, err := d.poller.Tick(ctx, d.runID)
	if err != nil {
		d.logger.Error("poll tick failed", zap.Error(err))
		return
	}

	for _, unit := range units {
		unit := unit
		err := d.pool.Submit(func() {
			if err := d.pipeline.Run(ctx, unit); err != nil {
				d.logger.Error("pipeline run failed",
					zap.String("dirname", unit.Dirname),
					zap.String("run_key", unit.RunKey),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			d.logger.Error("failed to schedule directory",
				zap.String("dirname", unit.Dirname),
				zap.Error(err),
			)
		}
	}
}

func (d *Daemon) sweepOnce(ctx context.Context) {
	n, err := d.store.Sweep(ctx, d.cfg.Sweep.StuckTimeout)
	if err != nil {
		d.logger.Error("sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		d.logger.Info("recovered stuck claims", zap.Int64("count", n))
	}
}
