// Package app provides the top-level application lifecycle for the oracle
// engine. It wires together stores, caches, providers, oracles, and the
// automation schedulers, and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/oraclebot/internal/archive"
	"github.com/alanyoungcy/oraclebot/internal/automation"
	"github.com/alanyoungcy/oraclebot/internal/config"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the enabled run loops, and blocks
// until the context is canceled or a loop fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting oracle engine",
		slog.Bool("crypto_automation", a.cfg.Automation.Crypto.Enabled),
		slog.Bool("sports_automation", a.cfg.Automation.Sports.Enabled),
		slog.Bool("archive", a.cfg.Archive.Enabled),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	group, ctx := errgroup.WithContext(ctx)
	started := 0

	if a.cfg.Automation.Crypto.Enabled {
		sched := automation.NewCryptoScheduler(
			deps.MarketService,
			deps.CryptoOracle,
			deps.Events,
			nil,
			automation.CryptoConfig{
				Interval:      a.cfg.Automation.Crypto.Interval.Duration,
				HorizonDays:   a.cfg.Automation.Crypto.HorizonDays,
				DisputeWindow: a.cfg.Automation.Crypto.DisputeWindow.Duration,
				Liquidity:     a.cfg.Automation.Crypto.Liquidity,
			},
			a.logger,
		)
		group.Go(func() error { return sched.Run(ctx) })
		started++
	}

	if a.cfg.Automation.Sports.Enabled {
		ranker := automation.NewPopularityRanker(deps.VolumeFeed, deps.VolumeCache, a.logger)
		sched := automation.NewSportsScheduler(
			deps.MarketService,
			deps.SportsOracle,
			ranker,
			deps.Events,
			nil,
			automation.SportsConfig{
				Interval:      a.cfg.Automation.Sports.Interval.Duration,
				LookaheadDays: a.cfg.Automation.Sports.LookaheadDays,
				DisputeWindow: a.cfg.Automation.Sports.DisputeWindow.Duration,
				Liquidity:     a.cfg.Automation.Sports.Liquidity,
			},
			a.logger,
		)
		group.Go(func() error { return sched.Run(ctx) })
		started++
	}

	if a.cfg.Archive.Enabled {
		archiver := archive.New(
			deps.SnapshotStore,
			deps.BlobWriter,
			deps.BlobReader,
			archive.Config{
				RetentionDays: a.cfg.Archive.RetentionDays,
				Prune:         a.cfg.Archive.Prune,
			},
			a.logger,
		)
		cron := a.cfg.Archive.Cron
		group.Go(func() error { return archiver.RunCron(ctx, cron) })
		started++
	}

	if started == 0 {
		return fmt.Errorf("app: nothing to run: enable at least one of automation.crypto, automation.sports, archive")
	}

	return group.Wait()
}

// Close tears down all resources in reverse registration order. Safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down oracle engine")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
