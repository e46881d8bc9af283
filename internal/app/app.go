// Package app wires the application together and exposes the two entry
// modes: a single decision run and the long-lived schedule loop.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"alphatrade/internal/config"
	"alphatrade/internal/engine"
	"alphatrade/internal/ledger"
	"alphatrade/internal/logger"
	"alphatrade/internal/scheduler"
)

// App holds the assembled pipeline.
type App struct {
	cfg    *config.Config
	store  *ledger.Store
	runner *engine.Runner
}

// NewApp builds the application from configuration.
func NewApp(cfg *config.Config, opts ...BuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg, opts)
}

// RunOnce executes a single decision cycle and returns the result. Manual
// triggers bypass window matching and dedup; dryRun forces paper routing.
func (a *App) RunOnce(ctx context.Context, manual, dryRun bool) engine.Result {
	return a.runner.Run(ctx, engine.Trigger{
		At:     time.Now(),
		Manual: manual,
		DryRun: dryRun,
	})
}

// RunSchedule starts the polling loop and, when cfgPath is set, the config
// hot reloader. Blocks until ctx is done.
func (a *App) RunSchedule(ctx context.Context, cfgPath string) error {
	group, ctx := errgroup.WithContext(ctx)
	loop := scheduler.NewLoop(a.runner, a.cfg.Schedule.PollSeconds)
	group.Go(func() error {
		return loop.Start(ctx)
	})
	if cfgPath != "" {
		group.Go(func() error {
			return scheduler.WatchConfig(ctx, cfgPath, a.runner)
		})
	}
	err := group.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// Runner exposes the underlying runner for test harnesses.
func (a *App) Runner() *engine.Runner {
	return a.runner
}

// Close releases the ledger.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
