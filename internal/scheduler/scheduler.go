// Package scheduler drives the automated decision cycle: a polling loop
// that fires the engine when the exchange-local clock enters a configured
// window, plus a config hot reloader.
package scheduler

import (
	"context"
	"time"

	"alphatrade/internal/engine"
	"alphatrade/internal/ledger"
	"alphatrade/internal/logger"
	"alphatrade/internal/window"
)

const defaultPoll = 30 * time.Second

// Loop polls the clock and triggers the runner once per window per day.
// The in-memory fired marker is only a fast guard against double firing
// within one process; the ledger dedup gate is the durable one.
type Loop struct {
	Runner *engine.Runner
	Poll   time.Duration

	nowFn func() time.Time
	fired map[string]bool
}

func NewLoop(runner *engine.Runner, pollSeconds int) *Loop {
	poll := time.Duration(pollSeconds) * time.Second
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Loop{
		Runner: runner,
		Poll:   poll,
		nowFn:  time.Now,
		fired:  make(map[string]bool),
	}
}

// Start blocks until ctx is done.
func (l *Loop) Start(ctx context.Context) error {
	logger.Infof("scheduler started (poll=%s)", l.Poll)
	ticker := time.NewTicker(l.Poll)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	now := l.nowFn()

	settings, err := l.Runner.EffectiveSettings(ctx)
	if err != nil {
		logger.Warnf("scheduler: resolve settings: %v", err)
		return
	}
	matcher, err := window.NewMatcher(settings.WindowsET, settings.WindowToleranceMin)
	if err != nil {
		logger.Warnf("scheduler: bad window config: %v", err)
		return
	}

	w, ok := matcher.Match(now)
	if !ok {
		return
	}
	day := now.In(matcher.Location()).Format("2006-01-02")
	key := day + "|" + w.Name
	if l.fired[key] {
		return
	}
	l.pruneFired(day)
	l.fired[key] = true

	logger.Infof("scheduler: window %s matched at %s", w.Name, now.In(matcher.Location()).Format("15:04:05"))
	res := l.Runner.Run(ctx, engine.Trigger{At: now})
	if res.Outcome == ledger.RunFailed {
		logger.Errorf("scheduler: run failed: %s", res.Notes)
	}
}

// pruneFired drops markers from previous days so the map stays small.
func (l *Loop) pruneFired(today string) {
	for key := range l.fired {
		if len(key) < len(today) || key[:len(today)] != today {
			delete(l.fired, key)
		}
	}
}
