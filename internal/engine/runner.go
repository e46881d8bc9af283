// Package engine orchestrates one decision run: gates, regime evaluation,
// pick acquisition, sizing, the turnover veto, and order execution, with
// every step recorded in the ledger.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alphatrade/internal/config"
	"alphatrade/internal/gate"
	"alphatrade/internal/gateway/broker"
	"alphatrade/internal/ledger"
	"alphatrade/internal/logger"
	"alphatrade/internal/notify"
	"alphatrade/internal/policy"
	"alphatrade/internal/regime"
	"alphatrade/internal/sizing"
	"alphatrade/internal/universe"
	"alphatrade/internal/window"
)

const memoryEpisodes = 10

// Trigger is one request to run the decision cycle.
type Trigger struct {
	At     time.Time
	Manual bool // bypasses window matching and dedup
	DryRun bool // forces dry-run regardless of settings
}

// Result is the run outcome. Outcome is one of the ledger run outcomes.
type Result struct {
	RunID      string
	Outcome    string
	SkipReason string
	Orders     int
	Notes      string
}

// ExitCode maps a run result to the process exit code: 0 executed,
// 2 skipped, 1 failed.
func (r Result) ExitCode() int {
	switch r.Outcome {
	case ledger.RunExecuted:
		return 0
	case ledger.RunSkipped:
		return 2
	default:
		return 1
	}
}

// Runner wires the pipeline collaborators. Fields are set once at startup;
// Run is safe to call from the scheduler loop and the manual CLI path.
type Runner struct {
	Cfg      *config.Config
	Store    *ledger.Store
	Broker   broker.Broker
	Acquirer *policy.Acquirer
	Universe []string
	Filter   gate.PickFilter
	Notifier notify.TextNotifier

	active sync.Mutex
	cfgMu  sync.RWMutex
}

// UpdateConfig swaps the base configuration, used by the schedule-mode
// hot reload. Persisted setting overrides still apply on top.
func (r *Runner) UpdateConfig(cfg *config.Config) {
	r.cfgMu.Lock()
	r.Cfg = cfg
	r.cfgMu.Unlock()
}

// EffectiveSettings resolves the per-run settings: base config layered with
// persisted overrides. The scheduler uses it to track window changes.
func (r *Runner) EffectiveSettings(ctx context.Context) (config.Settings, error) {
	return r.resolveSettings(ctx)
}

// Run executes one full decision cycle. It never returns a non-nil error
// together with a recorded run; pipeline failures are folded into the
// Result with outcome failed.
func (r *Runner) Run(ctx context.Context, trig Trigger) Result {
	if !r.active.TryLock() {
		logger.Warnf("run suppressed: another run is in progress")
		return Result{Outcome: ledger.RunSkipped, SkipReason: ledger.SkipAlreadyRun, Notes: "concurrent run suppressed"}
	}
	defer r.active.Unlock()

	settings, err := r.resolveSettings(ctx)
	if err != nil {
		logger.Errorf("resolve settings: %v", err)
		return Result{Outcome: ledger.RunFailed, Notes: err.Error()}
	}
	if trig.DryRun {
		settings.DryRun = true
	}

	matcher, err := window.NewMatcher(settings.WindowsET, settings.WindowToleranceMin)
	if err != nil {
		logger.Errorf("parse windows: %v", err)
		return Result{Outcome: ledger.RunFailed, Notes: err.Error()}
	}

	windowName := ""
	if !trig.Manual {
		if w, ok := matcher.Match(trig.At); ok {
			windowName = w.Name
		}
	}

	clock, err := r.Broker.Clock(ctx)
	if err != nil {
		return r.recordFailed(ctx, trig, settings, windowName, matcher, fmt.Errorf("fetch clock: %w", err))
	}

	in := &gate.Input{
		At:       trig.At,
		Manual:   trig.Manual,
		Settings: settings,
		Clock:    clock,
		Window:   windowName,
		Location: matcher.Location(),
	}
	chain := gate.NewChain(
		gate.EnabledGate{},
		gate.MarketOpenGate{},
		gate.MacroDateGate{},
		gate.WindowGate{},
		gate.DedupGate{Runs: r.Store},
	)
	if err := chain.Evaluate(ctx, in); err != nil {
		if skip, ok := gate.AsSkip(err); ok {
			return r.recordSkipped(ctx, trig, settings, windowName, matcher, skip)
		}
		return r.recordFailed(ctx, trig, settings, windowName, matcher, err)
	}

	run := r.newRun(trig, settings, windowName, matcher)
	if err := r.Store.CreateRun(ctx, run); err != nil {
		logger.Errorf("create run: %v", err)
		return Result{Outcome: ledger.RunFailed, Notes: err.Error()}
	}
	logger.Infof("run %s started (window=%s manual=%v dry_run=%v)", run.ID, windowName, trig.Manual, settings.DryRun)

	res, err := r.decide(ctx, run, trig, settings, matcher)
	if err != nil {
		return r.finishFailed(ctx, run, settings, matcher, trig, err)
	}
	return res
}

// decide is the pipeline body after the run row exists.
func (r *Runner) decide(ctx context.Context, run *ledger.RunModel, trig Trigger, settings config.Settings, matcher *window.Matcher) (Result, error) {
	account, err := r.Broker.Account(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch account: %w", err)
	}
	positions, err := r.Broker.Positions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch positions: %w", err)
	}

	symbols := r.barSymbols(positions, settings.ReferenceSymbol)
	hist, err := r.Broker.Bars(ctx, symbols, settings.LookbackDays)
	if err != nil {
		return Result{}, fmt.Errorf("fetch bars: %w", err)
	}

	metrics, feats, err := regime.Evaluate(hist, settings.ReferenceSymbol, settings.RegimeFilter, settings.RiskOffScalar, trig.At)
	if err != nil {
		return Result{}, err
	}
	regimeJSON := regimeSnapshot(metrics, feats)

	memoryCtx, err := r.Store.MemoryContext(ctx, memoryEpisodes)
	if err != nil {
		logger.Warnf("memory context unavailable: %v", err)
		memoryCtx = ""
	}

	panel := regime.TopN(feats, panelSize(settings.TargetPositions))
	rsp, err := r.Acquirer.Choose(ctx, policy.PromptInput{
		Panel:           panel,
		Metrics:         metrics,
		Holdings:        holdingWeights(positions, account.Equity),
		MemoryContext:   memoryCtx,
		TargetPositions: settings.TargetPositions,
		MaxWeight:       settings.MaxWeight,
	})
	if err != nil {
		return Result{}, err
	}

	picks := r.filterPicks(ctx, trig, matcher, rsp.Picks)
	if len(picks) == 0 {
		return r.finishExecuted(ctx, run, settings, matcher, trig, regimeJSON, hist, noteWith("no trades selected", rsp.Notes), 0)
	}

	weights := sizing.TargetWeights(picks, feats, sizing.Params{
		VolTarget:        settings.VolTarget,
		MaxWeight:        settings.MaxWeight,
		MaxGrossExposure: settings.MaxGrossExposure,
		AIWeight:         settings.AIWeight,
	})
	investable := account.Equity * (1 - settings.CashBuffer) * metrics.RiskScalar
	targets := sizing.TargetNotionals(weights, investable)

	turnover := sizing.Turnover(targets, positions, account.Cash)
	if turnover < settings.MinTurnover {
		logger.Infof("run %s: turnover %.4f below minimum %.4f", run.ID, turnover, settings.MinTurnover)
		skip := &gate.Skip{Reason: ledger.SkipLowTurnover, Detail: fmt.Sprintf("turnover %.4f", turnover)}
		return r.finishSkipped(ctx, run, settings, matcher, trig, regimeJSON, hist, skip)
	}

	prices := lastPrices(hist, targets, positions)
	fractionable, err := r.Broker.Fractionable(ctx, orderSymbols(targets, positions))
	if err != nil {
		return Result{}, fmt.Errorf("fetch asset metadata: %w", err)
	}
	orders := sizing.Diff(targets, positions, prices, fractionable, settings.MinOrderNotional)
	if len(orders) == 0 {
		return r.finishExecuted(ctx, run, settings, matcher, trig, regimeJSON, hist, "all adjustments below minimum order notional", 0)
	}

	submitted, failures := r.execute(ctx, run.ID, orders, settings.DryRun)
	if submitted == 0 {
		return Result{}, fmt.Errorf("all %d order submissions failed", len(orders))
	}
	notes := noteWith(fmt.Sprintf("submitted %d/%d orders (turnover %.4f)", submitted, len(orders), turnover), rsp.Notes)
	if failures > 0 {
		notes += fmt.Sprintf("; %d submissions failed", failures)
	}
	return r.finishExecuted(ctx, run, settings, matcher, trig, regimeJSON, hist, notes, submitted)
}

func (r *Runner) resolveSettings(ctx context.Context) (config.Settings, error) {
	r.cfgMu.RLock()
	cfg := r.Cfg
	r.cfgMu.RUnlock()
	settings := config.SettingsFromConfig(cfg)
	overrides, err := r.Store.Settings(ctx)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load setting overrides: %w", err)
	}
	settings.Apply(overrides)
	return settings, nil
}

func (r *Runner) newRun(trig Trigger, settings config.Settings, windowName string, matcher *window.Matcher) *ledger.RunModel {
	return &ledger.RunModel{
		ID:           uuid.NewString(),
		TriggerUnix:  trig.At.Unix(),
		TriggerDay:   trig.At.In(matcher.Location()).Format("2006-01-02"),
		Window:       windowName,
		Manual:       trig.Manual,
		SettingsJSON: settings.JSON(),
	}
}

// filterPicks drops names outside the universe and names in an earnings
// blackout.
func (r *Runner) filterPicks(ctx context.Context, trig Trigger, matcher *window.Matcher, picks []policy.Pick) []policy.Pick {
	kept := picks[:0:0]
	for _, p := range picks {
		if !universe.Contains(r.Universe, p.Symbol) {
			logger.Warnf("dropping %s: not in universe", p.Symbol)
			continue
		}
		kept = append(kept, p)
	}
	if r.Filter != nil {
		day := trig.At.In(matcher.Location()).Format("2006-01-02")
		kept = r.Filter.Filter(ctx, day, kept)
	}
	return kept
}

func (r *Runner) barSymbols(positions map[string]broker.Position, refSymbol string) []string {
	seen := make(map[string]bool, len(r.Universe)+len(positions)+1)
	out := make([]string, 0, len(r.Universe)+len(positions)+1)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range r.Universe {
		add(s)
	}
	for s := range positions {
		add(s)
	}
	add(strings.ToUpper(refSymbol))
	sort.Strings(out)
	return out
}

func panelSize(targetPositions int) int {
	n := targetPositions * 3
	if n < 10 {
		n = 10
	}
	return n
}

func holdingWeights(positions map[string]broker.Position, equity float64) map[string]float64 {
	out := make(map[string]float64, len(positions))
	if equity <= 0 {
		return out
	}
	for sym, p := range positions {
		out[sym] = p.MarketValue / equity
	}
	return out
}

func noteWith(base, modelNotes string) string {
	modelNotes = strings.TrimSpace(modelNotes)
	if modelNotes == "" {
		return base
	}
	return base + "; model: " + modelNotes
}
