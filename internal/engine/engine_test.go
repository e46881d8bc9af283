package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphatrade/internal/config"
	"alphatrade/internal/gateway/broker"
	"alphatrade/internal/gateway/paper"
	"alphatrade/internal/ledger"
	"alphatrade/internal/market"
	"alphatrade/internal/policy"
)

type stubChat struct {
	reply string
	err   error
	calls int
}

func (s *stubChat) Chat(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Schedule: config.ScheduleConfig{
			Enabled:               true,
			WindowsET:             "11:50,14:35",
			WindowToleranceMin:    30,
			AvoidNearOpenCloseMin: 10,
		},
		Trading: config.TradingConfig{
			TargetPositions:  2,
			MaxWeight:        0.20,
			MaxGrossExposure: 1.0,
			VolTarget:        0.15,
			AIWeight:         0.5,
			MinOrderNotional: 25,
			MinTurnover:      0.01,
			CashBuffer:       0.05,
			RegimeFilter:     true,
			RiskOffScalar:    0.5,
			ReferenceSymbol:  "SPY",
			LookbackDays:     250,
		},
		Store: config.StoreConfig{Path: filepath.Join(t.TempDir(), "ledger.db")},
	}
}

func risingSeries(n int, start float64) []market.Candle {
	out := make([]market.Candle, n)
	px := start
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		px *= 1.002
		out[i] = market.Candle{
			OpenTime: base.AddDate(0, 0, i).UnixMilli(),
			Open:     px, High: px, Low: px, Close: px, Volume: 1000,
		}
	}
	return out
}

func testHistory() market.History {
	return market.History{
		"SPY": risingSeries(200, 100),
		"QQQ": risingSeries(200, 300),
	}
}

type fixture struct {
	runner *Runner
	store  *ledger.Store
	broker *paper.Broker
	chat   *stubChat
	loc    *time.Location
}

func newFixture(t *testing.T, cfg *config.Config, reply string, opts ...paper.Option) *fixture {
	t.Helper()
	store, err := ledger.NewStore(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	at := time.Date(2026, 3, 9, 11, 50, 0, 0, loc)
	base := []paper.Option{
		paper.WithHistory(testHistory()),
		paper.WithClock(broker.Clock{
			Now:       at,
			IsOpen:    true,
			NextClose: at.Add(4 * time.Hour),
		}),
	}
	brk := paper.New(append(base, opts...)...)

	chat := &stubChat{reply: reply}
	runner := &Runner{
		Cfg:      cfg,
		Store:    store,
		Broker:   brk,
		Acquirer: &policy.Acquirer{Client: chat, MaxPicks: cfg.Trading.TargetPositions},
		Universe: []string{"QQQ", "SPY"},
	}
	return &fixture{runner: runner, store: store, broker: brk, chat: chat, loc: loc}
}

func (f *fixture) trigger() Trigger {
	return Trigger{At: time.Date(2026, 3, 9, 11, 50, 0, 0, f.loc)}
}

const twoPicks = `{"picks":[
	{"symbol":"SPY","weight":0.2,"rationale":"broad momentum"},
	{"symbol":"QQQ","weight":0.2,"rationale":"tech leadership"}]}`

func TestRunExecutesAndRecords(t *testing.T) {
	f := newFixture(t, testConfig(t), twoPicks)
	ctx := context.Background()

	res := f.runner.Run(ctx, f.trigger())
	require.Equal(t, ledger.RunExecuted, res.Outcome, "notes=%s", res.Notes)
	assert.Equal(t, 0, res.ExitCode())
	assert.Equal(t, 2, res.Orders)

	runs, err := f.store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.RunExecuted, runs[0].Outcome)
	assert.Equal(t, "11:50", runs[0].Window)
	assert.NotEmpty(t, runs[0].RegimeJSON)
	assert.NotEmpty(t, runs[0].SettingsJSON)

	orders, err := f.store.OrdersForRun(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, "buy", o.Side)
		assert.Equal(t, ledger.OrderFilled, o.Status)
		assert.NotEmpty(t, o.BrokerOrderID)
	}

	assert.Len(t, f.broker.Submitted(), 2)

	eps, err := f.store.Episodes(ctx, 5)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "am", eps[0].WindowTag)
	assert.Greater(t, eps[0].Equity, 0.0)
}

func TestRunWindowDedup(t *testing.T) {
	f := newFixture(t, testConfig(t), twoPicks)
	ctx := context.Background()

	first := f.runner.Run(ctx, f.trigger())
	require.Equal(t, ledger.RunExecuted, first.Outcome)

	second := f.runner.Run(ctx, f.trigger())
	assert.Equal(t, ledger.RunSkipped, second.Outcome)
	assert.Equal(t, ledger.SkipAlreadyRun, second.SkipReason)
	assert.Equal(t, 2, second.ExitCode())
	assert.Equal(t, 1, f.chat.calls, "reasoning source consulted once")

	// both attempts are on the ledger
	runs, err := f.store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunManualBypassesDedup(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.MinTurnover = 0 // the book is already at target after run one
	f := newFixture(t, cfg, twoPicks)
	ctx := context.Background()

	require.Equal(t, ledger.RunExecuted, f.runner.Run(ctx, f.trigger()).Outcome)

	manual := f.trigger()
	manual.At = manual.At.Add(time.Minute)
	manual.Manual = true
	res := f.runner.Run(ctx, manual)
	assert.Equal(t, ledger.RunExecuted, res.Outcome, "notes=%s", res.Notes)
	assert.Equal(t, 2, f.chat.calls, "reasoning source consulted again")

	runs, err := f.store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Manual)
	assert.Empty(t, runs[0].Window)
}

func TestRunOutsideWindow(t *testing.T) {
	f := newFixture(t, testConfig(t), twoPicks)

	res := f.runner.Run(context.Background(), Trigger{
		At: time.Date(2026, 3, 9, 13, 0, 0, 0, f.loc),
	})
	assert.Equal(t, ledger.RunSkipped, res.Outcome)
	assert.Equal(t, ledger.SkipOutsideWindow, res.SkipReason)
	assert.Zero(t, f.chat.calls)
}

func TestRunDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Enabled = false
	f := newFixture(t, cfg, twoPicks)

	res := f.runner.Run(context.Background(), f.trigger())
	assert.Equal(t, ledger.RunSkipped, res.Outcome)
	assert.Equal(t, ledger.SkipDisabled, res.SkipReason)
}

func TestRunDisabledByPersistedOverride(t *testing.T) {
	f := newFixture(t, testConfig(t), twoPicks)
	ctx := context.Background()
	require.NoError(t, f.store.SetSetting(ctx, "enabled", "false"))

	res := f.runner.Run(ctx, f.trigger())
	assert.Equal(t, ledger.RunSkipped, res.Outcome)
	assert.Equal(t, ledger.SkipDisabled, res.SkipReason)
}

func TestRunMacroDay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.MacroDates = "2026-03-09"
	f := newFixture(t, cfg, twoPicks)

	res := f.runner.Run(context.Background(), f.trigger())
	assert.Equal(t, ledger.RunSkipped, res.Outcome)
	assert.Equal(t, ledger.SkipMacroDay, res.SkipReason)
}

func TestRunMarketClosed(t *testing.T) {
	f := newFixture(t, testConfig(t), twoPicks,
		paper.WithClock(broker.Clock{IsOpen: false}))

	res := f.runner.Run(context.Background(), f.trigger())
	assert.Equal(t, ledger.RunSkipped, res.Outcome)
	assert.Equal(t, ledger.SkipMarketClosed, res.SkipReason)
}

func TestRunZeroPicksStillExecutes(t *testing.T) {
	f := newFixture(t, testConfig(t), `{"picks":[],"notes":"nothing attractive"}`)
	ctx := context.Background()

	res := f.runner.Run(ctx, f.trigger())
	assert.Equal(t, ledger.RunExecuted, res.Outcome)
	assert.Equal(t, 0, res.Orders)
	assert.Contains(t, res.Notes, "no trades selected")

	// the window still counts as consumed
	second := f.runner.Run(ctx, f.trigger())
	assert.Equal(t, ledger.SkipAlreadyRun, second.SkipReason)
}

func TestRunMalformedReplyFails(t *testing.T) {
	f := newFixture(t, testConfig(t), "I would hold everything for now.")
	ctx := context.Background()

	res := f.runner.Run(ctx, f.trigger())
	assert.Equal(t, ledger.RunFailed, res.Outcome)
	assert.Equal(t, 1, res.ExitCode())

	runs, err := f.store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.RunFailed, runs[0].Outcome)
}

func TestRunLowTurnoverVeto(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.MinTurnover = 0.95 // nothing short of a full rebuild passes
	f := newFixture(t, cfg, twoPicks)
	ctx := context.Background()

	res := f.runner.Run(ctx, f.trigger())
	assert.Equal(t, ledger.RunSkipped, res.Outcome)
	assert.Equal(t, ledger.SkipLowTurnover, res.SkipReason)
	assert.Equal(t, 1, f.chat.calls, "veto happens after acquisition")
	assert.Empty(t, f.broker.Submitted())

	runs, err := f.store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].RegimeJSON, "regime snapshot recorded even on veto")
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, testConfig(t), twoPicks)
	ctx := context.Background()

	trig := f.trigger()
	trig.DryRun = true
	res := f.runner.Run(ctx, trig)
	require.Equal(t, ledger.RunExecuted, res.Outcome, "notes=%s", res.Notes)
	assert.Equal(t, 2, res.Orders)

	assert.Empty(t, f.broker.Submitted(), "dry run never reaches the broker")

	orders, err := f.store.OrdersForRun(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, ledger.OrderFilled, o.Status)
		assert.True(t, strings.HasPrefix(o.BrokerOrderID, "dry-run-"))
	}
}

func TestRunPicksOutsideUniverseDropped(t *testing.T) {
	reply := `{"picks":[
		{"symbol":"SPY","weight":0.2,"rationale":"broad momentum"},
		{"symbol":"DOGE","weight":0.2,"rationale":"not a thing here"}]}`
	f := newFixture(t, testConfig(t), reply)
	ctx := context.Background()

	res := f.runner.Run(ctx, f.trigger())
	require.Equal(t, ledger.RunExecuted, res.Outcome, "notes=%s", res.Notes)

	orders, err := f.store.OrdersForRun(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "SPY", orders[0].Symbol)
}
