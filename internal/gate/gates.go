package gate

import (
	"context"
	"time"

	"alphatrade/internal/config"
	"alphatrade/internal/gateway/broker"
	"alphatrade/internal/ledger"
)

// Input is the state the gates decide on. It is assembled once per run by
// the engine and treated as read-only here.
type Input struct {
	At       time.Time
	Manual   bool
	Settings config.Settings
	Clock    broker.Clock
	Window   string // matched window name, empty when unmatched or manual
	Location *time.Location
}

// exchangeDay is the exchange-local calendar date of the trigger.
func (in *Input) exchangeDay() string {
	return in.At.In(in.Location).Format("2006-01-02")
}

// ---- enabled ----

// EnabledGate short-circuits everything when trading is switched off in
// settings.
type EnabledGate struct{}

func (EnabledGate) Name() string { return "enabled" }

func (EnabledGate) Check(_ context.Context, in *Input) error {
	if !in.Settings.Enabled {
		return &Skip{Reason: ledger.SkipDisabled}
	}
	return nil
}

// ---- market open ----

// MarketOpenGate skips when the exchange is closed or the session is about
// to close (the near-close buffer avoids auction volatility).
type MarketOpenGate struct{}

func (MarketOpenGate) Name() string { return "market-open" }

func (MarketOpenGate) Check(_ context.Context, in *Input) error {
	if !in.Clock.IsOpen {
		return &Skip{Reason: ledger.SkipMarketClosed}
	}
	buffer := time.Duration(in.Settings.AvoidNearOpenCloseMin) * time.Minute
	if buffer > 0 && !in.Clock.NextClose.IsZero() {
		if in.Clock.NextClose.Sub(in.At) <= buffer {
			return &Skip{Reason: ledger.SkipMarketClosed, Detail: "near close"}
		}
	}
	return nil
}

// ---- macro date ----

// MacroDateGate stands aside on flagged high-impact event days.
type MacroDateGate struct{}

func (MacroDateGate) Name() string { return "macro-date" }

func (MacroDateGate) Check(_ context.Context, in *Input) error {
	day := in.exchangeDay()
	if in.Settings.MacroDateSet()[day] {
		return &Skip{Reason: ledger.SkipMacroDay, Detail: day}
	}
	return nil
}

// ---- window ----

// WindowGate skips automated triggers that fall outside every tolerance
// band. Manual triggers bypass window matching entirely.
type WindowGate struct{}

func (WindowGate) Name() string { return "window" }

func (WindowGate) Check(_ context.Context, in *Input) error {
	if in.Manual {
		return nil
	}
	if in.Window == "" {
		return &Skip{Reason: ledger.SkipOutsideWindow}
	}
	return nil
}

// ---- window dedup ----

// RunLookup is the slice of the ledger the dedup gate needs.
type RunLookup interface {
	HasRunForWindow(ctx context.Context, day, windowName string) (bool, error)
}

// DedupGate prevents a second automated execution of the same window on the
// same exchange day. The check is a ledger query, so it survives restarts.
// Manual triggers are exempt: they may intentionally re-run.
type DedupGate struct {
	Runs RunLookup
}

func (DedupGate) Name() string { return "window-dedup" }

func (g DedupGate) Check(ctx context.Context, in *Input) error {
	if in.Manual || in.Window == "" {
		return nil
	}
	exists, err := g.Runs.HasRunForWindow(ctx, in.exchangeDay(), in.Window)
	if err != nil {
		return err
	}
	if exists {
		return &Skip{Reason: ledger.SkipAlreadyRun, Detail: in.Window}
	}
	return nil
}
