package engine

import (
	"context"
	"fmt"
	"time"

	"alphatrade/internal/config"
	"alphatrade/internal/gate"
	"alphatrade/internal/ledger"
	"alphatrade/internal/logger"
	"alphatrade/internal/market"
	"alphatrade/internal/window"
)

// recordSkipped handles gate skips that happen before a run row exists. The
// skip is still a run for audit purposes.
func (r *Runner) recordSkipped(ctx context.Context, trig Trigger, settings config.Settings, windowName string, matcher *window.Matcher, skip *gate.Skip) Result {
	run := r.newRun(trig, settings, windowName, matcher)
	if err := r.Store.CreateRun(ctx, run); err != nil {
		logger.Errorf("create skipped run: %v", err)
		return Result{Outcome: ledger.RunSkipped, SkipReason: skip.Reason, Notes: skip.Detail}
	}
	if err := r.Store.FinalizeRun(ctx, run.ID, ledger.RunSkipped, skip.Reason, skip.Detail, nil); err != nil {
		logger.Errorf("finalize skipped run %s: %v", run.ID, err)
	}
	r.appendEpisode(ctx, trig, settings, matcher, nil, "skipped: "+skip.Reason)
	res := Result{RunID: run.ID, Outcome: ledger.RunSkipped, SkipReason: skip.Reason, Notes: skip.Detail}
	r.notifyResult(res)
	return res
}

// recordFailed handles failures that happen before a run row exists.
func (r *Runner) recordFailed(ctx context.Context, trig Trigger, settings config.Settings, windowName string, matcher *window.Matcher, cause error) Result {
	logger.Errorf("run failed: %v", cause)
	run := r.newRun(trig, settings, windowName, matcher)
	if err := r.Store.CreateRun(ctx, run); err != nil {
		logger.Errorf("create failed run: %v", err)
		return Result{Outcome: ledger.RunFailed, Notes: cause.Error()}
	}
	if err := r.Store.FinalizeRun(ctx, run.ID, ledger.RunFailed, "", cause.Error(), nil); err != nil {
		logger.Errorf("finalize failed run %s: %v", run.ID, err)
	}
	r.appendEpisode(ctx, trig, settings, matcher, nil, "failed")
	res := Result{RunID: run.ID, Outcome: ledger.RunFailed, Notes: cause.Error()}
	r.notifyResult(res)
	return res
}

func (r *Runner) finishExecuted(ctx context.Context, run *ledger.RunModel, settings config.Settings, matcher *window.Matcher, trig Trigger, regimeJSON []byte, hist market.History, notes string, orders int) (Result, error) {
	if err := r.Store.FinalizeRun(ctx, run.ID, ledger.RunExecuted, "", notes, regimeJSON); err != nil {
		return Result{}, fmt.Errorf("finalize run: %w", err)
	}
	r.appendEpisode(ctx, trig, settings, matcher, hist, notes)
	logger.Infof("run %s executed: %s", run.ID, notes)
	res := Result{RunID: run.ID, Outcome: ledger.RunExecuted, Orders: orders, Notes: notes}
	r.notifyResult(res)
	return res, nil
}

func (r *Runner) finishSkipped(ctx context.Context, run *ledger.RunModel, settings config.Settings, matcher *window.Matcher, trig Trigger, regimeJSON []byte, hist market.History, skip *gate.Skip) (Result, error) {
	if err := r.Store.FinalizeRun(ctx, run.ID, ledger.RunSkipped, skip.Reason, skip.Detail, regimeJSON); err != nil {
		return Result{}, fmt.Errorf("finalize run: %w", err)
	}
	r.appendEpisode(ctx, trig, settings, matcher, hist, "skipped: "+skip.Reason)
	res := Result{RunID: run.ID, Outcome: ledger.RunSkipped, SkipReason: skip.Reason, Notes: skip.Detail}
	r.notifyResult(res)
	return res, nil
}

func (r *Runner) finishFailed(ctx context.Context, run *ledger.RunModel, settings config.Settings, matcher *window.Matcher, trig Trigger, cause error) Result {
	logger.Errorf("run %s failed: %v", run.ID, cause)
	if err := r.Store.FinalizeRun(ctx, run.ID, ledger.RunFailed, "", cause.Error(), nil); err != nil {
		logger.Errorf("finalize failed run %s: %v", run.ID, err)
	}
	r.appendEpisode(ctx, trig, settings, matcher, nil, "failed")
	res := Result{RunID: run.ID, Outcome: ledger.RunFailed, Notes: cause.Error()}
	r.notifyResult(res)
	return res
}

// appendEpisode records the post-run account snapshot. Best effort on every
// path: a broken episode never changes the run outcome.
func (r *Runner) appendEpisode(ctx context.Context, trig Trigger, settings config.Settings, matcher *window.Matcher, hist market.History, notes string) {
	account, err := r.Broker.Account(ctx)
	if err != nil {
		logger.Warnf("episode skipped, account unavailable: %v", err)
		return
	}
	ep := &ledger.EpisodeModel{
		TsUnix:          trig.At.Unix(),
		WindowTag:       window.Tag(trig.At, matcher.Location()),
		Equity:          account.Equity,
		Cash:            account.Cash,
		BenchmarkEquity: r.benchmarkEquity(ctx, account.Equity, settings.ReferenceSymbol, hist),
		Notes:           notes,
	}
	if err := r.Store.AppendEpisode(ctx, ep); err != nil {
		logger.Warnf("append episode: %v", err)
	}
}

// benchmarkEquity tracks a buy-and-hold position in the reference symbol,
// seeded with the account equity at the first episode. It compounds the
// reference's one-day return onto the previous benchmark value.
func (r *Runner) benchmarkEquity(ctx context.Context, equity float64, refSymbol string, hist market.History) float64 {
	prev, err := r.Store.Episodes(ctx, 1)
	if err != nil || len(prev) == 0 {
		return equity
	}
	base := prev[len(prev)-1].BenchmarkEquity
	if base <= 0 {
		return equity
	}
	closes := hist.Closes(refSymbol)
	if len(closes) < 2 {
		return base
	}
	last, before := closes[len(closes)-1], closes[len(closes)-2]
	if before <= 0 {
		return base
	}
	return base * (last / before)
}

func (r *Runner) notifyResult(res Result) {
	if r.Notifier == nil {
		return
	}
	text := fmt.Sprintf("alphatrade run %s: %s", res.RunID, res.Outcome)
	if res.SkipReason != "" {
		text += " (" + res.SkipReason + ")"
	}
	if res.Orders > 0 {
		text += fmt.Sprintf(", %d orders", res.Orders)
	}
	if res.Notes != "" {
		text += "\n" + res.Notes
	}
	text += "\n" + time.Now().UTC().Format(time.RFC3339)
	if err := r.Notifier.SendText(text); err != nil {
		logger.Warnf("notify: %v", err)
	}
}
