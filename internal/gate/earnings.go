package gate

import (
	"context"

	"alphatrade/internal/ledger"
	"alphatrade/internal/logger"
	"alphatrade/internal/policy"
)

// PickFilter drops individual picks after the LLM stage. Unlike a Gate it
// never aborts the run, it only narrows the basket.
type PickFilter interface {
	Filter(ctx context.Context, asOf string, picks []policy.Pick) []policy.Pick
}

// EarningsFilter removes names with an earnings report inside the blackout
// window around the trigger day. Calendar lookups are pluggable; with a nil
// calendar the filter passes everything through.
type EarningsFilter struct {
	Calendar EarningsCalendar
}

// EarningsCalendar answers whether a symbol reports within the blackout
// window around the given day.
type EarningsCalendar interface {
	InBlackout(ctx context.Context, symbol, day string) (bool, error)
}

func (f EarningsFilter) Filter(ctx context.Context, day string, picks []policy.Pick) []policy.Pick {
	if f.Calendar == nil {
		return picks
	}
	kept := picks[:0:0]
	for _, p := range picks {
		hit, err := f.Calendar.InBlackout(ctx, p.Symbol, day)
		if err != nil {
			logger.Warnf("earnings lookup failed for %s, keeping pick: %v", p.Symbol, err)
			kept = append(kept, p)
			continue
		}
		if hit {
			logger.Infof("dropping %s: %s", p.Symbol, ledger.SkipEarningsWindow)
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
