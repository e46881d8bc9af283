package sizing

import (
	"sort"

	"github.com/shopspring/decimal"

	"alphatrade/internal/gateway/broker"
)

// TargetNotionals converts weights into dollar targets against the
// investable slice of equity.
func TargetNotionals(weights map[string]float64, investable float64) map[string]float64 {
	if investable <= 0 || len(weights) == 0 {
		return nil
	}
	out := make(map[string]float64, len(weights))
	for sym, w := range weights {
		n := decimal.NewFromFloat(investable).Mul(decimal.NewFromFloat(w)).Round(2)
		out[sym], _ = n.Float64()
	}
	return out
}

// Turnover is the whole-portfolio change fraction implied by moving from the
// current holdings to the targets: sum of absolute notional deltas over the
// account value (positions plus cash).
func Turnover(targets map[string]float64, positions map[string]broker.Position, cash float64) float64 {
	curNotional := 0.0
	for _, pos := range positions {
		curNotional += pos.MarketValue
	}
	denom := curNotional + cash
	if denom <= 0 {
		return 0
	}
	est := 0.0
	for sym := range unionKeys(targets, positions) {
		cur := 0.0
		if pos, ok := positions[sym]; ok {
			cur = pos.MarketValue
		}
		delta := targets[sym] - cur
		if delta < 0 {
			delta = -delta
		}
		est += delta
	}
	return est / denom
}

// Diff produces the minimal order set reaching the targets. Changes below
// minNotional are skipped (per-order no-trade band, independent of the
// portfolio-level turnover gate). Fractionable symbols trade by notional,
// the rest by whole shares. Sells are emitted before buys so the cash from
// reductions funds the additions.
func Diff(targets map[string]float64, positions map[string]broker.Position, prices map[string]float64, fractionable map[string]bool, minNotional float64) []broker.OrderRequest {
	var orders []broker.OrderRequest
	for sym := range unionKeys(targets, positions) {
		cur := 0.0
		if pos, ok := positions[sym]; ok {
			cur = pos.Qty * prices[sym]
		}
		delta := targets[sym] - cur
		abs := delta
		side := broker.SideBuy
		if delta < 0 {
			abs = -delta
			side = broker.SideSell
		}
		if abs < minNotional {
			continue
		}
		if fractionable[sym] {
			notional, _ := decimal.NewFromFloat(abs).Round(2).Float64()
			orders = append(orders, broker.OrderRequest{Symbol: sym, Side: side, Notional: notional})
			continue
		}
		px := prices[sym]
		if px <= 0 {
			continue
		}
		qty := decimal.NewFromFloat(abs).Div(decimal.NewFromFloat(px)).IntPart()
		if qty > 0 {
			orders = append(orders, broker.OrderRequest{Symbol: sym, Side: side, Qty: float64(qty)})
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Side != orders[j].Side {
			return orders[i].Side == broker.SideSell
		}
		return orders[i].Symbol < orders[j].Symbol
	})
	return orders
}

func unionKeys(targets map[string]float64, positions map[string]broker.Position) map[string]struct{} {
	out := make(map[string]struct{}, len(targets)+len(positions))
	for k := range targets {
		out[k] = struct{}{}
	}
	for k := range positions {
		out[k] = struct{}{}
	}
	return out
}
