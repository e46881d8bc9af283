package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"alphatrade/internal/gateway/broker"
	"alphatrade/internal/ledger"
	"alphatrade/internal/logger"
	"alphatrade/internal/market"
	"alphatrade/internal/regime"
)

// execute submits the order batch one at a time. Each order is written to
// the ledger before the broker call so a crash mid-batch leaves a record of
// intent. One rejected order does not abort the rest.
func (r *Runner) execute(ctx context.Context, runID string, orders []broker.OrderRequest, dryRun bool) (submitted, failures int) {
	if !dryRun {
		if err := r.Broker.CancelOpenOrders(ctx); err != nil {
			logger.Warnf("cancel open orders: %v", err)
		}
	}
	for _, req := range orders {
		row := &ledger.OrderModel{
			RunID:         runID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Qty:           req.Qty,
			Notional:      req.Notional,
			Status:        ledger.OrderSubmitted,
			SubmittedUnix: time.Now().Unix(),
		}
		if err := r.Store.AppendOrder(ctx, row); err != nil {
			logger.Errorf("record order %s %s: %v", req.Side, req.Symbol, err)
			failures++
			continue
		}

		if dryRun {
			// Dry runs never reach the broker but the ledger reads as if
			// they filled, so dedup and memory behave identically.
			if err := r.Store.UpdateOrderStatus(ctx, row.ID, ledger.OrderFilled, "dry-run-"+uuid.NewString(), ""); err != nil {
				logger.Warnf("update dry-run order %d: %v", row.ID, err)
			}
			logger.Infof("dry-run order: %s %s qty=%.4f notional=%.2f", req.Side, req.Symbol, req.Qty, req.Notional)
			submitted++
			continue
		}

		ack, err := r.Broker.SubmitOrder(ctx, req)
		if err != nil {
			logger.Errorf("submit %s %s: %v", req.Side, req.Symbol, err)
			if uerr := r.Store.UpdateOrderStatus(ctx, row.ID, ledger.OrderError, "", err.Error()); uerr != nil {
				logger.Warnf("update order %d: %v", row.ID, uerr)
			}
			failures++
			continue
		}
		status := mapOrderStatus(ack.Status)
		if err := r.Store.UpdateOrderStatus(ctx, row.ID, status, ack.BrokerOrderID, ""); err != nil {
			logger.Warnf("update order %d: %v", row.ID, err)
		}
		logger.Infof("order %s: %s %s qty=%.4f notional=%.2f status=%s", ack.BrokerOrderID, req.Side, req.Symbol, req.Qty, req.Notional, status)
		submitted++
	}
	return submitted, failures
}

func mapOrderStatus(brokerStatus string) string {
	switch strings.ToLower(brokerStatus) {
	case "filled", "partially_filled":
		return ledger.OrderFilled
	case "rejected", "canceled", "expired":
		return ledger.OrderRejected
	default:
		return ledger.OrderAccepted
	}
}

// regimeSnapshot serializes the metrics plus the top of the feature panel
// for the run record.
func regimeSnapshot(metrics regime.Metrics, feats []regime.Feature) []byte {
	snap := struct {
		Metrics regime.Metrics   `json:"metrics"`
		Top     []regime.Feature `json:"top"`
	}{Metrics: metrics, Top: regime.TopN(feats, 10)}
	buf, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	return buf
}

func lastPrices(hist market.History, targets map[string]float64, positions map[string]broker.Position) map[string]float64 {
	out := make(map[string]float64, len(targets)+len(positions))
	for sym := range targets {
		out[sym] = hist.LastClose(sym)
	}
	for sym, p := range positions {
		if _, ok := out[sym]; ok {
			continue
		}
		if px := hist.LastClose(sym); px > 0 {
			out[sym] = px
		} else if p.Qty != 0 {
			out[sym] = p.MarketValue / p.Qty
		}
	}
	return out
}

func orderSymbols(targets map[string]float64, positions map[string]broker.Position) []string {
	seen := make(map[string]bool, len(targets)+len(positions))
	out := make([]string, 0, len(targets)+len(positions))
	for sym := range targets {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for sym := range positions {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
