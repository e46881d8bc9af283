// Package regime computes the market-condition metrics that feed the gates
// and the position sizer: per-symbol momentum/volatility features, market
// breadth, and the reference-symbol trend.
package regime

import (
	"errors"
	"math"
	"sort"
	"time"

	talib "github.com/markcheno/go-talib"

	"alphatrade/internal/logger"
	"alphatrade/internal/market"
)

// ErrInsufficientHistory means the price feed returned too little data to
// evaluate the regime. This is a data-availability failure, not a gate skip.
var ErrInsufficientHistory = errors.New("insufficient price history for regime evaluation")

const (
	minHistoryBars = 60
	tradingDays    = 252
)

// Feature is the derived statistics row for one symbol.
type Feature struct {
	Symbol      string  `json:"symbol"`
	Ret21       float64 `json:"ret21"`
	Ret63       float64 `json:"ret63"`
	Vol20Annual float64 `json:"vol20_annual"`
	MaxDrawdown float64 `json:"maxdd"`
	Trend       float64 `json:"trend"`
	Last        float64 `json:"last"`
	Ret126      float64 `json:"ret126"`
	Vol63Annual float64 `json:"vol63_annual"`
	Qual126     float64 `json:"qual126"`
	Score       float64 `json:"score"`
}

// Metrics is the whole-market snapshot attached to every Run for audit.
type Metrics struct {
	AsOf       time.Time `json:"asof"`
	Breadth    float64   `json:"breadth"`
	RefSymbol  string    `json:"ref_symbol"`
	RefTrend   float64   `json:"ref_trend"`
	RefVol     float64   `json:"ref_vol"`
	RiskScalar float64   `json:"risk_scalar"`
}

// Evaluate computes features for every symbol with enough history, ranks them
// by score, and derives the metrics snapshot. The risk scalar drops to
// riskOffScalar when the reference trend is negative or breadth is weak.
func Evaluate(hist market.History, refSymbol string, regimeFilter bool, riskOffScalar float64, asOf time.Time) (Metrics, []Feature, error) {
	feats := ComputeFeatures(hist)
	if len(feats) == 0 {
		return Metrics{}, nil, ErrInsufficientHistory
	}
	m := Metrics{
		AsOf:       asOf,
		Breadth:    Breadth(feats),
		RefSymbol:  refSymbol,
		RiskScalar: 1.0,
	}
	if ref, ok := findFeature(feats, refSymbol); ok {
		m.RefTrend = ref.Trend
		m.RefVol = ref.Vol20Annual
	} else {
		logger.Warnf("regime: reference symbol %s missing from feature panel", refSymbol)
	}
	if regimeFilter && (m.RefTrend < 0 || m.Breadth < 0.40) {
		m.RiskScalar = riskOffScalar
	}
	return m, feats, nil
}

// ComputeFeatures derives one row per symbol with at least minHistoryBars of
// history, sorted by descending score.
func ComputeFeatures(hist market.History) []Feature {
	feats := make([]Feature, 0, len(hist))
	for symbol := range hist {
		closes := hist.Closes(symbol)
		if len(closes) < minHistoryBars {
			continue
		}
		f := computeFeature(symbol, closes)
		feats = append(feats, f)
	}
	sort.Slice(feats, func(i, j int) bool { return feats[i].Score > feats[j].Score })
	return feats
}

func computeFeature(symbol string, closes []float64) Feature {
	n := len(closes)
	f := Feature{
		Symbol: symbol,
		Last:   closes[n-1],
		Ret21:  pctChange(closes, 21),
		Ret63:  pctChange(closes, 63),
	}

	returns := dailyReturns(closes)
	f.Vol20Annual = annualizedVol(returns, 20)
	f.MaxDrawdown = maxDrawdown(closes)

	ma20 := lastValid(talib.Sma(closes, 20))
	ma50 := lastValid(talib.Sma(closes, 50))
	if ma50 != 0 {
		f.Trend = (ma20 - ma50) / ma50
	}

	if n > 126 {
		f.Ret126 = pctChange(closes, 126)
		f.Vol63Annual = annualizedVol(returns, 63)
		if f.Vol63Annual > 0 {
			f.Qual126 = f.Ret126 / f.Vol63Annual
		}
	}

	f.Score = 0.28*f.Ret63 + 0.28*f.Ret21 + 0.28*f.Trend + 0.16*f.Qual126 -
		0.12*f.Vol20Annual - 0.08*math.Abs(f.MaxDrawdown)
	return f
}

// Breadth is the share of symbols with a positive trend.
func Breadth(feats []Feature) float64 {
	if len(feats) == 0 {
		return 0
	}
	pos := 0
	for _, f := range feats {
		if f.Trend > 0 {
			pos++
		}
	}
	return float64(pos) / float64(len(feats))
}

// TopN returns the best-scored n rows (feats are already sorted).
func TopN(feats []Feature, n int) []Feature {
	if n <= 0 || n >= len(feats) {
		return feats
	}
	return feats[:n]
}

func findFeature(feats []Feature, symbol string) (Feature, bool) {
	for _, f := range feats {
		if f.Symbol == symbol {
			return f, true
		}
	}
	return Feature{}, false
}

func pctChange(closes []float64, lag int) float64 {
	n := len(closes)
	if n <= lag || closes[n-1-lag] == 0 {
		return 0
	}
	return closes[n-1]/closes[n-1-lag] - 1
}

func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// annualizedVol is the rolling standard deviation of daily returns over
// period, scaled to a yearly horizon.
func annualizedVol(returns []float64, period int) float64 {
	if len(returns) < period {
		return 0
	}
	sd := lastValid(talib.StdDev(returns, period, 1.0))
	return sd * math.Sqrt(tradingDays)
}

func maxDrawdown(closes []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, px := range closes {
		if px > peak {
			peak = px
		}
		if peak > 0 {
			dd := px/peak - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && series[i] != 0 {
			return series[i]
		}
	}
	return 0
}
