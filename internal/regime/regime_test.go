package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphatrade/internal/market"
)

// series builds n daily candles whose closes follow dailyGrowth compounding
// from start.
func series(n int, start, dailyGrowth float64) []market.Candle {
	out := make([]market.Candle, n)
	px := start
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		px *= 1 + dailyGrowth
		out[i] = market.Candle{
			OpenTime: base.AddDate(0, 0, i).UnixMilli(),
			Open:     px, High: px, Low: px, Close: px, Volume: 1000,
		}
	}
	return out
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	hist := market.History{"SPY": series(10, 100, 0)}
	_, _, err := Evaluate(hist, "SPY", true, 0.5, time.Now())
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEvaluateRiskOn(t *testing.T) {
	hist := market.History{
		"SPY":  series(200, 100, 0.002),
		"AAPL": series(200, 50, 0.003),
	}
	m, feats, err := Evaluate(hist, "SPY", true, 0.5, time.Now())
	require.NoError(t, err)
	require.Len(t, feats, 2)
	assert.Equal(t, 1.0, m.RiskScalar)
	assert.Greater(t, m.RefTrend, 0.0)
	assert.Equal(t, 1.0, m.Breadth)
	// sorted by descending score, the steeper riser on top
	assert.Equal(t, "AAPL", feats[0].Symbol)
}

func TestEvaluateRiskOffOnNegativeTrend(t *testing.T) {
	hist := market.History{
		"SPY":  series(200, 100, -0.002),
		"AAPL": series(200, 50, -0.001),
	}
	m, _, err := Evaluate(hist, "SPY", true, 0.5, time.Now())
	require.NoError(t, err)
	assert.Less(t, m.RefTrend, 0.0)
	assert.Equal(t, 0.5, m.RiskScalar)
}

func TestEvaluateFilterDisabled(t *testing.T) {
	hist := market.History{"SPY": series(200, 100, -0.002)}
	m, _, err := Evaluate(hist, "SPY", false, 0.5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.RiskScalar)
}

func TestComputeFeaturesSkipsShortHistory(t *testing.T) {
	hist := market.History{
		"SPY": series(200, 100, 0.001),
		"IPO": series(20, 30, 0.01),
	}
	feats := ComputeFeatures(hist)
	require.Len(t, feats, 1)
	assert.Equal(t, "SPY", feats[0].Symbol)
}

func TestFeatureValues(t *testing.T) {
	closes := make([]float64, 0, 200)
	for _, c := range series(200, 100, 0.001) {
		closes = append(closes, c.Close)
	}
	f := computeFeature("SPY", closes)
	assert.InDelta(t, 0.021, f.Ret21, 0.002) // 21 days of 0.1% compounding
	assert.Greater(t, f.Trend, 0.0)
	assert.Equal(t, closes[len(closes)-1], f.Last)
	// monotonically rising series never draws down
	assert.Equal(t, 0.0, f.MaxDrawdown)
}

func TestTopN(t *testing.T) {
	feats := []Feature{{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C"}}
	assert.Len(t, TopN(feats, 2), 2)
	assert.Len(t, TopN(feats, 0), 3)
	assert.Len(t, TopN(feats, 10), 3)
}

func TestBreadth(t *testing.T) {
	feats := []Feature{{Trend: 0.1}, {Trend: -0.1}, {Trend: 0.2}, {Trend: -0.2}}
	assert.Equal(t, 0.5, Breadth(feats))
	assert.Equal(t, 0.0, Breadth(nil))
}
