// Package market holds the shared price-history types.
package market

import "time"

// Candle is one daily bar. OpenTime is milliseconds since epoch, matching the
// wire format of the data API.
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Time returns the candle open time as UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// History is per-symbol daily price history.
type History map[string][]Candle

// Closes extracts the close series for a symbol, oldest first.
func (h History) Closes(symbol string) []float64 {
	candles := h[symbol]
	if len(candles) == 0 {
		return nil
	}
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// LastClose returns the most recent close for a symbol, or 0.
func (h History) LastClose(symbol string) float64 {
	candles := h[symbol]
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}
