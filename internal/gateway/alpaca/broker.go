package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"alphatrade/internal/gateway/broker"
	"alphatrade/internal/logger"
	"alphatrade/internal/market"
)

const (
	barBatchSize     = 100
	barFetchParallel = 4
	barPageLimit     = 10000
)

type accountPayload struct {
	Equity string `json:"equity"`
	Cash   string `json:"cash"`
}

type positionPayload struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	MarketValue   string `json:"market_value"`
	AvgEntryPrice string `json:"avg_entry_price"`
	UnrealizedPL  string `json:"unrealized_pl"`
}

type clockPayload struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

type assetPayload struct {
	Symbol       string `json:"symbol"`
	Tradable     bool   `json:"tradable"`
	Fractionable bool   `json:"fractionable"`
}

type barPayload struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

type barsPayload struct {
	Bars          map[string][]barPayload `json:"bars"`
	NextPageToken *string                 `json:"next_page_token"`
}

type orderPayload struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	Qty         string `json:"qty,omitempty"`
	Notional    string `json:"notional,omitempty"`
}

type orderAckPayload struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Account fetches current equity and cash.
func (c *Client) Account(ctx context.Context) (broker.Account, error) {
	var payload accountPayload
	if err := c.doRequest(ctx, http.MethodGet, c.tradingURL, "/v2/account", nil, nil, &payload); err != nil {
		return broker.Account{}, err
	}
	equity, err := parseMoney(payload.Equity, "equity")
	if err != nil {
		return broker.Account{}, err
	}
	cash, err := parseMoney(payload.Cash, "cash")
	if err != nil {
		return broker.Account{}, err
	}
	return broker.Account{Equity: equity, Cash: cash}, nil
}

// Positions fetches all open positions keyed by symbol.
func (c *Client) Positions(ctx context.Context) (map[string]broker.Position, error) {
	var payload []positionPayload
	if err := c.doRequest(ctx, http.MethodGet, c.tradingURL, "/v2/positions", nil, nil, &payload); err != nil {
		return nil, err
	}
	out := make(map[string]broker.Position, len(payload))
	for _, p := range payload {
		symbol := strings.ToUpper(p.Symbol)
		out[symbol] = broker.Position{
			Symbol:        symbol,
			Qty:           weakFloat(p.Qty),
			MarketValue:   weakFloat(p.MarketValue),
			AvgEntryPrice: weakFloat(p.AvgEntryPrice),
			UnrealizedPL:  weakFloat(p.UnrealizedPL),
		}
	}
	return out, nil
}

// Clock fetches exchange session state.
func (c *Client) Clock(ctx context.Context) (broker.Clock, error) {
	var payload clockPayload
	if err := c.doRequest(ctx, http.MethodGet, c.tradingURL, "/v2/clock", nil, nil, &payload); err != nil {
		return broker.Clock{}, err
	}
	return broker.Clock{
		Now:       payload.Timestamp,
		IsOpen:    payload.IsOpen,
		NextOpen:  payload.NextOpen,
		NextClose: payload.NextClose,
	}, nil
}

// Bars fetches daily history for the given symbols. Symbols are split into
// batches and fetched concurrently against the data host.
func (c *Client) Bars(ctx context.Context, symbols []string, days int) (market.History, error) {
	if len(symbols) == 0 {
		return market.History{}, nil
	}
	if days <= 0 {
		days = 250
	}
	// Calendar padding so `days` trading bars survive weekends and holidays.
	start := time.Now().UTC().AddDate(0, 0, -(days*3/2 + 10))

	var mu sync.Mutex
	history := make(market.History, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(barFetchParallel)
	for _, batch := range chunkSymbols(symbols, barBatchSize) {
		batch := batch
		g.Go(func() error {
			bars, err := c.fetchBars(gctx, batch, start)
			if err != nil {
				return err
			}
			mu.Lock()
			for sym, candles := range bars {
				history[sym] = candles
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Debugf("fetched bars for %d/%d symbols", len(history), len(symbols))
	return history, nil
}

func (c *Client) fetchBars(ctx context.Context, symbols []string, start time.Time) (map[string][]market.Candle, error) {
	out := make(map[string][]market.Candle, len(symbols))
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("symbols", strings.Join(symbols, ","))
		query.Set("timeframe", "1Day")
		query.Set("adjustment", "split")
		query.Set("start", start.Format("2006-01-02"))
		query.Set("feed", c.feed)
		query.Set("limit", strconv.Itoa(barPageLimit))
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}
		var payload barsPayload
		if err := c.doRequest(ctx, http.MethodGet, c.dataURL, "/v2/stocks/bars", query, nil, &payload); err != nil {
			return nil, fmt.Errorf("fetch bars: %w", err)
		}
		for sym, bars := range payload.Bars {
			sym = strings.ToUpper(sym)
			for _, b := range bars {
				out[sym] = append(out[sym], market.Candle{
					OpenTime: b.Timestamp.UnixMilli(),
					Open:     b.Open,
					High:     b.High,
					Low:      b.Low,
					Close:    b.Close,
					Volume:   b.Volume,
				})
			}
		}
		if payload.NextPageToken == nil || *payload.NextPageToken == "" {
			break
		}
		pageToken = *payload.NextPageToken
	}
	for sym := range out {
		sort.Slice(out[sym], func(i, j int) bool {
			return out[sym][i].OpenTime < out[sym][j].OpenTime
		})
	}
	return out, nil
}

// Fractionable reports per-symbol fractional tradability. Unknown symbols
// map to false.
func (c *Client) Fractionable(ctx context.Context, symbols []string) (map[string]bool, error) {
	var mu sync.Mutex
	out := make(map[string]bool, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(barFetchParallel)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			var payload assetPayload
			err := c.doRequest(gctx, http.MethodGet, c.tradingURL, "/v2/assets/"+url.PathEscape(symbol), nil, nil, &payload)
			if err != nil {
				if IsNotFound(err) {
					mu.Lock()
					out[symbol] = false
					mu.Unlock()
					return nil
				}
				return fmt.Errorf("lookup asset %s: %w", symbol, err)
			}
			mu.Lock()
			out[symbol] = payload.Tradable && payload.Fractionable
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelOpenOrders cancels every open order on the account so fresh targets
// are not fighting yesterday's resting orders.
func (c *Client) CancelOpenOrders(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodDelete, c.tradingURL, "/v2/orders", nil, nil, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("cancel open orders: %w", err)
	}
	return nil
}

// SubmitOrder places one market day order.
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	if (req.Qty > 0) == (req.Notional > 0) {
		return broker.OrderAck{}, errors.New("order must set exactly one of qty and notional")
	}
	payload := orderPayload{
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        "market",
		TimeInForce: "day",
	}
	if req.Notional > 0 {
		payload.Notional = strconv.FormatFloat(req.Notional, 'f', 2, 64)
	} else {
		payload.Qty = strconv.FormatFloat(req.Qty, 'f', -1, 64)
	}
	var ack orderAckPayload
	if err := c.doRequest(ctx, http.MethodPost, c.tradingURL, "/v2/orders", nil, payload, &ack); err != nil {
		return broker.OrderAck{}, err
	}
	submitted := ack.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}
	return broker.OrderAck{
		BrokerOrderID: ack.ID,
		Status:        ack.Status,
		SubmittedAt:   submitted,
	}, nil
}

func chunkSymbols(symbols []string, size int) [][]string {
	var chunks [][]string
	for len(symbols) > size {
		chunks = append(chunks, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		chunks = append(chunks, symbols)
	}
	return chunks
}

func parseMoney(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse account %s %q: %w", field, raw, err)
	}
	return v, nil
}

func weakFloat(raw string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return v
}
