// Package paper is an in-memory brokerage used for dry runs and tests.
// Orders fill instantly at the last known close.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alphatrade/internal/gateway/broker"
	"alphatrade/internal/logger"
	"alphatrade/internal/market"
)

// Broker is the in-memory implementation of broker.Broker.
type Broker struct {
	mu           sync.Mutex
	cash         float64
	positions    map[string]broker.Position
	history      market.History
	clock        broker.Clock
	fractionable map[string]bool
	submitted    []broker.OrderRequest
	seq          int
}

// Option mutates the paper broker at construction time.
type Option func(*Broker)

// WithCash seeds the starting cash balance.
func WithCash(cash float64) Option {
	return func(b *Broker) { b.cash = cash }
}

// WithPosition seeds an existing holding.
func WithPosition(symbol string, qty, price float64) Option {
	return func(b *Broker) {
		symbol = strings.ToUpper(symbol)
		b.positions[symbol] = broker.Position{
			Symbol:        symbol,
			Qty:           qty,
			MarketValue:   qty * price,
			AvgEntryPrice: price,
		}
	}
}

// WithHistory seeds the daily bar history served by Bars.
func WithHistory(hist market.History) Option {
	return func(b *Broker) { b.history = hist }
}

// WithClock overrides the session clock.
func WithClock(clock broker.Clock) Option {
	return func(b *Broker) { b.clock = clock }
}

// WithWholeSharesOnly marks symbols that cannot trade fractionally.
func WithWholeSharesOnly(symbols ...string) Option {
	return func(b *Broker) {
		for _, s := range symbols {
			b.fractionable[strings.ToUpper(s)] = false
		}
	}
}

func New(opts ...Option) *Broker {
	now := time.Now().UTC()
	b := &Broker{
		cash:         100000,
		positions:    make(map[string]broker.Position),
		history:      market.History{},
		fractionable: make(map[string]bool),
		clock: broker.Clock{
			Now:       now,
			IsOpen:    true,
			NextClose: now.Add(4 * time.Hour),
			NextOpen:  now.Add(20 * time.Hour),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) Account(_ context.Context) (broker.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	equity := b.cash
	for _, p := range b.positions {
		equity += b.markValue(p)
	}
	return broker.Account{Equity: equity, Cash: b.cash}, nil
}

func (b *Broker) Positions(_ context.Context) (map[string]broker.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]broker.Position, len(b.positions))
	for sym, p := range b.positions {
		p.MarketValue = b.markValue(p)
		out[sym] = p
	}
	return out, nil
}

func (b *Broker) Clock(_ context.Context) (broker.Clock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock, nil
}

func (b *Broker) Bars(_ context.Context, symbols []string, _ int) (market.History, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(market.History, len(symbols))
	for _, s := range symbols {
		if candles, ok := b.history[s]; ok {
			out[s] = candles
		}
	}
	return out, nil
}

func (b *Broker) Fractionable(_ context.Context, symbols []string) (map[string]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if frac, ok := b.fractionable[s]; ok {
			out[s] = frac
			continue
		}
		out[s] = true
	}
	return out, nil
}

func (b *Broker) CancelOpenOrders(_ context.Context) error {
	return nil
}

// SubmitOrder fills the order immediately against the last close.
func (b *Broker) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if (req.Qty > 0) == (req.Notional > 0) {
		return broker.OrderAck{}, errors.New("order must set exactly one of qty and notional")
	}
	symbol := strings.ToUpper(req.Symbol)
	price := b.history.LastClose(symbol)
	if price <= 0 {
		return broker.OrderAck{}, fmt.Errorf("no price for %s", symbol)
	}

	qty := req.Qty
	if req.Notional > 0 {
		qty = req.Notional / price
	}
	notional := qty * price

	pos := b.positions[symbol]
	pos.Symbol = symbol
	switch req.Side {
	case broker.SideBuy:
		if notional > b.cash+1e-6 {
			return broker.OrderAck{}, fmt.Errorf("insufficient cash for %s: need %.2f have %.2f", symbol, notional, b.cash)
		}
		totalCost := pos.AvgEntryPrice*pos.Qty + notional
		pos.Qty += qty
		if pos.Qty > 0 {
			pos.AvgEntryPrice = totalCost / pos.Qty
		}
		b.cash -= notional
	case broker.SideSell:
		if qty > pos.Qty+1e-6 {
			return broker.OrderAck{}, fmt.Errorf("insufficient qty for %s: need %.4f have %.4f", symbol, qty, pos.Qty)
		}
		pos.Qty -= qty
		b.cash += notional
	default:
		return broker.OrderAck{}, fmt.Errorf("unknown side %q", req.Side)
	}

	if math.Abs(pos.Qty) < 1e-9 {
		delete(b.positions, symbol)
	} else {
		pos.MarketValue = pos.Qty * price
		b.positions[symbol] = pos
	}

	b.seq++
	b.submitted = append(b.submitted, req)
	logger.Debugf("paper fill: %s %s qty=%.4f notional=%.2f px=%.2f", req.Side, symbol, qty, notional, price)
	return broker.OrderAck{
		BrokerOrderID: "paper-" + uuid.NewString(),
		Status:        "filled",
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// Submitted returns a copy of every order seen, in submission order.
func (b *Broker) Submitted() []broker.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.OrderRequest, len(b.submitted))
	copy(out, b.submitted)
	return out
}

func (b *Broker) markValue(p broker.Position) float64 {
	if px := b.history.LastClose(p.Symbol); px > 0 {
		return p.Qty * px
	}
	return p.MarketValue
}
