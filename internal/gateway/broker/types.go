// Package broker defines the brokerage collaborator used by the decision
// pipeline. Implementations: the Alpaca REST gateway and an in-memory paper
// broker for dry runs and tests.
package broker

import (
	"context"
	"time"

	"alphatrade/internal/market"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Account is the funded state of the trading account.
type Account struct {
	Equity float64
	Cash   float64
}

// Position is one current holding.
type Position struct {
	Symbol        string
	Qty           float64
	MarketValue   float64
	AvgEntryPrice float64
	UnrealizedPL  float64
}

// Clock reports exchange session state at a point in time.
type Clock struct {
	Now       time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// OrderRequest is a market order. Exactly one of Qty and Notional is set:
// fractionable assets trade by notional, the rest by whole-share quantity.
type OrderRequest struct {
	Symbol   string
	Side     string
	Qty      float64
	Notional float64
}

// OrderAck is the brokerage's response to a submission attempt.
type OrderAck struct {
	BrokerOrderID string
	Status        string
	SubmittedAt   time.Time
}

// Broker is the full brokerage surface the pipeline depends on.
type Broker interface {
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context) (map[string]Position, error)
	Clock(ctx context.Context) (Clock, error)
	Bars(ctx context.Context, symbols []string, days int) (market.History, error)
	Fractionable(ctx context.Context, symbols []string) (map[string]bool, error)
	CancelOpenOrders(ctx context.Context) error
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
}
