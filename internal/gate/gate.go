// Package gate implements the short-circuiting pre-trade checks. Each gate
// either passes, skips the run with a reason from the closed taxonomy, or
// fails with a real error (upstream/data problems, handled by the engine).
package gate

import (
	"context"
	"errors"
	"fmt"

	"alphatrade/internal/logger"
)

// Skip is the non-error terminal state of a gate: the run is recorded as
// skipped with Reason and processing stops.
type Skip struct {
	Reason string
	Detail string
}

func (s *Skip) Error() string {
	if s.Detail == "" {
		return s.Reason
	}
	return fmt.Sprintf("%s (%s)", s.Reason, s.Detail)
}

// AsSkip unwraps a gate skip from an error chain.
func AsSkip(err error) (*Skip, bool) {
	var s *Skip
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// Gate is one pass/skip check.
type Gate interface {
	Name() string
	Check(ctx context.Context, in *Input) error
}

// Chain evaluates gates in order; the first skip or error terminates.
type Chain struct {
	gates []Gate
}

func NewChain(gates ...Gate) *Chain {
	return &Chain{gates: gates}
}

// Evaluate returns nil when every gate passes. A *Skip is returned as-is;
// any other error is wrapped with the gate name.
func (c *Chain) Evaluate(ctx context.Context, in *Input) error {
	for _, g := range c.gates {
		if err := g.Check(ctx, in); err != nil {
			if s, ok := AsSkip(err); ok {
				logger.Infof("gate %s: skip reason=%s detail=%s", g.Name(), s.Reason, s.Detail)
				return s
			}
			return fmt.Errorf("gate %s: %w", g.Name(), err)
		}
		logger.Debugf("gate %s: pass", g.Name())
	}
	return nil
}
