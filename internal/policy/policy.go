package policy

import (
	"context"
	"fmt"
	"time"

	"alphatrade/internal/logger"
	"alphatrade/internal/pkg/circuit"
	"alphatrade/internal/pkg/jsonutil"
)

// Acquirer requests a bounded pick list from the reasoning source and
// post-processes the weights.
type Acquirer struct {
	Client   ChatClient
	Breaker  *circuit.Breaker
	Timeout  time.Duration
	MaxPicks int
}

// Choose runs one acquisition. A transport failure, an open circuit, or a
// malformed response returns an error (the Run fails); a well-formed response
// with zero picks returns successfully.
func (a *Acquirer) Choose(ctx context.Context, in PromptInput) (Response, error) {
	if a.Client == nil {
		return Response{}, fmt.Errorf("reasoning source not configured")
	}
	if a.Breaker != nil && !a.Breaker.Allow() {
		return Response{}, fmt.Errorf("reasoning source circuit open")
	}

	system, user, err := BuildPrompts(in)
	if err != nil {
		return Response{}, err
	}

	callCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	raw, err := a.Client.Chat(callCtx, system, user)
	if err != nil {
		if a.Breaker != nil {
			a.Breaker.RecordFailure()
		}
		return Response{}, fmt.Errorf("reasoning source call failed: %w", err)
	}
	if a.Breaker != nil {
		a.Breaker.RecordSuccess()
	}

	doc, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return Response{}, fmt.Errorf("no json found in reasoning response")
	}
	rsp, err := ValidateResponse(doc)
	if err != nil {
		return Response{}, err
	}

	a.normalize(&rsp, in.MaxWeight)
	return rsp, nil
}

// normalize enforces the pick-count bound, the per-name cap, and total
// weight <= 1.
func (a *Acquirer) normalize(rsp *Response, maxWeight float64) {
	if a.MaxPicks > 0 && len(rsp.Picks) > a.MaxPicks {
		logger.Warnf("policy: truncating %d picks to configured max %d", len(rsp.Picks), a.MaxPicks)
		rsp.Picks = rsp.Picks[:a.MaxPicks]
	}
	total := 0.0
	for _, p := range rsp.Picks {
		total += p.Weight
	}
	if total > 1.0 && total > 0 {
		for i := range rsp.Picks {
			rsp.Picks[i].Weight /= total
		}
	}
	for i := range rsp.Picks {
		w := rsp.Picks[i].Weight
		if w < 0 {
			w = 0
		}
		if maxWeight > 0 && w > maxWeight {
			w = maxWeight
		}
		rsp.Picks[i].Weight = w
	}
}
