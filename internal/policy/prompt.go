package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"alphatrade/internal/regime"
)

const systemPrompt = `You are a portfolio construction agent for U.S. equities & ETFs.
Goal: maximize 1-year risk-adjusted returns with low churn and respect constraints.
Hard constraints:
- Long-only, cash only. NO leverage.
- Only pick from the candidate panel provided.
- Prefer broader trend alignment (intermediate momentum), avoid over-trading.
- Consider trading frictions, market hours, and liquidity. Avoid illiquid names.
- Minimize turnover: prefer small adjustments unless conviction is high.
Respond with a single JSON object:
{"asof": "<iso timestamp>", "picks": [{"symbol": "...", "weight": 0.0, "rationale": "..."}], "notes": "...", "confidence": 0.5}
Return concise rationales. An empty picks array means no changes are warranted.`

// PromptInput carries everything the prompt needs.
type PromptInput struct {
	Panel           []regime.Feature
	Metrics         regime.Metrics
	Holdings        map[string]float64 // symbol -> current weight
	MemoryContext   string
	TargetPositions int
	MaxWeight       float64
}

// BuildPrompts renders the system and user messages.
func BuildPrompts(in PromptInput) (string, string, error) {
	panelJSON, err := json.Marshal(in.Panel)
	if err != nil {
		return "", "", fmt.Errorf("encoding candidate panel: %w", err)
	}

	var b strings.Builder
	b.WriteString("Memory context (recap of recent episodes):\n")
	if strings.TrimSpace(in.MemoryContext) == "" {
		b.WriteString("None")
	} else {
		b.WriteString(in.MemoryContext)
	}
	b.WriteString("\n\nMarket regime: ")
	fmt.Fprintf(&b, "breadth=%.2f ref_trend=%.4f ref_vol=%.3f risk_scalar=%.2f",
		in.Metrics.Breadth, in.Metrics.RefTrend, in.Metrics.RefVol, in.Metrics.RiskScalar)

	if len(in.Holdings) > 0 {
		b.WriteString("\n\nCurrent holdings (symbol: weight):\n")
		for sym, w := range in.Holdings {
			fmt.Fprintf(&b, "- %s: %.2f%%\n", sym, w*100)
		}
	}

	b.WriteString("\nCandidate panel (JSON):\n")
	b.Write(panelJSON)
	fmt.Fprintf(&b, "\n\nReturn <= %d symbols; cap %.2f each; total weight <= 1.0. Favor durable trends; keep turnover low.",
		in.TargetPositions, in.MaxWeight)

	return systemPrompt, b.String(), nil
}
