// Package policy talks to the reasoning source: it builds the portfolio
// prompt, calls the model, and validates the returned pick list against a
// strict shape contract.
package policy

// Pick is one proposed trade from the reasoning source.
type Pick struct {
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction,omitempty"` // long-only book; "long" when present
	Weight    float64 `json:"weight"`              // conviction as target weight, [0,1]
	Rationale string  `json:"rationale"`
}

// Response is the full reasoning-source answer. Zero picks is a legitimate
// "no good trades today" outcome, distinct from a malformed response.
type Response struct {
	AsOf       string  `json:"asof"`
	Picks      []Pick  `json:"picks"`
	Notes      string  `json:"notes,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
