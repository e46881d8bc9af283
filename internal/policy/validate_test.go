package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphatrade/internal/pkg/jsonutil"
	"alphatrade/internal/regime"
)

func TestValidateResponse(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		raw := `{"asof":"2026-03-09","picks":[{"symbol":"aapl","direction":"long","weight":0.15,"rationale":"momentum"}],"notes":"ok","confidence":0.7}`
		rsp, err := ValidateResponse(raw)
		require.NoError(t, err)
		require.Len(t, rsp.Picks, 1)
		assert.Equal(t, "AAPL", rsp.Picks[0].Symbol, "symbols are uppercased")
		assert.Equal(t, 0.15, rsp.Picks[0].Weight)
		assert.Equal(t, 0.7, rsp.Confidence)
	})

	t.Run("zero picks is valid", func(t *testing.T) {
		rsp, err := ValidateResponse(`{"picks":[],"notes":"nothing attractive"}`)
		require.NoError(t, err)
		assert.Empty(t, rsp.Picks)
		assert.Equal(t, "nothing attractive", rsp.Notes)
	})

	t.Run("malformed responses fail", func(t *testing.T) {
		cases := map[string]string{
			"empty":             "",
			"not json":          "hold everything",
			"array root":        `[{"symbol":"AAPL"}]`,
			"missing picks":     `{"notes":"hi"}`,
			"weight over one":   `{"picks":[{"symbol":"AAPL","weight":1.5,"rationale":"x"}]}`,
			"negative weight":   `{"picks":[{"symbol":"AAPL","weight":-0.1,"rationale":"x"}]}`,
			"missing rationale": `{"picks":[{"symbol":"AAPL","weight":0.1}]}`,
			"short direction":   `{"picks":[{"symbol":"AAPL","weight":0.1,"rationale":"x","direction":"short"}]}`,
			"blank symbol":      `{"picks":[{"symbol":"  ","weight":0.1,"rationale":"x"}]}`,
		}
		for name, raw := range cases {
			_, err := ValidateResponse(raw)
			assert.Error(t, err, name)
		}
	})
}

func TestExtractJSON(t *testing.T) {
	want := `{"picks":[]}`

	t.Run("bare object", func(t *testing.T) {
		got, ok := jsonutil.ExtractJSON(want)
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("fenced with language marker", func(t *testing.T) {
		got, ok := jsonutil.ExtractJSON("Here you go:\n```json\n" + want + "\n```\nDone.")
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("prose around object", func(t *testing.T) {
		got, ok := jsonutil.ExtractJSON("I suggest the following. " + want + " Good luck!")
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("nested braces stay balanced", func(t *testing.T) {
		nested := `{"picks":[{"symbol":"AAPL","weight":0.1,"rationale":"a {brace} inside"}]}`
		got, ok := jsonutil.ExtractJSON("text " + nested + " text")
		require.True(t, ok)
		assert.Equal(t, nested, got)
	})

	t.Run("no json at all", func(t *testing.T) {
		_, ok := jsonutil.ExtractJSON("nothing to see here")
		assert.False(t, ok)
	})
}

type stubChat struct {
	reply string
	err   error
	calls int
}

func (s *stubChat) Chat(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func promptInput() PromptInput {
	return PromptInput{
		Panel:           []regime.Feature{{Symbol: "AAPL", Score: 0.5}},
		Metrics:         regime.Metrics{RiskScalar: 1.0},
		Holdings:        map[string]float64{},
		TargetPositions: 2,
		MaxWeight:       0.20,
	}
}

func TestAcquirerChoose(t *testing.T) {
	t.Run("normalizes oversized weights", func(t *testing.T) {
		chat := &stubChat{reply: `{"picks":[
			{"symbol":"AAPL","weight":0.8,"rationale":"a"},
			{"symbol":"MSFT","weight":0.6,"rationale":"b"}]}`}
		a := &Acquirer{Client: chat, MaxPicks: 5}
		rsp, err := a.Choose(context.Background(), promptInput())
		require.NoError(t, err)
		sum := 0.0
		for _, p := range rsp.Picks {
			assert.LessOrEqual(t, p.Weight, 0.20+1e-9)
			sum += p.Weight
		}
		assert.LessOrEqual(t, sum, 1.0+1e-9)
	})

	t.Run("truncates to max picks", func(t *testing.T) {
		chat := &stubChat{reply: `{"picks":[
			{"symbol":"A","weight":0.1,"rationale":"a"},
			{"symbol":"B","weight":0.1,"rationale":"b"},
			{"symbol":"C","weight":0.1,"rationale":"c"}]}`}
		a := &Acquirer{Client: chat, MaxPicks: 2}
		rsp, err := a.Choose(context.Background(), promptInput())
		require.NoError(t, err)
		assert.Len(t, rsp.Picks, 2)
	})

	t.Run("transport error propagates", func(t *testing.T) {
		a := &Acquirer{Client: &stubChat{err: errors.New("boom")}}
		_, err := a.Choose(context.Background(), promptInput())
		assert.Error(t, err)
	})

	t.Run("prose-only reply is an error", func(t *testing.T) {
		a := &Acquirer{Client: &stubChat{reply: "I would not trade today."}}
		_, err := a.Choose(context.Background(), promptInput())
		assert.Error(t, err)
	})

	t.Run("fenced reply accepted", func(t *testing.T) {
		a := &Acquirer{Client: &stubChat{reply: "```json\n{\"picks\":[]}\n```"}}
		rsp, err := a.Choose(context.Background(), promptInput())
		require.NoError(t, err)
		assert.Empty(t, rsp.Picks)
	})
}
