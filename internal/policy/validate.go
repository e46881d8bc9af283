package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const responseSchema = `{
  "type": "object",
  "required": ["picks"],
  "properties": {
    "asof": {"type": "string"},
    "picks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol", "weight", "rationale"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "direction": {"type": "string", "enum": ["long"]},
          "weight": {"type": "number", "minimum": 0, "maximum": 1},
          "rationale": {"type": "string"}
        }
      }
    },
    "notes": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var compiledSchema = jsonschema.MustCompileString("policy_response.json", responseSchema)

// ValidateResponse checks the raw reasoning output against the response
// contract. It returns the parsed Response only when the shape is valid; any
// violation is an upstream error, never silently coerced into "no trades".
func ValidateResponse(raw string) (Response, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Response{}, fmt.Errorf("empty response body")
	}
	if !gjson.Valid(raw) {
		return Response{}, fmt.Errorf("response is not valid json")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return Response{}, fmt.Errorf("response root must be a json object")
	}
	if !parsed.Get("picks").Exists() {
		return Response{}, fmt.Errorf("response missing picks field")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Response{}, fmt.Errorf("response shape invalid: %w", err)
	}

	var rsp Response
	if err := json.Unmarshal([]byte(raw), &rsp); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	for i := range rsp.Picks {
		rsp.Picks[i].Symbol = strings.ToUpper(strings.TrimSpace(rsp.Picks[i].Symbol))
		if rsp.Picks[i].Symbol == "" {
			return Response{}, fmt.Errorf("pick #%d has empty symbol", i+1)
		}
	}
	return rsp, nil
}
